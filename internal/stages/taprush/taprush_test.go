package taprush

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"
)

func newStarted(t *testing.T, settings Settings) *Stage {
	t.Helper()
	st := New(WithSettings(settings), WithRand(rand.New(rand.NewPCG(1, 1))))
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return st
}

func waitDone(t *testing.T, st *Stage) {
	t.Helper()
	select {
	case <-st.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("stage never resolved")
	}
}

func TestFiveHitsResolveWithFive(t *testing.T) {
	st := newStarted(t, Settings{Duration: 80 * time.Millisecond, Tick: 5 * time.Millisecond, Targets: 8})
	if !st.BeginRound() {
		t.Fatalf("round did not begin")
	}
	snap := st.Snapshot()
	if len(snap.Targets) != 8 {
		t.Fatalf("spawned %d targets, want 8", len(snap.Targets))
	}
	for _, target := range snap.Targets[:5] {
		if !st.Hit(target.ID) {
			t.Fatalf("hit on target %d rejected", target.ID)
		}
	}
	waitDone(t, st)
	res, err := st.Result()
	if err != nil {
		t.Fatalf("result error: %v", err)
	}
	if res.Reward != 5 || res.Skipped || res.StageID != ID {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTargetScoresOnlyOnce(t *testing.T) {
	st := newStarted(t, Settings{Duration: time.Second, Tick: 10 * time.Millisecond, Targets: 3})
	defer st.Skip()
	st.BeginRound()
	id := st.Snapshot().Targets[0].ID
	if !st.Hit(id) {
		t.Fatalf("first hit rejected")
	}
	if st.Hit(id) {
		t.Fatalf("second hit on the same target must be ignored")
	}
	if st.Hit(-42) {
		t.Fatalf("unknown target must be ignored")
	}
	if got := st.Snapshot().Score; got != 1 {
		t.Fatalf("score = %d, want 1", got)
	}
}

func TestHitAtUsesTargetRadius(t *testing.T) {
	st := newStarted(t, Settings{Duration: time.Second, Tick: time.Second, Targets: 1})
	defer st.Skip()
	st.BeginRound()
	target := st.Snapshot().Targets[0]
	if st.HitAt(target.X+target.Radius*3, target.Y) {
		t.Fatalf("miss outside the radius was counted")
	}
	if !st.HitAt(target.X, target.Y) {
		t.Fatalf("hit at target centre rejected")
	}
}

func TestHitsBeforeRoundAreIgnored(t *testing.T) {
	st := newStarted(t, Settings{Duration: time.Second, Targets: 2})
	defer st.Skip()
	if st.Hit(1) || st.HitAt(0, 0) {
		t.Fatalf("hits before the round began must be ignored")
	}
	if snap := st.Snapshot(); snap.Phase != Ready || snap.Remaining != time.Second {
		t.Fatalf("unexpected ready snapshot %+v", snap)
	}
}

func TestSkipResolvesImmediatelyWithZero(t *testing.T) {
	st := newStarted(t, Settings{Duration: time.Hour, Tick: 5 * time.Millisecond, Targets: 4})
	st.BeginRound()
	st.Hit(st.Snapshot().Targets[0].ID)
	st.Skip()
	waitDone(t, st)
	res, _ := st.Result()
	if res.Reward != 0 || !res.Skipped {
		t.Fatalf("skip result = %+v, want zero reward", res)
	}
}

func TestNoMutationAfterResolution(t *testing.T) {
	st := newStarted(t, Settings{Duration: 30 * time.Millisecond, Tick: 2 * time.Millisecond, Targets: 6})
	st.BeginRound()
	ids := []int{}
	for _, target := range st.Snapshot().Targets {
		ids = append(ids, target.ID)
	}
	st.Hit(ids[0])
	waitDone(t, st)
	frozen := st.Snapshot()
	for _, id := range ids[1:] {
		if st.Hit(id) {
			t.Fatalf("late hit on %d was accepted", id)
		}
	}
	st.Skip()
	time.Sleep(20 * time.Millisecond)
	after := st.Snapshot()
	if after.Score != frozen.Score {
		t.Fatalf("score moved after resolution: %d -> %d", frozen.Score, after.Score)
	}
	for i := range after.Targets {
		if after.Targets[i] != frozen.Targets[i] {
			t.Fatalf("target %d moved after resolution", i)
		}
	}
	res, _ := st.Result()
	if res.Reward != 1 || res.Skipped {
		t.Fatalf("result changed after late events: %+v", res)
	}
}

func TestTicksMoveTargets(t *testing.T) {
	st := newStarted(t, Settings{Duration: time.Second, Tick: 2 * time.Millisecond, Targets: 2, Height: 4})
	defer st.Skip()
	st.BeginRound()
	before := st.Snapshot().Targets[0]
	time.Sleep(40 * time.Millisecond)
	after := st.Snapshot().Targets[0]
	if after.ID == before.ID && after.Y == before.Y {
		t.Fatalf("targets did not move on ticks")
	}
}

func TestBeginRoundRequiresStart(t *testing.T) {
	st := New()
	if st.BeginRound() {
		t.Fatalf("round must not begin before Start")
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer st.Skip()
	if !st.BeginRound() {
		t.Fatalf("round should begin after Start")
	}
	if st.BeginRound() {
		t.Fatalf("round must not begin twice")
	}
}
