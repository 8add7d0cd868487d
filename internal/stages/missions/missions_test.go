package missions

import (
	"context"
	"testing"
)

func threeMissions() []Mission {
	return []Mission{
		{Title: "One", Choices: []Choice{{Label: "a", Reward: 3}, {Label: "b", Reward: 0}}},
		{Title: "Two", Choices: []Choice{{Label: "a", Reward: 5}}},
		{Title: "Three", Choices: []Choice{{Label: "a", Reward: 2}, {Label: "b", Reward: 1}}},
	}
}

func started(t *testing.T, list []Mission) *Stage {
	t.Helper()
	st, err := New(list)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := st.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return st
}

func TestChooseThenSkipKeepsOnlyFirstReward(t *testing.T) {
	st := started(t, threeMissions())
	if !st.Choose(0) {
		t.Fatalf("choice rejected")
	}
	st.Skip()
	<-st.Done()
	res, err := st.Result()
	if err != nil {
		t.Fatalf("result error: %v", err)
	}
	if res.Reward != 3 || !res.Skipped {
		t.Fatalf("result = %+v, want reward 3 skipped", res)
	}
}

func TestAllMissionsSumRewards(t *testing.T) {
	st := started(t, threeMissions())
	for _, pick := range []int{0, 0, 1} {
		if !st.Choose(pick) {
			t.Fatalf("choice %d rejected", pick)
		}
	}
	select {
	case <-st.Done():
	default:
		t.Fatalf("stage should resolve after the last mission")
	}
	res, _ := st.Result()
	if res.Reward != 9 || res.Skipped {
		t.Fatalf("result = %+v, want 9", res)
	}
	if st.Choose(0) {
		t.Fatalf("choices after resolution must be ignored")
	}
	st.Skip()
	if again, _ := st.Result(); again != res {
		t.Fatalf("result changed after late skip: %+v", again)
	}
}

func TestOutOfRangeChoiceIgnored(t *testing.T) {
	st := started(t, threeMissions())
	defer st.Skip()
	if st.Choose(5) || st.Choose(-1) {
		t.Fatalf("invalid option must be ignored")
	}
	snap := st.Snapshot()
	if snap.Index != 0 || snap.Accrued != 0 || snap.Current == nil || snap.Current.Title != "One" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestImmediateSkipResolvesZero(t *testing.T) {
	st := started(t, threeMissions())
	st.Skip()
	res, _ := st.Result()
	if res.Reward != 0 || !res.Skipped {
		t.Fatalf("result = %+v", res)
	}
	if st.Snapshot().Current != nil {
		t.Fatalf("resolved stage should not expose a current mission")
	}
}

func TestValidationAndDefaults(t *testing.T) {
	if _, err := New([]Mission{{Title: "bad", Choices: []Choice{{Reward: -1}}}}); err == nil {
		t.Fatalf("negative reward should fail validation")
	}
	if _, err := New([]Mission{{Title: "empty"}}); err == nil {
		t.Fatalf("mission without choices should fail validation")
	}
	st, err := New(nil)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if st.Snapshot().Total != len(Defaults()) {
		t.Fatalf("nil list should use defaults")
	}
}
