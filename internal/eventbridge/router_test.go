package eventbridge

import (
	"errors"
	"testing"

	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/stage"
)

func TestRouterBuffersAndFlushes(t *testing.T) {
	router := NewRouter(WithSubscriberCapacity(4))
	router.StageResolved(0, stage.Result{StageID: "coin-rush", Reward: 5}, 5)
	router.StageResolved(1, stage.Result{StageID: "missions", Reward: 3}, 8)
	sub := router.Subscribe()
	defer sub.Close()
	got1 := <-sub.Events
	if got1.Result.StageID != "coin-rush" || got1.Sequence != 1 {
		t.Fatalf("expected first buffered event, got %+v", got1)
	}
	got2 := <-sub.Events
	if got2.Total != 8 || got2.Sequence != 2 {
		t.Fatalf("expected second buffered event, got %+v", got2)
	}
}

func TestRouterDropsIncomingProgressOnOverflow(t *testing.T) {
	router := NewRouter(WithSubscriberCapacity(1))
	sub := router.Subscribe()
	defer sub.Close()
	router.StageStarted(0, nil)
	router.StageResolved(0, stage.Result{Reward: 1}, 1)
	if got := <-sub.Events; got.Type != TypeStageStarted {
		t.Fatalf("expected queued start to survive, got %s", got.Type)
	}
	select {
	case got := <-sub.Events:
		t.Fatalf("unexpected extra event %s", got.Type)
	default:
	}
}

func TestRouterCriticalEventEvictsOldest(t *testing.T) {
	router := NewRouter(WithSubscriberCapacity(1))
	sub := router.Subscribe()
	defer sub.Close()
	router.StageResolved(0, stage.Result{Reward: 1}, 1)
	cause := errors.New("boom")
	router.SequenceFinished(orchestrator.Session{ID: "s"}, cause)
	got := <-sub.Events
	if got.Type != TypeSequenceFinished || !errors.Is(got.Err, cause) {
		t.Fatalf("expected finish event to replace progress, got %+v", got)
	}
}

func TestRouterSatisfiesObserverDuringRun(t *testing.T) {
	router := NewRouter()
	sub := router.Subscribe()
	var obs orchestrator.Observer = router
	obs.StageStarted(0, nil)
	obs.SequenceFinished(orchestrator.Session{ID: "s1", Total: 4}, nil)
	sub.Close()

	var types []Type
	for ev := range sub.Events {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != TypeStageStarted || types[1] != TypeSequenceFinished {
		t.Fatalf("unexpected event order %v", types)
	}
	// Publishing after close must not panic.
	obs.StageStarted(1, nil)
}
