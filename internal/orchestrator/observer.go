package orchestrator

import "github.com/kingrea/portal/internal/stage"

// Observer learns about sequence progress. Calls are made from the goroutine
// running RunSequence and must not block for long.
type Observer interface {
	StageStarted(index int, st stage.Stage)
	StageResolved(index int, res stage.Result, total int64)
	SequenceFinished(s Session, err error)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnStageStarted     func(index int, st stage.Stage)
	OnStageResolved    func(index int, res stage.Result, total int64)
	OnSequenceFinished func(s Session, err error)
}

func (f ObserverFuncs) StageStarted(index int, st stage.Stage) {
	if f.OnStageStarted != nil {
		f.OnStageStarted(index, st)
	}
}

func (f ObserverFuncs) StageResolved(index int, res stage.Result, total int64) {
	if f.OnStageResolved != nil {
		f.OnStageResolved(index, res, total)
	}
}

func (f ObserverFuncs) SequenceFinished(s Session, err error) {
	if f.OnSequenceFinished != nil {
		f.OnSequenceFinished(s, err)
	}
}

func (o *Orchestrator) notifyStarted(index int, st stage.Stage) {
	for _, obs := range o.observers {
		obs.StageStarted(index, st)
	}
}

func (o *Orchestrator) notifyResolved(index int, res stage.Result, total int64) {
	for _, obs := range o.observers {
		obs.StageResolved(index, res, total)
	}
}

func (o *Orchestrator) notifyFinished(s Session, err error) {
	for _, obs := range o.observers {
		obs.SequenceFinished(s, err)
	}
}
