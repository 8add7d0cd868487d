// Package eventbridge carries orchestrator progress to interested readers
// (the terminal UI) over bounded channels.
package eventbridge

import (
	"time"

	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/stage"
)

// Type names an event kind.
type Type string

const (
	TypeStageStarted     Type = "stage.started"
	TypeStageResolved    Type = "stage.resolved"
	TypeSequenceFinished Type = "sequence.finished"
)

// Event is one progress notification. Stage is set for stage.started,
// Result and Total for stage.resolved, Session and Err for sequence.finished.
type Event struct {
	Type     Type
	Sequence int64
	Time     time.Time
	Index    int
	Stage    stage.Stage
	Result   stage.Result
	Total    int64
	Session  orchestrator.Session
	Err      error
}

// critical events are never dropped in favour of other events.
func (e Event) critical() bool {
	return e.Type == TypeSequenceFinished || e.Type == TypeStageStarted
}
