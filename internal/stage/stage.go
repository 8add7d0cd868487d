// Package stage defines the contract shared by every interactive stage of the
// portal flow: identity, a single-resolution completion primitive, and the
// factory registry used to assemble a sequence from configuration.
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyStarted is returned when Start is called twice on one stage.
var ErrAlreadyStarted = errors.New("stage: already started")

// Info describes a stage's identity.
type Info struct {
	ID          string
	Name        string
	Description string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("stage: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("stage: name is required for %s", i.ID)
	}
	return nil
}

// Result is the value a stage resolves with. Unit results carry no reward.
type Result struct {
	StageID string
	Reward  int
	Unit    bool
	Skipped bool
	Detail  string
}

// Points returns the reward contributed to the ledger (0 for unit results).
func (r Result) Points() int {
	if r.Unit || r.Reward < 0 {
		return 0
	}
	return r.Reward
}

// Stage is implemented by every interactive unit of the flow.
//
// Start begins the stage and returns promptly; an error means the stage
// could not be set up and will never resolve. Done is closed exactly once,
// after which Result reports the outcome. Skip resolves the stage with its
// default result and is a no-op once resolved.
type Stage interface {
	Info() Info
	Start(ctx context.Context) error
	Skip()
	Done() <-chan struct{}
	Result() (Result, error)
}

// Base provides common plumbing for stages: identity, the completion
// primitive and a per-run context that is cancelled on resolution.
type Base struct {
	info Info
	*Completion

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewBase seeds the helper with stage info.
func NewBase(info Info) *Base {
	return &Base{info: info, Completion: NewCompletion()}
}

// Info implements Stage.Info.
func (b *Base) Info() Info {
	return b.info
}

// Begin marks the stage as started and derives the run context. The context
// is cancelled as soon as the stage resolves or fails.
func (b *Base) Begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil, ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.started = true
	b.cancel = cancel
	return runCtx, nil
}

// Started reports whether Begin succeeded.
func (b *Base) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Finish resolves the stage with r, stamping the stage ID, and cancels the
// run context. It returns false if the stage had already resolved.
func (b *Base) Finish(r Result) bool {
	r.StageID = b.info.ID
	ok := b.Completion.Resolve(r)
	if ok {
		b.stop()
	}
	return ok
}

// Abort fails the stage with err and cancels the run context.
func (b *Base) Abort(err error) bool {
	ok := b.Completion.Fail(fmt.Errorf("stage %s: %w", b.info.ID, err))
	if ok {
		b.stop()
	}
	return ok
}

func (b *Base) stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
