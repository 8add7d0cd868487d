package stage

import (
	"context"
	"errors"
	"sync"
)

// Completion is a single-resolution result holder. The first Resolve or Fail
// wins; later calls are ignored and report false.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result Result
	err    error
}

// NewCompletion returns an unresolved completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve stores r and closes Done.
func (c *Completion) Resolve(r Result) bool {
	resolved := false
	c.once.Do(func() {
		c.result = r
		resolved = true
		close(c.done)
	})
	return resolved
}

// Fail stores err and closes Done.
func (c *Completion) Fail(err error) bool {
	if err == nil {
		err = errors.New("stage: failed")
	}
	resolved := false
	c.once.Do(func() {
		c.err = err
		resolved = true
		close(c.done)
	})
	return resolved
}

// Done is closed once the completion resolves.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether Resolve or Fail has happened.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Result returns the stored outcome. Before resolution it returns the zero
// Result and a nil error.
func (c *Completion) Result() (Result, error) {
	if !c.Resolved() {
		return Result{}, nil
	}
	return c.result, c.err
}

// Wait blocks until the completion resolves or ctx ends.
func (c *Completion) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
