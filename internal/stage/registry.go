package stage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownStage is returned for IDs without a registered factory.
var ErrUnknownStage = errors.New("stage: unknown stage")

// Factory constructs a fresh stage for one run of the flow.
type Factory func() (Stage, error)

// Registry maps stage IDs to factories, remembering registration order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds factory under id. IDs must be unique and free of whitespace.
func (r *Registry) Register(id string, factory Factory) error {
	switch {
	case id == "":
		return errors.New("stage: id is required")
	case strings.ContainsFunc(id, isSpace):
		return fmt.Errorf("stage: id %q contains whitespace", id)
	case factory == nil:
		return fmt.Errorf("stage: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[id]; dup {
		return fmt.Errorf("stage: %s registered twice", id)
	}
	r.factories[id] = factory
	r.order = append(r.order, id)
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Resolve builds one stage. The built stage must report the ID it was
// registered under.
func (r *Registry) Resolve(id string) (Stage, error) {
	r.mu.RLock()
	factory := r.factories[id]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}
	st, err := factory()
	if err != nil {
		return nil, fmt.Errorf("stage: build %s: %w", id, err)
	}
	if st == nil {
		return nil, fmt.Errorf("stage: factory for %s returned nil", id)
	}
	info := st.Info()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if info.ID != id {
		return nil, fmt.Errorf("stage: factory for %s built %s", id, info.ID)
	}
	return st, nil
}

// Build turns an ordered ID list into fresh stages. Unknown IDs are all
// reported together before any stage is constructed.
func (r *Registry) Build(ids []string) ([]Stage, error) {
	var missing []string
	r.mu.RLock()
	for _, id := range ids {
		if r.factories[id] == nil {
			missing = append(missing, id)
		}
	}
	r.mu.RUnlock()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, strings.Join(missing, ", "))
	}

	out := make([]Stage, len(ids))
	for i, id := range ids {
		st, err := r.Resolve(id)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

// IDs lists registered IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
