// Package ledger keeps the persisted reward counter shared by every stage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kingrea/portal/internal/storage"
)

// ErrNegativeAmount is returned when Add is asked to subtract.
var ErrNegativeAmount = errors.New("ledger: amount must be non-negative")

// Ledger is a non-negative counter persisted under a single key. Every Add
// re-reads the stored value, adds, and writes it back (last write wins).
type Ledger struct {
	mu    sync.Mutex
	store storage.KeyValueStore
	key   string
	total int64
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithKey stores the counter under key instead of storage.KeyCoins.
func WithKey(key string) Option {
	return func(l *Ledger) {
		if strings.TrimSpace(key) != "" {
			l.key = key
		}
	}
}

// Open loads the current counter from store.
func Open(ctx context.Context, store storage.KeyValueStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger: store is required")
	}
	l := &Ledger{store: store, key: storage.KeyCoins}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	total, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	l.total = total
	return l, nil
}

// Add credits amount and returns the new total.
func (l *Ledger) Add(ctx context.Context, amount int) (int64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.load(ctx)
	if err != nil {
		return l.total, err
	}
	next := current + int64(amount)
	if err := l.store.Put(ctx, l.key, []byte(strconv.FormatInt(next, 10))); err != nil {
		return l.total, fmt.Errorf("ledger: save: %w", err)
	}
	l.total = next
	return next, nil
}

// Total returns the last known counter value.
func (l *Ledger) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *Ledger) load(ctx context.Context) (int64, error) {
	raw, err := l.store.Get(ctx, l.key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: load: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: parse %q: %w", text, err)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}
