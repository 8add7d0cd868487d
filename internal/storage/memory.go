package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process KeyValueStore and SessionStore. It backs tests
// and runs started with an empty storage path.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	sessions map[string]*SessionRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   map[string][]byte{},
		sessions: map[string]*SessionRecord{},
	}
}

// Get implements KeyValueStore.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements KeyValueStore.
func (m *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// CreateSession implements SessionStore.
func (m *MemoryStore) CreateSession(ctx context.Context, rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copyRec := rec
	copyRec.Stages = append([]StageRecord(nil), rec.Stages...)
	m.sessions[rec.ID] = &copyRec
	return nil
}

// AppendStage implements SessionStore.
func (m *MemoryStore) AppendStage(ctx context.Context, sessionID string, rec StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Stages = append(s.Stages, rec)
	return nil
}

// FinishSession implements SessionStore.
func (m *MemoryStore) FinishSession(ctx context.Context, sessionID, status string, total int64, errMsg string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.Total = total
	s.Error = errMsg
	s.FinishedAt = finishedAt
	return nil
}

// ListSessions implements SessionStore, newest first.
func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		rec := *s
		rec.Stages = append([]StageRecord(nil), s.Stages...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
