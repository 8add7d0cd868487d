// Package storage declares the persisted records shared by the ledger, the
// orchestrator and the certificate generator.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a keyed value does not exist.
var ErrNotFound = errors.New("storage: not found")

// Well-known keys.
const (
	KeyCoins       = "mystic_coins"
	KeyCertificate = "mystic_cert"
)

// KeyValueStore persists opaque values under string keys (last write wins).
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// SessionRecord is one run of the stage sequence.
type SessionRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Total      int64
	Error      string
	Stages     []StageRecord
}

// StageRecord is one resolved stage inside a session.
type StageRecord struct {
	Index      int
	StageID    string
	Reward     int
	Unit       bool
	Skipped    bool
	Detail     string
	FinishedAt time.Time
}

// SessionStore persists session history.
type SessionStore interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	AppendStage(ctx context.Context, sessionID string, rec StageRecord) error
	FinishSession(ctx context.Context, sessionID, status string, total int64, errMsg string, finishedAt time.Time) error
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
}
