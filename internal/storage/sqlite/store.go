// Package sqlite provides the SQLite-backed keyed values and session history
// used by the portal.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/portal/internal/storage"
	"github.com/kingrea/portal/internal/storage/sqlite/migrations"
)

// Store implements storage.KeyValueStore and storage.SessionStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ storage.KeyValueStore = (*Store)(nil)
	_ storage.SessionStore  = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: ensure dir: %w", err)
	}
	dsn := "file:" + cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements storage.KeyValueStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	return value, nil
}

// Put implements storage.KeyValueStore.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("sqlite: key is required")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, key, value, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: put %s: %w", key, err)
	}
	return nil
}

// CreateSession implements storage.SessionStore.
func (s *Store) CreateSession(ctx context.Context, rec storage.SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("sqlite: session id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, started_at, status, total) VALUES (?, ?, ?, ?)
`, rec.ID, rec.StartedAt.UTC().UnixMilli(), rec.Status, rec.Total)
	if err != nil {
		return fmt.Errorf("sqlite: create session: %w", err)
	}
	return nil
}

// AppendStage implements storage.SessionStore.
func (s *Store) AppendStage(ctx context.Context, sessionID string, rec storage.StageRecord) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stage_results (session_id, idx, stage_id, reward, unit, skipped, detail, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, sessionID, rec.Index, rec.StageID, rec.Reward, rec.Unit, rec.Skipped, rec.Detail, rec.FinishedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: append stage: %w", err)
	}
	return nil
}

// FinishSession implements storage.SessionStore.
func (s *Store) FinishSession(ctx context.Context, sessionID, status string, total int64, errMsg string, finishedAt time.Time) error {
	if finishedAt.IsZero() {
		finishedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, total = ?, error = ?, finished_at = ? WHERE id = ?
`, status, total, errMsg, finishedAt.UTC().UnixMilli(), sessionID)
	if err != nil {
		return fmt.Errorf("sqlite: finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListSessions implements storage.SessionStore, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]storage.SessionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("sqlite: limit must be greater than zero")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, status, total, error
FROM sessions
ORDER BY started_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	records := make([]storage.SessionRecord, 0, limit)
	for rows.Next() {
		var (
			rec                 storage.SessionRecord
			started, finishedAt int64
		)
		if err := rows.Scan(&rec.ID, &started, &finishedAt, &rec.Status, &rec.Total, &rec.Error); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		if finishedAt > 0 {
			rec.FinishedAt = time.UnixMilli(finishedAt).UTC()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate sessions: %w", err)
	}
	// Release the single connection before the per-session stage queries.
	_ = rows.Close()
	for i := range records {
		stages, err := s.listStages(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Stages = stages
	}
	return records, nil
}

func (s *Store) listStages(ctx context.Context, sessionID string) ([]storage.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, stage_id, reward, unit, skipped, detail, finished_at
FROM stage_results
WHERE session_id = ?
ORDER BY idx
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list stages: %w", err)
	}
	defer rows.Close()
	var out []storage.StageRecord
	for rows.Next() {
		var (
			rec      storage.StageRecord
			finished int64
		)
		if err := rows.Scan(&rec.Index, &rec.StageID, &rec.Reward, &rec.Unit, &rec.Skipped, &rec.Detail, &finished); err != nil {
			return nil, fmt.Errorf("sqlite: scan stage: %w", err)
		}
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
