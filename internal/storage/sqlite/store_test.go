package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/portal/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKeyValueRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, storage.KeyCoins)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Put(ctx, storage.KeyCoins, []byte("3")))
	require.NoError(t, store.Put(ctx, storage.KeyCoins, []byte("8")))
	value, err := store.Get(ctx, storage.KeyCoins)
	require.NoError(t, err)
	assert.Equal(t, "8", string(value))

	assert.Error(t, store.Put(ctx, "  ", []byte("x")))
}

func TestReopenKeepsDataAndSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.db")
	ctx := context.Background()
	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, storage.KeyCertificate, []byte{0x89, 'P', 'N', 'G'}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	value, err := second.Get(ctx, storage.KeyCertificate)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, value)
}

func TestSessionHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateSession(ctx, storage.SessionRecord{ID: "older", StartedAt: base, Status: "running"}))
	require.NoError(t, store.CreateSession(ctx, storage.SessionRecord{ID: "newer", StartedAt: base.Add(time.Minute), Status: "running"}))
	require.NoError(t, store.AppendStage(ctx, "newer", storage.StageRecord{Index: 0, StageID: "coin-rush", Reward: 5, FinishedAt: base.Add(2 * time.Minute)}))
	require.NoError(t, store.AppendStage(ctx, "newer", storage.StageRecord{Index: 1, StageID: "portal-match", Unit: true, Skipped: true, Detail: "draw"}))
	require.NoError(t, store.FinishSession(ctx, "newer", "complete", 5, "", base.Add(3*time.Minute)))
	require.ErrorIs(t, store.FinishSession(ctx, "missing", "complete", 0, "", time.Time{}), storage.ErrNotFound)

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	newest := sessions[0]
	assert.Equal(t, "newer", newest.ID)
	assert.Equal(t, "complete", newest.Status)
	assert.EqualValues(t, 5, newest.Total)
	assert.Equal(t, base.Add(3*time.Minute), newest.FinishedAt)
	require.Len(t, newest.Stages, 2)
	assert.Equal(t, "coin-rush", newest.Stages[0].StageID)
	assert.Equal(t, 5, newest.Stages[0].Reward)
	assert.True(t, newest.Stages[1].Unit)
	assert.True(t, newest.Stages[1].Skipped)
	assert.Equal(t, "draw", newest.Stages[1].Detail)
	assert.True(t, sessions[1].FinishedAt.IsZero())

	_, err = store.ListSessions(ctx, 0)
	assert.Error(t, err)
}
