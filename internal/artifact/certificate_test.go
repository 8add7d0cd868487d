package artifact

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/storage"
)

func writeToken(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{0x20, 0xd0, 0x90, 0xff})
		}
	}
	path := filepath.Join(dir, "token.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestGenerateStoresAndExports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.NewMemoryStore()
	cert, err := NewCertificate(store, "Mira",
		WithExportDir(filepath.Join(dir, "artifacts")),
		WithAsset(writeToken(t, dir)),
		WithText("", "Friends across every world."),
	)
	require.NoError(t, err)

	assert.Equal(t, StateMissing, cert.Inspect(ctx).State)

	session := orchestrator.Session{ID: "s1", Total: 12, FinishedAt: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, cert.Generate(ctx, session))

	data, err := store.Get(ctx, storage.KeyCertificate)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, cfg.Width)
	assert.Equal(t, Height, cfg.Height)

	exported, err := os.ReadFile(filepath.Join(dir, "artifacts", FileName))
	require.NoError(t, err)
	assert.Equal(t, data, exported)

	info := cert.Inspect(ctx)
	assert.Equal(t, StateReady, info.State)
	assert.Equal(t, len(data), info.Bytes)
	assert.False(t, info.UpdatedAt.IsZero())
}

func TestMissingAssetStillRenders(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cert, err := NewCertificate(store, "", WithAsset(filepath.Join(t.TempDir(), "nope.png")))
	require.NoError(t, err)
	require.NoError(t, cert.Generate(ctx, orchestrator.Session{Total: 0}))
	assert.Equal(t, StateReady, cert.Inspect(ctx).State)
	assert.Empty(t, cert.ExportPath())
}

func TestUndecodableAssetStillRenders(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "token.png")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0o644))
	cert, err := NewCertificate(storage.NewMemoryStore(), "Ren", WithAsset(bogus))
	require.NoError(t, err)
	assert.NoError(t, cert.Generate(context.Background(), orchestrator.Session{Total: 3}))
}

func TestStoredGarbageReportsError(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put(ctx, storage.KeyCertificate, []byte("garbage")))
	cert, err := NewCertificate(store, "Ren")
	require.NoError(t, err)
	info := cert.Inspect(ctx)
	assert.Equal(t, StateError, info.State)
	assert.Error(t, info.Err)
}

func TestRenderValidatesContent(t *testing.T) {
	_, err := Render(Content{Title: "T"}, nil)
	assert.Error(t, err)
	_, err = Render(Content{Title: "T", Player: "P", Coins: -1}, nil)
	assert.Error(t, err)
}

func TestWrapKeepsLinesWithinWidth(t *testing.T) {
	f, err := newFaces()
	require.NoError(t, err)
	lines := wrap(f.body, "one two three four five six seven eight nine ten eleven twelve", 200)
	require.Greater(t, len(lines), 1)
	for _, line := range lines {
		assert.NotEmpty(t, line)
	}
}
