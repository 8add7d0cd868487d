package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/storage"
)

// Defaults printed when the project leaves them blank.
const (
	DefaultTitle   = "Certificate of Passage"
	DefaultMessage = "For crossing every stage of the portal with courage, curiosity and a steady hand."
)

// Certificate renders and stores the end-of-flow certificate. It implements
// orchestrator.Generator.
type Certificate struct {
	store     storage.KeyValueStore
	exportDir string
	assetPath string
	title     string
	message   string
	player    string
	logger    *slog.Logger
	now       func() time.Time
}

var _ orchestrator.Generator = (*Certificate)(nil)

// Option customizes a Certificate generator.
type Option func(*Certificate)

// WithExportDir writes a PNG copy into dir.
func WithExportDir(dir string) Option {
	return func(c *Certificate) { c.exportDir = strings.TrimSpace(dir) }
}

// WithAsset embeds the image at path as the certificate token.
func WithAsset(path string) Option {
	return func(c *Certificate) { c.assetPath = strings.TrimSpace(path) }
}

// WithText overrides the title and message.
func WithText(title, message string) Option {
	return func(c *Certificate) {
		if t := strings.TrimSpace(title); t != "" {
			c.title = t
		}
		if m := strings.TrimSpace(message); m != "" {
			c.message = m
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Certificate) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the issue date source.
func WithClock(now func() time.Time) Option {
	return func(c *Certificate) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCertificate builds a generator for player.
func NewCertificate(store storage.KeyValueStore, player string, opts ...Option) (*Certificate, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact: store is required")
	}
	c := &Certificate{
		store:   store,
		title:   DefaultTitle,
		message: DefaultMessage,
		player:  strings.TrimSpace(player),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	if c.player == "" {
		c.player = "Traveller"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ExportPath is where the PNG copy is written, or "" when exporting is off.
func (c *Certificate) ExportPath() string {
	if c.exportDir == "" {
		return ""
	}
	return filepath.Join(c.exportDir, FileName)
}

// Generate renders the certificate for a completed session, stores it under
// storage.KeyCertificate and exports the PNG copy.
func (c *Certificate) Generate(ctx context.Context, s orchestrator.Session) error {
	issued := s.FinishedAt
	if issued.IsZero() {
		issued = c.now()
	}
	content := Content{
		Title:   c.title,
		Player:  c.player,
		Message: c.message,
		Coins:   s.Total,
		Issued:  issued,
	}
	img, err := Render(content, c.loadToken())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("artifact: encode png: %w", err)
	}
	if err := c.store.Put(ctx, storage.KeyCertificate, buf.Bytes()); err != nil {
		return fmt.Errorf("artifact: store certificate: %w", err)
	}
	if path := c.ExportPath(); path != "" {
		if err := writeFileAtomic(path, buf.Bytes()); err != nil {
			return fmt.Errorf("artifact: export certificate: %w", err)
		}
	}
	c.logger.Info("certificate generated", "session", s.ID, "coins", s.Total, "bytes", buf.Len(), "path", c.ExportPath())
	return nil
}

// loadToken decodes the optional token image. Failures are logged and the
// certificate is rendered without it.
func (c *Certificate) loadToken() image.Image {
	if c.assetPath == "" {
		return nil
	}
	f, err := os.Open(c.assetPath)
	if err != nil {
		c.logger.Warn("certificate token unavailable", "path", c.assetPath, "err", err)
		return nil
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		c.logger.Warn("certificate token undecodable", "path", c.assetPath, "err", err)
		return nil
	}
	return img
}

// Inspect reports on the stored certificate.
func (c *Certificate) Inspect(ctx context.Context) Info {
	info := Info{Path: c.ExportPath()}
	data, err := c.store.Get(ctx, storage.KeyCertificate)
	if errors.Is(err, storage.ErrNotFound) {
		info.State = StateMissing
		return info
	}
	if err != nil {
		info.State, info.Err = StateError, err
		return info
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		info.State, info.Err = StateError, fmt.Errorf("artifact: stored certificate is not a png: %w", err)
		return info
	}
	info.State = StateReady
	info.Bytes = len(data)
	info.Width, info.Height = cfg.Width, cfg.Height
	if info.Path != "" {
		if st, err := os.Stat(info.Path); err == nil {
			info.UpdatedAt = st.ModTime()
		}
	}
	return info
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".certificate-*.png")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
