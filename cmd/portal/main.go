// cmd/portal/main.go
//
// This is the entry point for the portal.
// Running `portal` from any directory opens (or creates) .portal/ there and
// launches the terminal UI.
//
// Flow:
// 1. Load .env and the project config
// 2. Open logging, telemetry and storage
// 3. Register the built-in stages and run the TUI until the user quits

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/kingrea/portal/internal/artifact"
	"github.com/kingrea/portal/internal/config"
	"github.com/kingrea/portal/internal/ledger"
	"github.com/kingrea/portal/internal/logbook"
	"github.com/kingrea/portal/internal/logging"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/stages"
	"github.com/kingrea/portal/internal/storage"
	"github.com/kingrea/portal/internal/storage/sqlite"
	"github.com/kingrea/portal/internal/telemetry"
	"github.com/kingrea/portal/internal/tui"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	if handleSolveCommand() {
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; only a malformed one is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env: %v\n", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	if err := config.InitPortalDir(cwd); err != nil {
		return fmt.Errorf("initializing .portal directory: %w", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:    cfg.TelemetryEndpoint(),
		Insecure:    cfg.Env.OTLPInsecure,
		ServiceName: "portal",
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("storage close failed", "error", err)
		}
	}()

	led, err := ledger.Open(ctx, store)
	if err != nil {
		return err
	}
	registry := stage.NewRegistry()
	if err := stages.RegisterBuiltins(registry, cfg, logger.Logger); err != nil {
		return err
	}
	cert, err := artifact.NewCertificate(store, cfg.PlayerName(),
		artifact.WithExportDir(cfg.ArtifactsDir()),
		artifact.WithAsset(cfg.AssetPath()),
		artifact.WithText(cfg.Project.Artifact.Title, cfg.Project.Artifact.Message),
		artifact.WithLogger(logger.Logger),
	)
	if err != nil {
		return err
	}
	journey, err := logbook.New(filepath.Join(cfg.LogsDir(), "journey.log"))
	if err != nil {
		logger.Warn("journey log unavailable", "error", err)
		journey = nil
	}

	app, err := tui.NewApp(tui.Services{
		Config:      cfg,
		Registry:    registry,
		Ledger:      led,
		Certificate: cert,
		Sessions:    store,
		Logbook:     journey,
		Logger:      logger.Logger,
	}, tui.WithContext(ctx))
	if err != nil {
		return err
	}
	logger.Info("portal started", "version", version, "stages", cfg.StageIDs(), "coins", led.Total())

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()
	if err := app.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("sequence shutdown", "error", err)
	}
	logger.Info("portal closed", "coins", led.Total())
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", runErr)
	}
	return nil
}

type portalStore interface {
	storage.KeyValueStore
	storage.SessionStore
}

// openStorage opens the sqlite database, or an in-memory store when the
// configured path is ":memory:".
func openStorage(ctx context.Context, cfg *config.Config) (portalStore, func() error, error) {
	path := cfg.DatabasePath()
	if path == "" {
		return storage.NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}
