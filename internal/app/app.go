// Package app provides the top-level application lifecycle management for
// the allocator service. It wires together every dependency (stores,
// caches, the signing key, the allocation engine, notifications, and the
// HTTP server) and runs a single operating mode: serve.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allocatorhq/compactd/internal/config"
)

// shutdownTimeout bounds how long Run waits for in-flight requests to
// finish once ctx is cancelled.
const shutdownTimeout = 15 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server, and blocks until ctx
// is cancelled. Cleanup functions registered while wiring are run by Close,
// not when Run returns.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if _, err := deps.ChainCache.Refresh(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial chain cache refresh failed; continuing with an empty cache",
			slog.String("error", err.Error()))
	}

	if deps.Archiver != nil {
		go a.runArchivalLoop(ctx, deps)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- deps.Server.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runArchivalLoop periodically exports compacts retired longer than the
// configured retention window. It runs until ctx is cancelled.
func (a *App) runArchivalLoop(ctx context.Context, deps *Dependencies) {
	interval := time.Duration(a.cfg.S3.ArchiveIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.S3.RetentionHours) * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			count, err := deps.Archiver.ArchiveCompacts(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archival export failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "archived retired compacts", slog.Int64("count", count))
			}
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
