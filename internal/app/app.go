// Package app provides the top-level application lifecycle for the
// biathlonbet service. It wires together all dependencies (stores, caches,
// blob storage, services and notifications) and runs the configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/biathlonbet/internal/config"
)

// Options carries command-line inputs that are not part of the config file.
type Options struct {
	// ImagePath is the still image classified in classify mode.
	ImagePath string
	// Out receives classify mode output. Defaults to stdout.
	Out io.Writer
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *App {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires the dependencies the mode needs,
// runs it, and blocks until it finishes or the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("store", a.cfg.Store.Driver),
	)

	mode := strings.ToLower(a.cfg.Mode)
	if mode == "classify" {
		// Classification of a still needs no stores or caches.
		return a.ClassifyMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "server":
		return a.ServerMode(ctx, deps)
	case "migrate":
		return a.MigrateMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
