package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/biathlonbet/internal/capture"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/server"
	"github.com/alanyoungcy/biathlonbet/internal/server/handler"
	"github.com/alanyoungcy/biathlonbet/internal/server/ws"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

// ServerMode runs the HTTP API and the WebSocket event hub until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
		slog.Bool("notify", deps.Notifier.Enabled()),
		slog.String("vision", vision.Backend),
	)

	svcs, err := buildServices(a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, startedAt, svcs.Rounds, a.logger),
		Rounds:   handler.NewRoundHandler(svcs.Rounds, a.logger),
		Wagers:   handler.NewWagerHandler(svcs.Wagers, a.logger),
		Captures: handler.NewCaptureHandler(svcs.Referee, a.logger),
		Settle:   handler.NewSettleHandler(svcs.Settlement, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; host routes are unauthenticated")
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// classifyOutput is the JSON document classify mode prints.
type classifyOutput struct {
	Image          string        `json:"image"`
	Verdict        string        `json:"verdict"`
	Centroid       *domain.Point `json:"centroid,omitempty"`
	MarkerVertices int           `json:"marker_vertices"`
	ZonesFound     []string      `json:"zones_found"`
	Reason         string        `json:"reason,omitempty"`
}

// ClassifyMode runs the referee once over a still image and writes the
// detection as JSON. It touches no stores.
func (a *App) ClassifyMode(ctx context.Context) error {
	if a.opts.ImagePath == "" {
		return errors.New("classify mode: no image given (use -image)")
	}
	vcfg, err := visionConfig(a.cfg.Vision)
	if err != nil {
		return fmt.Errorf("classify mode: %w", err)
	}

	img, err := capture.FileSource{Path: a.opts.ImagePath}.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("classify mode: %w", err)
	}

	det := vision.New(vcfg).Classify(img)
	out := classifyOutput{
		Image:          a.opts.ImagePath,
		Verdict:        string(det.Verdict),
		MarkerVertices: det.MarkerVertices,
		ZonesFound:     make([]string, 0, len(det.ZonesFound)),
	}
	if det.Centroid != nil {
		out.Centroid = &domain.Point{X: det.Centroid.X, Y: det.Centroid.Y}
	}
	for _, z := range det.ZonesFound {
		out.ZonesFound = append(out.ZonesFound, string(z))
	}
	if det.Reason != nil {
		out.Reason = det.Reason.Error()
	}

	a.logger.InfoContext(ctx, "classify: verdict",
		slog.String("image", a.opts.ImagePath),
		slog.String("verdict", out.Verdict),
		slog.String("vision", vision.Backend),
	)

	enc := json.NewEncoder(a.opts.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("classify mode: write output: %w", err)
	}
	return nil
}

// MigrateMode applies pending schema migrations and exits.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if deps.Migrate == nil {
		return errors.New("migrate mode: store driver has no migrations")
	}
	applied, err := deps.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	if len(applied) == 0 {
		a.logger.InfoContext(ctx, "migrate: schema up to date")
		return nil
	}
	for _, name := range applied {
		a.logger.InfoContext(ctx, "migrate: applied", slog.String("migration", name))
	}
	return nil
}
