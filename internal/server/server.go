// Package server exposes the round, wager, capture and settlement API over
// HTTP, plus a WebSocket feed of lifecycle events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/server/handler"
	"github.com/alanyoungcy/biathlonbet/internal/server/middleware"
	"github.com/alanyoungcy/biathlonbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // guards host routes; empty disables authentication
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Rounds   *handler.RoundHandler
	Wagers   *handler.WagerHandler
	Captures *handler.CaptureHandler
	Settle   *handler.SettleHandler
	Audit    *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Host routes (round administration, captures, settlement, audit) require
// the API key; bettor routes are public. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	host := middleware.Auth(cfg.APIKey)
	hostFunc := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, host(fn))
	}

	// Public endpoints.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/rounds/active", handlers.Rounds.GetActive)
	mux.HandleFunc("GET /api/rounds/latest", handlers.Rounds.GetLatest)
	mux.HandleFunc("GET /api/rounds/{id}", handlers.Rounds.GetRound)
	mux.HandleFunc("GET /api/rounds/{id}/results", handlers.Rounds.GetResults)
	mux.HandleFunc("GET /api/rounds/{id}/wagers", handlers.Wagers.ListWagers)
	mux.HandleFunc("POST /api/rounds/{id}/wagers", handlers.Wagers.PlaceWager)

	// Host endpoints.
	hostFunc("POST /api/rounds", handlers.Rounds.CreateRound)
	hostFunc("POST /api/rounds/{id}/close", handlers.Rounds.CloseBetting)
	hostFunc("POST /api/rounds/{id}/captures", handlers.Captures.UploadCapture)
	hostFunc("GET /api/rounds/{id}/captures", handlers.Captures.ListCaptures)
	hostFunc("GET /api/rounds/{id}/captures/{capture}/image", handlers.Captures.GetCaptureImage)
	hostFunc("POST /api/rounds/{id}/settle", handlers.Settle.Settle)
	if handlers.Audit != nil {
		hostFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
