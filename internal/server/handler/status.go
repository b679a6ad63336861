package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// ActiveRoundReader returns the round currently OPEN or LIVE.
type ActiveRoundReader interface {
	Active(ctx context.Context) (domain.RoundSummary, error)
}

// StatusHandler serves the backend status for dashboards.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	rounds    ActiveRoundReader
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, rounds ActiveRoundReader, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, rounds: rounds, logger: logHandler(logger, "status")}
}

// GetStatus responds with the running mode, uptime and the active round, if
// any.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"active_round":   nil,
	}
	active, err := h.rounds.Active(r.Context())
	switch {
	case err == nil:
		resp["active_round"] = active
	case errors.Is(err, domain.ErrNotFound):
	default:
		writeServiceError(w, r, h.logger, "failed to read active round", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
