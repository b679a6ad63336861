package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/service"
)

// RoundService defines the methods that the round handler requires from the
// service layer.
type RoundService interface {
	Create(ctx context.Context, payout *decimal.Decimal) (domain.Round, error)
	CloseBetting(ctx context.Context, id string) (domain.Round, error)
	Get(ctx context.Context, id string) (domain.RoundSummary, error)
	Active(ctx context.Context) (domain.RoundSummary, error)
	Latest(ctx context.Context) (service.RoundResults, error)
	Results(ctx context.Context, id string) (service.RoundResults, error)
}

// RoundHandler serves the round lifecycle endpoints.
type RoundHandler struct {
	rounds RoundService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(rounds RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{rounds: rounds, logger: logHandler(logger, "rounds")}
}

type createRoundRequest struct {
	Payout *decimal.Decimal `json:"payout"`
}

// CreateRound opens a new round. The payout defaults to the configured
// multiplier.
// POST /api/rounds
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	round, err := h.rounds.Create(r.Context(), req.Payout)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to create round", err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// CloseBetting locks wagers on an OPEN round, making it LIVE.
// POST /api/rounds/{id}/close
func (h *RoundHandler) CloseBetting(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.CloseBetting(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to close betting", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetActive returns the OPEN or LIVE round.
// GET /api/rounds/active
func (h *RoundHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.Active(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get active round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetLatest returns the most recently settled round and its wagers.
// GET /api/rounds/latest
func (h *RoundHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	res, err := h.rounds.Latest(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get latest round", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRound returns a round with its wager count.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetResults returns a round and every wager on it.
// GET /api/rounds/{id}/results
func (h *RoundHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.rounds.Results(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to get round results", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
