package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/biathlonbet/internal/settlement"
)

// SettlementService defines the method that the settle handler requires from
// the service layer.
type SettlementService interface {
	Settle(ctx context.Context, roundID, verdict string) (settlement.Result, error)
}

// SettleHandler serves the settlement endpoint.
type SettleHandler struct {
	settler SettlementService
	logger  *slog.Logger
}

// NewSettleHandler creates a SettleHandler.
func NewSettleHandler(settler SettlementService, logger *slog.Logger) *SettleHandler {
	return &SettleHandler{settler: settler, logger: logHandler(logger, "settle")}
}

type settleRequest struct {
	Verdict string `json:"verdict"`
}

// Settle closes out a LIVE round with the accepted verdict. Repeating the
// call on a settled round returns the stored outcome with already_settled.
// POST /api/rounds/{id}/settle
func (h *SettleHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Verdict == "" {
		writeError(w, http.StatusBadRequest, "verdict is required")
		return
	}
	res, err := h.settler.Settle(r.Context(), pathParam(r, "id"), req.Verdict)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to settle round", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
