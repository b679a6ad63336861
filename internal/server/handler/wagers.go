package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/service"
)

// WagerService defines the methods that the wager handler requires from the
// service layer.
type WagerService interface {
	Place(ctx context.Context, roundID string, req service.PlaceWagerRequest) (domain.Wager, error)
	List(ctx context.Context, roundID string) ([]domain.Wager, error)
}

// WagerHandler serves wager endpoints.
type WagerHandler struct {
	wagers WagerService
	logger *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(wagers WagerService, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{wagers: wagers, logger: logHandler(logger, "wagers")}
}

type listWagersResponse struct {
	Wagers []domain.Wager `json:"wagers"`
}

// PlaceWager records a wager on an OPEN round.
// POST /api/rounds/{id}/wagers
func (h *WagerHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceWagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wager, err := h.wagers.Place(r.Context(), pathParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to place wager", err)
		return
	}
	writeJSON(w, http.StatusCreated, wager)
}

// ListWagers returns the wagers of a round in placement order.
// GET /api/rounds/{id}/wagers
func (h *WagerHandler) ListWagers(w http.ResponseWriter, r *http.Request) {
	wagers, err := h.wagers.List(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list wagers", err)
		return
	}
	writeJSON(w, http.StatusOK, listWagersResponse{Wagers: wagers})
}
