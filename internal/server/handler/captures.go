package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/alanyoungcy/biathlonbet/internal/capture"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/service"
)

// RefereeService defines the methods that the capture handler requires from
// the service layer.
type RefereeService interface {
	Capture(ctx context.Context, roundID string, src capture.Source) (service.CaptureResult, error)
	Captures(ctx context.Context, roundID string) ([]domain.Capture, error)
	CaptureImage(ctx context.Context, roundID, captureID string) (io.ReadCloser, error)
}

// CaptureHandler serves the host's capture endpoints.
type CaptureHandler struct {
	referee RefereeService
	logger  *slog.Logger
}

// NewCaptureHandler creates a CaptureHandler.
func NewCaptureHandler(referee RefereeService, logger *slog.Logger) *CaptureHandler {
	return &CaptureHandler{referee: referee, logger: logHandler(logger, "captures")}
}

type listCapturesResponse struct {
	Captures []domain.Capture `json:"captures"`
}

// UploadCapture classifies an uploaded still of the board. The image is
// either the raw request body or the "image" part of a multipart form.
// POST /api/rounds/{id}/captures
func (h *CaptureHandler) UploadCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, capture.MaxImageBytes)

	body := io.Reader(r.Body)
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "multipart/form-data" {
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing image part: %v", err))
			return
		}
		defer file.Close()
		body = file
	}

	res, err := h.referee.Capture(r.Context(), pathParam(r, "id"), capture.ReaderSource{R: body})
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to classify capture", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListCaptures returns every capture taken for a round.
// GET /api/rounds/{id}/captures
func (h *CaptureHandler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	list, err := h.referee.Captures(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list captures", err)
		return
	}
	writeJSON(w, http.StatusOK, listCapturesResponse{Captures: list})
}

// GetCaptureImage streams the archived PNG of one capture.
// GET /api/rounds/{id}/captures/{capture}/image
func (h *CaptureHandler) GetCaptureImage(w http.ResponseWriter, r *http.Request) {
	rc, err := h.referee.CaptureImage(r.Context(), pathParam(r, "id"), pathParam(r, "capture"))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load capture image", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: stream capture image failed",
			slog.String("error", err.Error()),
		)
	}
}
