package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// AuditHandler exposes the lifecycle audit log to hosts.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logHandler(logger, "audit")}
}

// ListAudit returns audit entries newest first.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list audit log", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
