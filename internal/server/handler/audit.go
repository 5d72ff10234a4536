package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/barterloop/barterloop/internal/domain"
)

// AuditReader defines the read method that the audit handler requires.
type AuditReader interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit log endpoint.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given store and logger.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// ListEvents returns recent trade lifecycle events, newest first.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list audit events")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
