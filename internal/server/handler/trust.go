package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
)

// TrustService defines the methods that the trust handler requires from the
// risk engine.
type TrustService interface {
	TrustScore(ctx context.Context, userID uuid.UUID) (int, error)
	AnalyzeRisk(ctx context.Context, fromID, toID uuid.UUID) (*domain.RiskAssessment, error)
}

// TrustHandler serves trust score and risk preview endpoints.
type TrustHandler struct {
	trust  TrustService
	logger *slog.Logger
}

// NewTrustHandler creates a TrustHandler with the given engine and logger.
func NewTrustHandler(trust TrustService, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{
		trust:  trust,
		logger: logger,
	}
}

// GetScore returns a user's current trust score.
// GET /api/users/{id}/trust
func (h *TrustHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	score, err := h.trust.TrustScore(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get trust score")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"score":   score,
	})
}

// PreviewRisk returns the risk assessment a trade between two users would
// receive if it were accepted right now. Useful for showing required
// security measures before either side commits.
// GET /api/risk?from=...&to=...
func (h *TrustHandler) PreviewRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := uuid.Parse(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from query parameter")
		return
	}
	to, err := uuid.Parse(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to query parameter")
		return
	}

	assessment, err := h.trust.AnalyzeRisk(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "preview risk")
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}
