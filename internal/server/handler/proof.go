package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
)

// maxProofBytes caps a single proof photo upload at 20 MiB.
const maxProofBytes = 20 << 20

// ProofService defines the methods that the proof handler requires.
type ProofService interface {
	Upload(ctx context.Context, tradeID, uploader uuid.UUID, data io.Reader, contentType string) (*domain.Proof, error)
	ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]domain.Proof, error)
	Open(ctx context.Context, proof *domain.Proof) (io.ReadCloser, error)
}

// ProofHandler serves proof photo HTTP endpoints.
type ProofHandler struct {
	proofs ProofService
	logger *slog.Logger
}

// NewProofHandler creates a ProofHandler with the given service and logger.
func NewProofHandler(proofs ProofService, logger *slog.Logger) *ProofHandler {
	return &ProofHandler{
		proofs: proofs,
		logger: logger,
	}
}

// Upload stores a proof photo for a trade. The photo bytes are the request
// body; the Content-Type header carries the image type.
// POST /api/trades/{id}/proofs
func (h *ProofHandler) Upload(w http.ResponseWriter, r *http.Request) {
	tradeID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}
	actor, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxProofBytes)
	proof, err := h.proofs.Upload(r.Context(), tradeID, actor, body, r.Header.Get("Content-Type"))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "upload proof")
		return
	}

	writeJSON(w, http.StatusCreated, proof)
}

// ListByTrade returns the proof records attached to a trade.
// GET /api/trades/{id}/proofs
func (h *ProofHandler) ListByTrade(w http.ResponseWriter, r *http.Request) {
	tradeID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	proofs, err := h.proofs.ListByTrade(r.Context(), tradeID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list proofs")
		return
	}

	if proofs == nil {
		proofs = []domain.Proof{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"proofs": proofs})
}

// Download streams a proof photo back to the caller.
// GET /api/trades/{id}/proofs/{proofID}
func (h *ProofHandler) Download(w http.ResponseWriter, r *http.Request) {
	tradeID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}
	proofID, err := pathUUID(r, "proofID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid proof id")
		return
	}

	proofs, err := h.proofs.ListByTrade(r.Context(), tradeID)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "download proof")
		return
	}

	var proof *domain.Proof
	for i := range proofs {
		if proofs[i].ID == proofID {
			proof = &proofs[i]
			break
		}
	}
	if proof == nil {
		writeError(w, http.StatusNotFound, "proof not found")
		return
	}

	body, err := h.proofs.Open(r.Context(), proof)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "download proof")
		return
	}
	defer body.Close()

	if proof.ContentType != "" {
		w.Header().Set("Content-Type", proof.ContentType)
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream proof failed",
			slog.String("proof_id", proofID.String()),
			slog.String("error", err.Error()),
		)
	}
}
