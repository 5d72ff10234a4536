package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
)

// ProofService handles photo proofs satisfying the photos-required security
// constraint. Image bytes go to blob storage, provenance rows to the proof
// store. The blob upload happens before the row insert; an orphaned blob from
// a failed insert is harmless and never referenced.
type ProofService struct {
	trades domain.TradeStore
	proofs domain.ProofStore
	writer domain.BlobWriter
	reader domain.BlobReader
	logger *slog.Logger
}

// NewProofService creates a ProofService with the given dependencies.
func NewProofService(
	trades domain.TradeStore,
	proofs domain.ProofStore,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	logger *slog.Logger,
) *ProofService {
	return &ProofService{
		trades: trades,
		proofs: proofs,
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "proof_service")),
	}
}

// Upload stores a proof photo for an in-flight trade. Only participants may
// upload, only between acceptance and completion, and only when the trade's
// security snapshot demands photos.
func (s *ProofService) Upload(ctx context.Context, tradeID, uploader uuid.UUID, data io.Reader, contentType string) (*domain.Proof, error) {
	if contentType == "" {
		return nil, fmt.Errorf("proof: content type required: %w", domain.ErrInvalidArgument)
	}

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(uploader) {
		return nil, fmt.Errorf("proof: trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
	}
	switch trade.Status {
	case domain.TradeStatusAccepted, domain.TradeStatusSecured, domain.TradeStatusShipped:
	default:
		return nil, fmt.Errorf("proof: trade %s: cannot attach proof in %s: %w",
			tradeID, trade.Status, domain.ErrConflict)
	}
	if trade.Security == nil || !trade.Security.PhotosRequired {
		return nil, fmt.Errorf("proof: trade %s: snapshot demands no photos: %w",
			tradeID, domain.ErrConflict)
	}

	proof := &domain.Proof{
		ID:          uuid.New(),
		TradeID:     tradeID,
		Uploader:    uploader,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	proof.BlobKey = fmt.Sprintf("proofs/%s/%s", tradeID, proof.ID)

	if err := s.writer.Put(ctx, proof.BlobKey, data, contentType); err != nil {
		return nil, fmt.Errorf("proof: upload blob: %w", err)
	}
	if err := s.proofs.Create(ctx, proof); err != nil {
		return nil, fmt.Errorf("proof: record: %w", err)
	}

	s.logger.InfoContext(ctx, "proof uploaded",
		slog.String("trade_id", tradeID.String()),
		slog.String("proof_id", proof.ID.String()),
	)
	return proof, nil
}

// ListByTrade returns the proof records attached to a trade.
func (s *ProofService) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]domain.Proof, error) {
	return s.proofs.ListByTrade(ctx, tradeID)
}

// Open streams a stored proof image back from blob storage.
func (s *ProofService) Open(ctx context.Context, proof *domain.Proof) (io.ReadCloser, error) {
	rc, err := s.reader.Get(ctx, proof.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("proof: open blob %s: %w", proof.BlobKey, err)
	}
	return rc, nil
}
