package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterloop/barterloop/internal/domain"
)

// ProofStore implements domain.ProofStore using PostgreSQL.
type ProofStore struct {
	pool *pgxpool.Pool
}

// NewProofStore creates a new ProofStore backed by the given connection pool.
func NewProofStore(pool *pgxpool.Pool) *ProofStore {
	return &ProofStore{pool: pool}
}

// Create inserts a proof record.
func (s *ProofStore) Create(ctx context.Context, proof *domain.Proof) error {
	const query = `
		INSERT INTO trade_proofs (id, trade_id, uploader, blob_key, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		proof.ID, proof.TradeID, proof.Uploader,
		proof.BlobKey, proof.ContentType, proof.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert proof %s: %w", proof.ID, err)
	}
	return nil
}

// ListByTrade returns all proofs attached to a trade, oldest first.
func (s *ProofStore) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]domain.Proof, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, trade_id, uploader, blob_key, content_type, created_at
		FROM trade_proofs WHERE trade_id = $1
		ORDER BY created_at ASC`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proofs: %w", err)
	}
	defer rows.Close()

	var proofs []domain.Proof
	for rows.Next() {
		var p domain.Proof
		if err := rows.Scan(&p.ID, &p.TradeID, &p.Uploader, &p.BlobKey, &p.ContentType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan proof: %w", err)
		}
		proofs = append(proofs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proofs rows: %w", err)
	}
	return proofs, nil
}
