package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/barterloop/barterloop/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, from_user, to_user, requested_objects, offered_objects,
	status, message,
	risk_level, photos_required, secure_delivery_required, requires_escrow,
	requires_identity_verification,
	escrow_amount, escrow_status, escrow_created_at, escrow_expires_at,
	dispute_raised_by, dispute_reason, dispute_resolution, dispute_resolved_at,
	tracking_number, from_confirmed, to_confirmed,
	created_at, updated_at, accepted_at, secured_at, shipped_at, completed_at,
	cancelled_at, refused_at, disputed_at`

// rowScanner abstracts pgx.Row and pgx.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		t domain.Trade

		riskLevel        *string
		photos, secure   bool
		escrow, identity bool

		escrowAmount    *string
		escrowStatus    *string
		escrowCreatedAt *time.Time
		escrowExpiresAt *time.Time

		disputeRaisedBy   *uuid.UUID
		disputeReason     *string
		disputeResolution *string
		disputeResolvedAt *time.Time
	)

	err := row.Scan(
		&t.ID, &t.FromUser, &t.ToUser, &t.RequestedObjects, &t.OfferedObjects,
		&t.Status, &t.Message,
		&riskLevel, &photos, &secure, &escrow, &identity,
		&escrowAmount, &escrowStatus, &escrowCreatedAt, &escrowExpiresAt,
		&disputeRaisedBy, &disputeReason, &disputeResolution, &disputeResolvedAt,
		&t.TrackingNumber, &t.FromConfirmed, &t.ToConfirmed,
		&t.CreatedAt, &t.UpdatedAt, &t.AcceptedAt, &t.SecuredAt, &t.ShippedAt,
		&t.CompletedAt, &t.CancelledAt, &t.RefusedAt, &t.DisputedAt,
	)
	if err != nil {
		return nil, err
	}

	// A NULL risk level means the security snapshot was never taken.
	if riskLevel != nil {
		t.Security = &domain.Security{
			RiskLevel:                    domain.RiskLevel(*riskLevel),
			PhotosRequired:               photos,
			SecureDeliveryRequired:       secure,
			RequiresEscrow:               escrow,
			RequiresIdentityVerification: identity,
		}
	}

	if escrowStatus != nil && escrowAmount != nil {
		amount, err := decimal.NewFromString(*escrowAmount)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse escrow amount %q: %w", *escrowAmount, err)
		}
		t.Escrow = &domain.Escrow{
			Amount: amount,
			Status: domain.EscrowStatus(*escrowStatus),
		}
		if escrowCreatedAt != nil {
			t.Escrow.CreatedAt = *escrowCreatedAt
		}
		if escrowExpiresAt != nil {
			t.Escrow.ExpiresAt = *escrowExpiresAt
		}
	}

	if disputeRaisedBy != nil {
		t.Dispute = &domain.Dispute{
			RaisedBy:   *disputeRaisedBy,
			ResolvedAt: disputeResolvedAt,
		}
		if disputeReason != nil {
			t.Dispute.Reason = *disputeReason
		}
		if disputeResolution != nil {
			res := domain.DisputeResolution(*disputeResolution)
			t.Dispute.Resolution = &res
		}
	}

	return &t, nil
}

// tradeWriteArgs flattens a trade into the argument list shared by Create and
// Update. Keep in sync with tradeWriteCols.
func tradeWriteArgs(t *domain.Trade) []any {
	var (
		riskLevel        *string
		photos, secure   bool
		escrow, identity bool
	)
	if t.Security != nil {
		lvl := string(t.Security.RiskLevel)
		riskLevel = &lvl
		photos = t.Security.PhotosRequired
		secure = t.Security.SecureDeliveryRequired
		escrow = t.Security.RequiresEscrow
		identity = t.Security.RequiresIdentityVerification
	}

	var (
		escrowAmount    *string
		escrowStatus    *string
		escrowCreatedAt *time.Time
		escrowExpiresAt *time.Time
	)
	if t.Escrow != nil {
		amt := t.Escrow.Amount.String()
		escrowAmount = &amt
		st := string(t.Escrow.Status)
		escrowStatus = &st
		escrowCreatedAt = &t.Escrow.CreatedAt
		escrowExpiresAt = &t.Escrow.ExpiresAt
	}

	var (
		disputeRaisedBy   *uuid.UUID
		disputeReason     *string
		disputeResolution *string
		disputeResolvedAt *time.Time
	)
	if t.Dispute != nil {
		disputeRaisedBy = &t.Dispute.RaisedBy
		disputeReason = &t.Dispute.Reason
		if t.Dispute.Resolution != nil {
			res := string(*t.Dispute.Resolution)
			disputeResolution = &res
		}
		disputeResolvedAt = t.Dispute.ResolvedAt
	}

	return []any{
		t.ID, t.FromUser, t.ToUser, t.RequestedObjects, t.OfferedObjects,
		t.Status, t.Message,
		riskLevel, photos, secure, escrow, identity,
		escrowAmount, escrowStatus, escrowCreatedAt, escrowExpiresAt,
		disputeRaisedBy, disputeReason, disputeResolution, disputeResolvedAt,
		t.TrackingNumber, t.FromConfirmed, t.ToConfirmed,
		t.CreatedAt, t.UpdatedAt, t.AcceptedAt, t.SecuredAt, t.ShippedAt,
		t.CompletedAt, t.CancelledAt, t.RefusedAt, t.DisputedAt,
	}
}

// Create inserts a new trade inside the transaction scope.
func (s *TradeStore) Create(ctx context.Context, tx pgx.Tx, trade *domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, from_user, to_user, requested_objects, offered_objects,
			status, message,
			risk_level, photos_required, secure_delivery_required,
			requires_escrow, requires_identity_verification,
			escrow_amount, escrow_status, escrow_created_at, escrow_expires_at,
			dispute_raised_by, dispute_reason, dispute_resolution, dispute_resolved_at,
			tracking_number, from_confirmed, to_confirmed,
			created_at, updated_at, accepted_at, secured_at, shipped_at,
			completed_at, cancelled_at, refused_at, disputed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
			$29, $30, $31, $32
		)`

	if _, err := tx.Exec(ctx, query, tradeWriteArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// GetForUpdate loads a trade under a row lock inside the scope.
func (s *TradeStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE id = $1 FOR UPDATE`

	trade, err := scanTrade(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get trade %s for update: %w", id, err)
	}
	return trade, nil
}

// Update rewrites the full mutable state of the trade inside the scope.
func (s *TradeStore) Update(ctx context.Context, tx pgx.Tx, trade *domain.Trade) error {
	const query = `
		UPDATE trades SET
			from_user = $2, to_user = $3,
			requested_objects = $4, offered_objects = $5,
			status = $6, message = $7,
			risk_level = $8, photos_required = $9, secure_delivery_required = $10,
			requires_escrow = $11, requires_identity_verification = $12,
			escrow_amount = $13, escrow_status = $14,
			escrow_created_at = $15, escrow_expires_at = $16,
			dispute_raised_by = $17, dispute_reason = $18,
			dispute_resolution = $19, dispute_resolved_at = $20,
			tracking_number = $21, from_confirmed = $22, to_confirmed = $23,
			created_at = $24, updated_at = $25, accepted_at = $26,
			secured_at = $27, shipped_at = $28, completed_at = $29,
			cancelled_at = $30, refused_at = $31, disputed_at = $32
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query, tradeWriteArgs(trade)...)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", trade.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: trade %s: %w", trade.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID loads a trade outside any transaction scope.
func (s *TradeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE id = $1`

	trade, err := scanTrade(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return trade, nil
}

// List returns trades matching the filter, newest first.
func (s *TradeStore) List(ctx context.Context, filter domain.TradeFilter, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.User != nil {
		switch filter.Direction {
		case "incoming":
			query += fmt.Sprintf(" AND to_user = $%d", argIdx)
		case "outgoing":
			query += fmt.Sprintf(" AND from_user = $%d", argIdx)
		default:
			query += fmt.Sprintf(" AND (from_user = $%d OR to_user = $%d)", argIdx, argIdx)
		}
		args = append(args, *filter.User)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}
