package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barterloop/barterloop/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL. It reads trust
// snapshots and moves the outcome counters; everything else about a user
// belongs to the account subsystem.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByID returns the trust-relevant snapshot of a user.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, completed_trades, total_trades, violations,
		       identity_verified, created_at
		FROM users WHERE id = $1`, id,
	).Scan(
		&u.ID, &u.Username,
		&u.Stats.Completed, &u.Stats.Total, &u.Stats.Violations,
		&u.IdentityVerified, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return &u, nil
}

// IncrementTotals bumps the total-trades counter for the given users inside
// the scope.
func (s *UserStore) IncrementTotals(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error {
	return s.increment(ctx, tx, "total_trades", userIDs)
}

// IncrementCompleted bumps the completed counter for the given users inside
// the scope.
func (s *UserStore) IncrementCompleted(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error {
	return s.increment(ctx, tx, "completed_trades", userIDs)
}

// IncrementViolations bumps the violation counter for one user inside the
// scope.
func (s *UserStore) IncrementViolations(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	return s.increment(ctx, tx, "violations", []uuid.UUID{userID})
}

func (s *UserStore) increment(ctx context.Context, tx pgx.Tx, column string, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}

	// column is one of three compile-time constants, never caller input.
	query := fmt.Sprintf(`UPDATE users SET %s = %s + 1 WHERE id = ANY($1)`, column, column)
	tag, err := tx.Exec(ctx, query, userIDs)
	if err != nil {
		return fmt.Errorf("postgres: increment %s: %w", column, err)
	}
	if int(tag.RowsAffected()) != len(userIDs) {
		return fmt.Errorf("postgres: increment %s touched %d of %d rows: %w",
			column, tag.RowsAffected(), len(userIDs), domain.ErrNotFound)
	}
	return nil
}
