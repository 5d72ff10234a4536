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

// ObjectStore implements domain.ObjectStore using PostgreSQL. The reservation
// methods take an explicit transaction scope: object-status changes are never
// observably split from the trade-status change that caused them.
type ObjectStore struct {
	pool *pgxpool.Pool
}

// NewObjectStore creates a new ObjectStore backed by the given connection pool.
func NewObjectStore(pool *pgxpool.Pool) *ObjectStore {
	return &ObjectStore{pool: pool}
}

// Reserve row-locks all objects, verifies each is owned by expectedOwner and
// sits in expectedStatus, then flips them all to pending. Any mismatch fails
// the whole call with ErrConflict: there is no partial reservation. Rows lock
// in id order so two overlapping reservations cannot deadlock.
func (s *ObjectStore) Reserve(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, expectedOwner uuid.UUID, expectedStatus domain.ObjectStatus) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := tx.Query(ctx, `
		SELECT id, owner_id, status FROM objects
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("postgres: lock objects: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var (
			id     uuid.UUID
			owner  uuid.UUID
			status domain.ObjectStatus
		)
		if err := rows.Scan(&id, &owner, &status); err != nil {
			return fmt.Errorf("postgres: scan object: %w", err)
		}
		if owner != expectedOwner {
			return fmt.Errorf("postgres: object %s not owned by %s: %w", id, expectedOwner, domain.ErrConflict)
		}
		if status != expectedStatus {
			return fmt.Errorf("postgres: object %s is %s, want %s: %w", id, status, expectedStatus, domain.ErrConflict)
		}
		seen[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: lock objects rows: %w", err)
	}

	for _, id := range ids {
		if !seen[id] {
			return fmt.Errorf("postgres: object %s: %w", id, domain.ErrNotFound)
		}
	}

	if err := s.setStatus(ctx, tx, ids, domain.ObjectStatusPending); err != nil {
		return err
	}
	return nil
}

// Release sets objects back to available (refuse/cancel paths).
func (s *ObjectStore) Release(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	return s.setStatus(ctx, tx, ids, domain.ObjectStatusAvailable)
}

// Finalize sets objects to traded (completion paths).
func (s *ObjectStore) Finalize(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	return s.setStatus(ctx, tx, ids, domain.ObjectStatusTraded)
}

func (s *ObjectStore) setStatus(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, status domain.ObjectStatus) error {
	if len(ids) == 0 {
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE objects SET status = $2, updated_at = NOW()
		WHERE id = ANY($1)`, ids, status)
	if err != nil {
		return fmt.Errorf("postgres: set objects %s: %w", status, err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("postgres: set objects %s touched %d of %d rows: %w",
			status, tag.RowsAffected(), len(ids), domain.ErrConflict)
	}
	return nil
}

// GetByID loads a single object.
func (s *ObjectStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Object, error) {
	var o domain.Object
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, status, created_at, updated_at
		FROM objects WHERE id = $1`, id,
	).Scan(&o.ID, &o.Owner, &o.Title, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: object %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get object %s: %w", id, err)
	}
	return &o, nil
}

// ListByOwner returns a user's objects, newest first.
func (s *ObjectStore) ListByOwner(ctx context.Context, owner uuid.UUID, opts domain.ListOpts) ([]domain.Object, error) {
	query := `
		SELECT id, owner_id, title, status, created_at, updated_at
		FROM objects WHERE owner_id = $1
		ORDER BY created_at DESC`
	args := []any{owner}

	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list objects: %w", err)
	}
	defer rows.Close()

	var objects []domain.Object
	for rows.Next() {
		var o domain.Object
		if err := rows.Scan(&o.ID, &o.Owner, &o.Title, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list objects rows: %w", err)
	}
	return objects, nil
}
