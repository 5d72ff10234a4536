package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeFilter narrows trade listings.
type TradeFilter struct {
	User      *uuid.UUID  // matches either party
	Status    TradeStatus // empty means any
	Direction string      // "incoming", "outgoing", or "" for both
}

// TradeStore persists trades. Methods taking a pgx.Tx must run inside a
// transaction executor scope; passing the scope explicitly is what keeps a
// step from forgetting to bind its writes to it.
type TradeStore interface {
	// Create inserts a new trade inside the scope.
	Create(ctx context.Context, tx pgx.Tx, trade *Trade) error
	// GetForUpdate loads a trade by id with a row lock, returning
	// ErrNotFound when absent.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Trade, error)
	// Update writes the full mutable state of the trade inside the scope.
	Update(ctx context.Context, tx pgx.Tx, trade *Trade) error

	// GetByID is a plain read outside any scope.
	GetByID(ctx context.Context, id uuid.UUID) (*Trade, error)
	// List returns trades matching the filter, newest first.
	List(ctx context.Context, filter TradeFilter, opts ListOpts) ([]Trade, error)
}

// ObjectReservation flips object availability as a side effect of trade
// transitions. It knows nothing about trust or risk, and is only ever invoked
// from within an executor scope that also mutates the owning trade.
type ObjectReservation interface {
	// Reserve verifies every object is owned by expectedOwner and currently
	// in expectedStatus, then sets all of them to pending. Any mismatch
	// fails the whole call with ErrConflict; there is no partial
	// reservation.
	Reserve(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, expectedOwner uuid.UUID, expectedStatus ObjectStatus) error
	// Release sets objects back to available (refuse/cancel paths).
	Release(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error
	// Finalize sets objects to traded (completion paths).
	Finalize(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error
}

// ObjectStore persists objects beyond their reservation state.
type ObjectStore interface {
	ObjectReservation

	GetByID(ctx context.Context, id uuid.UUID) (*Object, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, opts ListOpts) ([]Object, error)
}

// UserStore reads trust snapshots and applies trade outcome counters.
type UserStore interface {
	// GetByID returns the trust-relevant user snapshot, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// IncrementTotals bumps the total-trades counter for both users inside
	// the scope (at acceptance).
	IncrementTotals(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error
	// IncrementCompleted bumps the completed counter for both users inside
	// the scope (at completion).
	IncrementCompleted(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error
	// IncrementViolations bumps the violation counter for the at-fault
	// party inside the scope (at dispute resolution).
	IncrementViolations(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

// ProofStore persists proof photo records.
type ProofStore interface {
	Create(ctx context.Context, proof *Proof) error
	ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]Proof, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. LogTx records an entry inside
// a transaction scope so the audit row commits or rolls back with the
// transition it describes.
type AuditStore interface {
	LogTx(ctx context.Context, tx pgx.Tx, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
