// Package txn provides the generic atomic multi-step transaction executor.
// An ordered list of steps runs inside one pgx transaction scope; the scope
// commits only when every step succeeds, transient datastore conflicts are
// retried with exponential backoff, and domain errors surface verbatim on the
// first attempt. The executor itself holds no domain knowledge.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/barterloop/barterloop/internal/domain"
)

// Step is a unit of work run inside a transaction scope. It receives the
// scope explicitly so the compiler enforces that every write is bound to it.
type Step func(ctx context.Context, tx pgx.Tx) (any, error)

// Options tunes a single Execute call. Zero values fall back to the defaults.
type Options struct {
	// MaxRetries is the number of attempts for transient failures.
	MaxRetries int
	// RetryDelay is the base backoff, doubled per attempt.
	RetryDelay time.Duration
	// IsoLevel sets the transaction isolation level. Empty uses the
	// datastore default (read committed).
	IsoLevel pgx.TxIsoLevel
}

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 100 * time.Millisecond
)

// Result reports a committed transaction: one result per step, in step
// order, plus which attempt committed and how long the whole call ran.
type Result struct {
	Results       []any
	Attempt       int
	ExecutionTime time.Duration
}

// Exhausted wraps the last transient error after all retries failed.
type Exhausted struct {
	Attempts int
	Err      error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("txn: transaction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Exhausted) Unwrap() error { return e.Err }

// Beginner opens transaction scopes. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Executor runs step lists atomically against a single logical datastore.
type Executor struct {
	db       Beginner
	defaults Options
	logger   *slog.Logger
}

// NewExecutor creates an Executor over the given transaction source. The
// defaults fill in retry parameters for Execute calls that leave Options
// zero; zero fields in defaults fall back to the package constants.
func NewExecutor(db Beginner, defaults Options, logger *slog.Logger) *Executor {
	return &Executor{
		db:       db,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "txn")),
	}
}

// Execute runs steps in order inside one transaction scope. On success it
// commits and returns the per-step results. On failure it rolls back, so no
// partial application is ever visible outside the scope, and either retries
// (transient datastore conflicts, with exponential backoff) or returns the
// error unchanged (domain errors, which retrying cannot fix). After
// exhausting the retry budget the last transient error is returned wrapped
// in *Exhausted, carrying the attempt count.
func (e *Executor) Execute(ctx context.Context, steps []Step, opts Options) (*Result, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("txn: no steps: %w", domain.ErrInvalidArgument)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.defaults.MaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = e.defaults.RetryDelay
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		results, err := e.attempt(ctx, steps, opts.IsoLevel)
		if err == nil {
			return &Result{
				Results:       results,
				Attempt:       attempt,
				ExecutionTime: time.Since(start),
			}, nil
		}

		if !Retryable(err) {
			// Validation, authorization, and domain conflicts surface
			// immediately and unwrapped; their outcome cannot change.
			return nil, err
		}

		lastErr = err
		e.logger.WarnContext(ctx, "transient transaction failure",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.String("error", err.Error()),
		)

		if attempt == maxRetries {
			break
		}

		// Exponential backoff: delay, 2*delay, 4*delay, ...
		backoff := retryDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("txn: wait for retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, &Exhausted{Attempts: maxRetries, Err: lastErr}
}

// attempt runs all steps inside a single transaction, committing on success
// and rolling back on the first failure.
func (e *Executor) attempt(ctx context.Context, steps []Step, iso pgx.TxIsoLevel) ([]any, error) {
	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return nil, fmt.Errorf("txn: begin: %w", err)
	}

	results := make([]any, 0, len(steps))
	for i, step := range steps {
		res, err := step(ctx, tx)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				e.logger.ErrorContext(ctx, "rollback failed",
					slog.Int("step", i),
					slog.String("error", rbErr.Error()),
				)
			}
			return nil, err
		}
		results = append(results, res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("txn: commit: %w", err)
	}
	return results, nil
}

// Transient Postgres SQLSTATEs worth retrying: serialization failures and
// deadlocks resolve on a fresh attempt, lock timeouts on contended rows
// usually do too.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Retryable classifies an error as a transient datastore conflict. Domain
// sentinels are always final; everything else is inspected for the Postgres
// error codes that signal write contention, plus pgconn's own safe-to-retry
// connection failures.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrEscrowRequired):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err)
}
