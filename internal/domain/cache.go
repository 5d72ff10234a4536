package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TrustCache provides fast access to recently computed trust scores so risk
// analysis does not recount trade history on every transition. Entries are
// invalidated whenever a user's stats change.
type TrustCache interface {
	SetScore(ctx context.Context, userID uuid.UUID, score int, ts time.Time) error
	GetScore(ctx context.Context, userID uuid.UUID) (int, time.Time, error)
	Invalidate(ctx context.Context, userID uuid.UUID) error
}
