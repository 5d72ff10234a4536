package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeStats is the historical trade outcome summary a user's trust score is
// derived from.
type TradeStats struct {
	Completed  int
	Total      int
	Violations int
}

// User is the trust-relevant snapshot of a user account. Profile data lives
// in the user subsystem; the lifecycle engine reads stats and writes outcome
// counters only.
type User struct {
	ID               uuid.UUID
	Username         string
	Stats            TradeStats
	IdentityVerified bool
	CreatedAt        time.Time
}
