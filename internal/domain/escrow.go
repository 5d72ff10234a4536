package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus tracks a logical escrow hold. No real money moves; the hold is
// a marker that must be resolved before the trade can complete.
type EscrowStatus string

const (
	EscrowStatusHeld      EscrowStatus = "held"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusForfeited EscrowStatus = "forfeited"
)

// Escrow is the hold attached to a trade whose security snapshot requires
// one. Created atomically with the secured transition.
type Escrow struct {
	Amount    decimal.Decimal
	Status    EscrowStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}
