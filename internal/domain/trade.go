package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeStatus tracks the trade lifecycle.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusProposed  TradeStatus = "proposed"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusSecured   TradeStatus = "secured"
	TradeStatusShipped   TradeStatus = "shipped"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusDisputed  TradeStatus = "disputed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusRefused   TradeStatus = "refused"
)

// transitions is the authoritative edge set of the lifecycle state machine.
// Disputed is deliberately absent from the terminal set: it is resolved
// externally into completed or cancelled.
var transitions = map[TradeStatus][]TradeStatus{
	TradeStatusPending:  {TradeStatusProposed, TradeStatusCancelled, TradeStatusRefused},
	TradeStatusProposed: {TradeStatusProposed, TradeStatusAccepted, TradeStatusCancelled, TradeStatusRefused},
	TradeStatusAccepted: {TradeStatusSecured, TradeStatusShipped, TradeStatusDisputed},
	TradeStatusSecured:  {TradeStatusShipped, TradeStatusDisputed},
	TradeStatusShipped:  {TradeStatusCompleted, TradeStatusDisputed},
	TradeStatusDisputed: {TradeStatusCompleted, TradeStatusCancelled},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to TradeStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s TradeStatus) IsTerminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCancelled || s == TradeStatusRefused
}

// Trade represents a proposed or ongoing exchange of objects between two
// users. FromUser is the original proposer; ToUser owns the requested objects
// and may counter with an offered set of their choosing.
type Trade struct {
	ID       uuid.UUID
	FromUser uuid.UUID
	ToUser   uuid.UUID

	// RequestedObjects is non-empty and owned by ToUser at proposal time.
	// OfferedObjects may be empty until the trade reaches proposed.
	RequestedObjects []uuid.UUID
	OfferedObjects   []uuid.UUID

	Status  TradeStatus
	Message string

	// Security is snapshotted exactly once, at acceptance. Later trust
	// changes never alter an in-flight trade's constraints.
	Security *Security
	Escrow   *Escrow
	Dispute  *Dispute

	TrackingNumber string

	// Receipt confirmations for the shipped -> completed handshake.
	FromConfirmed bool
	ToConfirmed   bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	SecuredAt   *time.Time
	ShippedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	RefusedAt   *time.Time
	DisputedAt  *time.Time
}

// Participant reports whether the given user is a party to this trade.
func (t *Trade) Participant(userID uuid.UUID) bool {
	return t.FromUser == userID || t.ToUser == userID
}

// Counterparty returns the other party of the trade. The caller must already
// have verified that userID is a participant.
func (t *Trade) Counterparty(userID uuid.UUID) uuid.UUID {
	if t.FromUser == userID {
		return t.ToUser
	}
	return t.FromUser
}

// AllObjects returns the union of requested and offered object ids.
func (t *Trade) AllObjects() []uuid.UUID {
	all := make([]uuid.UUID, 0, len(t.RequestedObjects)+len(t.OfferedObjects))
	all = append(all, t.RequestedObjects...)
	all = append(all, t.OfferedObjects...)
	return all
}

// DisputeResolution is the arbitration outcome recorded on a disputed trade.
type DisputeResolution string

const (
	ResolutionCompleted DisputeResolution = "completed"
	ResolutionCancelled DisputeResolution = "cancelled"
)

// Dispute is a complaint raised by a participant against an in-flight trade.
type Dispute struct {
	RaisedBy   uuid.UUID
	Reason     string
	Resolution *DisputeResolution
	ResolvedAt *time.Time
}

// TradeResult wraps the outcome of a lifecycle operation, reporting how many
// transaction attempts it took and how long it ran.
type TradeResult struct {
	Trade         *Trade
	Attempt       int
	ExecutionTime time.Duration
}
