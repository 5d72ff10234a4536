package domain

import (
	"time"

	"github.com/google/uuid"
)

// ObjectStatus tracks an object's reservation state. An object is never
// reserved by two simultaneously active trades; pending and traded objects
// are referenced by exactly one active or completed trade.
type ObjectStatus string

const (
	ObjectStatusAvailable ObjectStatus = "available"
	ObjectStatusPending   ObjectStatus = "pending"
	ObjectStatusTraded    ObjectStatus = "traded"
)

// Object is a physical item a user has listed for barter. Only the status
// field is owned by the lifecycle engine; everything else belongs to the
// listing subsystem.
type Object struct {
	ID        uuid.UUID
	Owner     uuid.UUID
	Title     string
	Status    ObjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
