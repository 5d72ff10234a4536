package domain

import (
	"time"

	"github.com/google/uuid"
)

// Proof is a photo uploaded by a participant to satisfy the photos-required
// security constraint. The image bytes live in blob storage under BlobKey;
// the row records provenance.
type Proof struct {
	ID          uuid.UUID
	TradeID     uuid.UUID
	Uploader    uuid.UUID
	BlobKey     string
	ContentType string
	CreatedAt   time.Time
}
