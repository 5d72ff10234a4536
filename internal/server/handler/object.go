package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
)

// ObjectReader defines the read methods that the object handler requires.
type ObjectReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Object, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, opts domain.ListOpts) ([]domain.Object, error)
}

// ObjectHandler serves object catalogue HTTP endpoints.
type ObjectHandler struct {
	objects ObjectReader
	logger  *slog.Logger
}

// NewObjectHandler creates an ObjectHandler with the given store and logger.
func NewObjectHandler(objects ObjectReader, logger *slog.Logger) *ObjectHandler {
	return &ObjectHandler{
		objects: objects,
		logger:  logger,
	}
}

// GetObject returns a single object with its reservation status.
// GET /api/objects/{id}
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid object id")
		return
	}

	obj, err := h.objects.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get object")
		return
	}

	writeJSON(w, http.StatusOK, obj)
}

// ListByOwner returns a user's objects.
// GET /api/users/{id}/objects?limit=50&offset=0
func (h *ObjectHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	objects, err := h.objects.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list objects")
		return
	}

	if objects == nil {
		objects = []domain.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}
