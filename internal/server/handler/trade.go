package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/service"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	Create(ctx context.Context, p service.CreateParams) (*domain.TradeResult, error)
	Propose(ctx context.Context, tradeID, actingUser uuid.UUID, offered []uuid.UUID) (*domain.TradeResult, error)
	Accept(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error)
	Refuse(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error)
	Cancel(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error)
	Secure(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error)
	Ship(ctx context.Context, tradeID, actingUser uuid.UUID, trackingNumber string) (*domain.TradeResult, error)
	ConfirmReceipt(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error)
	Dispute(ctx context.Context, tradeID, actingUser uuid.UUID, reason string) (*domain.TradeResult, error)
	ResolveDispute(ctx context.Context, tradeID uuid.UUID, outcome domain.DisputeResolution, atFault *uuid.UUID) (*domain.TradeResult, error)
	GetTrade(ctx context.Context, id uuid.UUID) (*domain.Trade, error)
	ListTrades(ctx context.Context, filter domain.TradeFilter, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade lifecycle HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// createTradeRequest is the body for opening a new trade. The initiating
// user comes from the X-User-ID header.
type createTradeRequest struct {
	ToUser    uuid.UUID   `json:"to_user"`
	Requested []uuid.UUID `json:"requested"`
	Offered   []uuid.UUID `json:"offered"`
	Message   string      `json:"message"`
}

// CreateTrade opens a new trade request against another user's objects.
// POST /api/trades
func (h *TradeHandler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req createTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.trades.Create(r.Context(), service.CreateParams{
		FromUser:  actor,
		ToUser:    req.ToUser,
		Requested: req.Requested,
		Offered:   req.Offered,
		Message:   req.Message,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "create trade")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ListTrades returns trades involving a user, filtered by status and
// direction. The user defaults to the caller.
// GET /api/trades?user=...&status=...&direction=incoming|outgoing&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	q := r.URL.Query()
	user := actor
	if v := q.Get("user"); v != "" {
		user, err = uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user query parameter")
			return
		}
	}

	filter := domain.TradeFilter{
		User:      &user,
		Status:    domain.TradeStatus(q.Get("status")),
		Direction: q.Get("direction"),
	}

	trades, err := h.trades.ListTrades(r.Context(), filter, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list trades")
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// GetTrade returns a single trade by id.
// GET /api/trades/{id}
func (h *TradeHandler) GetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	trade, err := h.trades.GetTrade(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get trade")
		return
	}

	writeJSON(w, http.StatusOK, trade)
}

// proposeRequest is the body for attaching a counter-offer.
type proposeRequest struct {
	Offered []uuid.UUID `json:"offered"`
}

// Propose attaches the recipient's offered objects to a pending or already
// proposed trade.
// POST /api/trades/{id}/propose
func (h *TradeHandler) Propose(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.respond(w, r, "propose trade")(h.trades.Propose(r.Context(), id, actor, req.Offered))
}

// Accept locks in the current offer and snapshots the security measures.
// POST /api/trades/{id}/accept
func (h *TradeHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "accept trade")(h.trades.Accept(r.Context(), id, actor))
}

// Refuse declines the trade and releases all reservations.
// POST /api/trades/{id}/refuse
func (h *TradeHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "refuse trade")(h.trades.Refuse(r.Context(), id, actor))
}

// Cancel withdraws the trade and releases all reservations.
// POST /api/trades/{id}/cancel
func (h *TradeHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "cancel trade")(h.trades.Cancel(r.Context(), id, actor))
}

// Secure places the escrow hold required for a high-risk trade.
// POST /api/trades/{id}/secure
func (h *TradeHandler) Secure(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "secure trade")(h.trades.Secure(r.Context(), id, actor))
}

// shipRequest is the body for marking a trade as shipped.
type shipRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// Ship marks the trade as shipped, with a tracking number when the security
// snapshot demands one.
// POST /api/trades/{id}/ship
func (h *TradeHandler) Ship(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}

	var req shipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.respond(w, r, "ship trade")(h.trades.Ship(r.Context(), id, actor, req.TrackingNumber))
}

// ConfirmReceipt records one party's receipt confirmation. The trade
// completes once both parties have confirmed.
// POST /api/trades/{id}/confirm
func (h *TradeHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "confirm receipt")(h.trades.ConfirmReceipt(r.Context(), id, actor))
}

// disputeRequest is the body for raising a dispute.
type disputeRequest struct {
	Reason string `json:"reason"`
}

// Dispute freezes the trade for collaborator review.
// POST /api/trades/{id}/dispute
func (h *TradeHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.tradeAndActor(w, r)
	if !ok {
		return
	}

	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.respond(w, r, "dispute trade")(h.trades.Dispute(r.Context(), id, actor, req.Reason))
}

// resolveRequest is the body for a collaborator's dispute ruling.
type resolveRequest struct {
	Outcome domain.DisputeResolution `json:"outcome"`
	AtFault *uuid.UUID               `json:"at_fault"`
}

// ResolveDispute applies a collaborator's ruling on a disputed trade. This
// endpoint is reached through the API-key gate rather than a participant
// identity.
// POST /api/trades/{id}/resolve
func (h *TradeHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	h.respond(w, r, "resolve dispute")(h.trades.ResolveDispute(r.Context(), id, req.Outcome, req.AtFault))
}

// tradeAndActor extracts the trade id and caller identity common to every
// transition endpoint, writing the error response itself on failure.
func (h *TradeHandler) tradeAndActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return uuid.Nil, uuid.Nil, false
	}
	actor, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return id, actor, true
}

// respond writes a transition result or maps its error, keeping every
// transition endpoint's tail identical.
func (h *TradeHandler) respond(w http.ResponseWriter, r *http.Request, op string) func(*domain.TradeResult, error) {
	return func(result *domain.TradeResult, err error) {
		if err != nil {
			writeDomainError(w, r, h.logger, err, op)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
