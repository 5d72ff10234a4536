// Package service implements the trade lifecycle state machine. Every
// operation is expressed as an ordered list of transaction steps run by the
// txn executor, so trade-status and object-status writes are atomically
// visible together or not at all.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/txn"
)

// Runner executes ordered step lists atomically. Implemented by
// *txn.Executor; tests substitute a fake.
type Runner interface {
	Execute(ctx context.Context, steps []txn.Step, opts txn.Options) (*txn.Result, error)
}

// RiskAnalyzer is the read-only view of the trust engine the lifecycle needs.
type RiskAnalyzer interface {
	AnalyzeRisk(ctx context.Context, fromID, toID uuid.UUID) (*domain.RiskAssessment, error)
	Invalidate(ctx context.Context, userIDs ...uuid.UUID)
}

// EscrowConfig sets the parameters of logical escrow holds.
type EscrowConfig struct {
	// BaseAmount is the hold amount attached at the secured transition.
	BaseAmount decimal.Decimal
	// HoldDuration bounds how long a hold may stay unresolved.
	HoldDuration time.Duration
}

// TradeService owns the authoritative status field of trades and validates
// every transition against the current state, the acting participant, and the
// security constraints produced by the risk engine.
type TradeService struct {
	runner  Runner
	trades  domain.TradeStore
	objects domain.ObjectReservation
	users   domain.UserStore
	risk    RiskAnalyzer
	audit   domain.AuditStore
	escrow  EscrowConfig
	logger  *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	runner Runner,
	trades domain.TradeStore,
	objects domain.ObjectReservation,
	users domain.UserStore,
	risk RiskAnalyzer,
	audit domain.AuditStore,
	escrow EscrowConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		runner:  runner,
		trades:  trades,
		objects: objects,
		users:   users,
		risk:    risk,
		audit:   audit,
		escrow:  escrow,
		logger:  logger.With(slog.String("component", "trade_service")),
	}
}

// CreateParams describes a new trade proposal.
type CreateParams struct {
	FromUser  uuid.UUID
	ToUser    uuid.UUID
	Requested []uuid.UUID
	Offered   []uuid.UUID
	Message   string
}

// Create opens a new trade in pending and reserves the requested objects
// (and the offered ones, when attached up front). Validation failures
// surface before any document is written.
func (s *TradeService) Create(ctx context.Context, p CreateParams) (*domain.TradeResult, error) {
	if p.FromUser == uuid.Nil || p.ToUser == uuid.Nil {
		return nil, fmt.Errorf("trade: missing user id: %w", domain.ErrInvalidArgument)
	}
	if p.FromUser == p.ToUser {
		return nil, fmt.Errorf("trade: cannot trade with yourself: %w", domain.ErrInvalidArgument)
	}
	if len(p.Requested) == 0 {
		return nil, fmt.Errorf("trade: requested objects must not be empty: %w", domain.ErrInvalidArgument)
	}

	// User existence is checked up front; absence is final, not transient.
	for _, id := range []uuid.UUID{p.FromUser, p.ToUser} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("trade: user %s: %w", id, err)
		}
	}

	now := time.Now().UTC()
	trade := &domain.Trade{
		ID:               uuid.New(),
		FromUser:         p.FromUser,
		ToUser:           p.ToUser,
		RequestedObjects: p.Requested,
		OfferedObjects:   p.Offered,
		Status:           domain.TradeStatusPending,
		Message:          p.Message,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			return nil, s.objects.Reserve(ctx, tx, p.Requested, p.ToUser, domain.ObjectStatusAvailable)
		},
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			if len(p.Offered) == 0 {
				return nil, nil
			}
			return nil, s.objects.Reserve(ctx, tx, p.Offered, p.FromUser, domain.ObjectStatusAvailable)
		},
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			return nil, s.trades.Create(ctx, tx, trade)
		},
		s.auditStep("trade.created", trade.ID, map[string]any{
			"from_user": p.FromUser.String(),
			"to_user":   p.ToUser.String(),
			"requested": len(p.Requested),
			"offered":   len(p.Offered),
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "trade created",
		slog.String("trade_id", trade.ID.String()),
		slog.String("from_user", p.FromUser.String()),
		slog.String("to_user", p.ToUser.String()),
	)
	return tradeResult(trade, res), nil
}

// Propose attaches or revises the counter-offer. Only the recipient may
// propose; the offered objects belong to the original proposer and any
// previously offered set is released before the new one is reserved.
func (s *TradeService) Propose(ctx context.Context, tradeID, actingUser uuid.UUID, offered []uuid.UUID) (*domain.TradeResult, error) {
	if len(offered) == 0 {
		return nil, fmt.Errorf("trade: offered objects must not be empty: %w", domain.ErrInvalidArgument)
	}

	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, domain.TradeStatusProposed)
			if err != nil {
				return nil, err
			}
			if trade.ToUser != actingUser {
				return nil, fmt.Errorf("trade %s: only the recipient may counter-offer: %w", tradeID, domain.ErrForbidden)
			}

			if len(trade.OfferedObjects) > 0 {
				if err := s.objects.Release(ctx, tx, trade.OfferedObjects); err != nil {
					return nil, err
				}
			}
			if err := s.objects.Reserve(ctx, tx, offered, trade.FromUser, domain.ObjectStatusAvailable); err != nil {
				return nil, err
			}

			trade.OfferedObjects = offered
			trade.Status = domain.TradeStatusProposed
			trade.UpdatedAt = time.Now().UTC()
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		s.auditStep("trade.proposed", tradeID, map[string]any{
			"acting_user": actingUser.String(),
			"offered":     len(offered),
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}
	return tradeResult(updated, res), nil
}

// Accept is performed by the original proposer on a counter-offer. The risk
// engine is consulted once, its output snapshotted as the trade's security
// constraints, and both users' total-trade counters move in the same scope.
func (s *TradeService) Accept(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error) {
	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, domain.TradeStatusAccepted)
			if err != nil {
				return nil, err
			}
			if trade.FromUser != actingUser {
				return nil, fmt.Errorf("trade %s: only the original proposer may accept: %w", tradeID, domain.ErrForbidden)
			}

			assessment, err := s.risk.AnalyzeRisk(ctx, trade.FromUser, trade.ToUser)
			if err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			sec := assessment.Security
			trade.Security = &sec
			trade.Status = domain.TradeStatusAccepted
			trade.AcceptedAt = &now
			trade.UpdatedAt = now
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			if err := s.users.IncrementTotals(ctx, tx, []uuid.UUID{trade.FromUser, trade.ToUser}); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			return nil, s.audit.LogTx(ctx, tx, "trade.accepted", map[string]any{
				"trade_id":    tradeID.String(),
				"acting_user": actingUser.String(),
				"risk_level":  string(updated.Security.RiskLevel),
				"escrow":      updated.Security.RequiresEscrow,
			})
		},
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}

	s.risk.Invalidate(ctx, updated.FromUser, updated.ToUser)
	s.logger.InfoContext(ctx, "trade accepted",
		slog.String("trade_id", tradeID.String()),
		slog.String("risk_level", string(updated.Security.RiskLevel)),
	)
	return tradeResult(updated, res), nil
}

// Refuse is performed by the recipient on a pending or proposed trade. All
// reserved objects return to available.
func (s *TradeService) Refuse(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error) {
	return s.terminate(ctx, tradeID, actingUser, domain.TradeStatusRefused)
}

// Cancel is performed by either participant on a pending or proposed trade.
// Cancelling a trade in any other state, terminal ones included, observes
// Conflict.
func (s *TradeService) Cancel(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error) {
	return s.terminate(ctx, tradeID, actingUser, domain.TradeStatusCancelled)
}

// terminate implements the shared refuse/cancel shape.
func (s *TradeService) terminate(ctx context.Context, tradeID, actingUser uuid.UUID, target domain.TradeStatus) (*domain.TradeResult, error) {
	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, target)
			if err != nil {
				return nil, err
			}
			// Disputed trades settle only through ResolveDispute, which also
			// settles the escrow hold and fault accounting.
			if trade.Status == domain.TradeStatusDisputed {
				return nil, fmt.Errorf("trade %s: disputed, awaiting resolution: %w", tradeID, domain.ErrConflict)
			}
			switch target {
			case domain.TradeStatusRefused:
				if trade.ToUser != actingUser {
					return nil, fmt.Errorf("trade %s: only the recipient may refuse: %w", tradeID, domain.ErrForbidden)
				}
			case domain.TradeStatusCancelled:
				if !trade.Participant(actingUser) {
					return nil, fmt.Errorf("trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
				}
			}

			if err := s.objects.Release(ctx, tx, trade.AllObjects()); err != nil {
				return nil, err
			}

			now := time.Now().UTC()
			trade.Status = target
			trade.UpdatedAt = now
			if target == domain.TradeStatusRefused {
				trade.RefusedAt = &now
			} else {
				trade.CancelledAt = &now
			}
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		s.auditStep("trade."+string(target), tradeID, map[string]any{
			"acting_user": actingUser.String(),
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}
	return tradeResult(updated, res), nil
}

// GetTrade returns a trade by id.
func (s *TradeService) GetTrade(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	return s.trades.GetByID(ctx, id)
}

// ListTrades returns trades matching the filter.
func (s *TradeService) ListTrades(ctx context.Context, filter domain.TradeFilter, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.trades.List(ctx, filter, opts)
}

// loadForTransition performs steps 1–2 of every lifecycle operation: load the
// trade under a row lock, then check the state machine permits the target
// transition. The status precondition is the optimistic-concurrency guard:
// under concurrent conflicting transitions the first committer wins and the
// loser observes Conflict here.
func (s *TradeService) loadForTransition(ctx context.Context, tx pgx.Tx, tradeID uuid.UUID, target domain.TradeStatus) (*domain.Trade, error) {
	trade, err := s.trades.GetForUpdate(ctx, tx, tradeID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(trade.Status, target) {
		return nil, fmt.Errorf("trade %s: cannot move %s -> %s: %w",
			tradeID, trade.Status, target, domain.ErrConflict)
	}
	return trade, nil
}

// auditStep returns a step recording a lifecycle event inside the same scope
// as the transition it describes.
func (s *TradeService) auditStep(event string, tradeID uuid.UUID, detail map[string]any) txn.Step {
	return func(ctx context.Context, tx pgx.Tx) (any, error) {
		d := map[string]any{"trade_id": tradeID.String()}
		for k, v := range detail {
			d[k] = v
		}
		return nil, s.audit.LogTx(ctx, tx, event, d)
	}
}

func tradeResult(trade *domain.Trade, res *txn.Result) *domain.TradeResult {
	return &domain.TradeResult{
		Trade:         trade,
		Attempt:       res.Attempt,
		ExecutionTime: res.ExecutionTime,
	}
}
