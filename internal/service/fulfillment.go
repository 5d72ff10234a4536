package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/txn"
)

// Secure creates the logical escrow hold and moves an accepted trade to
// secured. Only valid when the security snapshot demands escrow; no-escrow
// trades go straight from accepted to shipped.
func (s *TradeService) Secure(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error) {
	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, domain.TradeStatusSecured)
			if err != nil {
				return nil, err
			}
			if !trade.Participant(actingUser) {
				return nil, fmt.Errorf("trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
			}
			if trade.Security == nil || !trade.Security.RequiresEscrow {
				return nil, fmt.Errorf("trade %s: no escrow required: %w", tradeID, domain.ErrConflict)
			}
			if trade.Escrow != nil {
				return nil, fmt.Errorf("trade %s: escrow hold already exists: %w", tradeID, domain.ErrConflict)
			}

			now := time.Now().UTC()
			trade.Escrow = &domain.Escrow{
				Amount:    s.escrow.BaseAmount,
				Status:    domain.EscrowStatusHeld,
				CreatedAt: now,
				ExpiresAt: now.Add(s.escrow.HoldDuration),
			}
			trade.Status = domain.TradeStatusSecured
			trade.SecuredAt = &now
			trade.UpdatedAt = now
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		s.auditStep("trade.secured", tradeID, map[string]any{
			"acting_user": actingUser.String(),
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}
	return tradeResult(updated, res), nil
}

// Ship marks the trade's objects as handed to delivery. Accepted trades may
// ship directly only when their snapshot demands no escrow; escrow trades
// must have been secured first. A tracking number is mandatory when the
// snapshot requires secure delivery.
func (s *TradeService) Ship(ctx context.Context, tradeID, actingUser uuid.UUID, trackingNumber string) (*domain.TradeResult, error) {
	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, domain.TradeStatusShipped)
			if err != nil {
				return nil, err
			}
			if !trade.Participant(actingUser) {
				return nil, fmt.Errorf("trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
			}
			if trade.Security == nil {
				return nil, fmt.Errorf("trade %s: missing security snapshot: %w", tradeID, domain.ErrConflict)
			}
			if trade.Status == domain.TradeStatusAccepted && trade.Security.RequiresEscrow {
				return nil, fmt.Errorf("trade %s: %w", tradeID, domain.ErrEscrowRequired)
			}
			if trade.Security.SecureDeliveryRequired && trackingNumber == "" {
				return nil, fmt.Errorf("trade %s: tracking number required: %w", tradeID, domain.ErrInvalidArgument)
			}

			now := time.Now().UTC()
			trade.Status = domain.TradeStatusShipped
			trade.TrackingNumber = trackingNumber
			trade.ShippedAt = &now
			trade.UpdatedAt = now
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		s.auditStep("trade.shipped", tradeID, map[string]any{
			"acting_user": actingUser.String(),
			"tracked":     trackingNumber != "",
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}
	return tradeResult(updated, res), nil
}

// ConfirmReceipt records the caller's receipt confirmation on a shipped
// trade. The second confirmation performs the terminal transition: objects
// finalize to traded, the escrow hold releases, and both users' completed
// counters move, all in one scope.
func (s *TradeService) ConfirmReceipt(ctx context.Context, tradeID, actingUser uuid.UUID) (*domain.TradeResult, error) {
	var updated *domain.Trade
	var completed bool
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			completed = false
			trade, err := s.trades.GetForUpdate(ctx, tx, tradeID)
			if err != nil {
				return nil, err
			}
			if trade.Status != domain.TradeStatusShipped {
				return nil, fmt.Errorf("trade %s: cannot confirm receipt in %s: %w",
					tradeID, trade.Status, domain.ErrConflict)
			}
			if !trade.Participant(actingUser) {
				return nil, fmt.Errorf("trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
			}

			switch actingUser {
			case trade.FromUser:
				if trade.FromConfirmed {
					return nil, fmt.Errorf("trade %s: receipt already confirmed: %w", tradeID, domain.ErrConflict)
				}
				trade.FromConfirmed = true
			case trade.ToUser:
				if trade.ToConfirmed {
					return nil, fmt.Errorf("trade %s: receipt already confirmed: %w", tradeID, domain.ErrConflict)
				}
				trade.ToConfirmed = true
			}

			now := time.Now().UTC()
			trade.UpdatedAt = now

			if trade.FromConfirmed && trade.ToConfirmed {
				completed = true
				trade.Status = domain.TradeStatusCompleted
				trade.CompletedAt = &now
				if trade.Escrow != nil && trade.Escrow.Status == domain.EscrowStatusHeld {
					trade.Escrow.Status = domain.EscrowStatusReleased
				}
				if err := s.objects.Finalize(ctx, tx, trade.AllObjects()); err != nil {
					return nil, err
				}
				if err := s.users.IncrementCompleted(ctx, tx, []uuid.UUID{trade.FromUser, trade.ToUser}); err != nil {
					return nil, err
				}
			}

			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			event := "trade.receipt_confirmed"
			if completed {
				event = "trade.completed"
			}
			return nil, s.audit.LogTx(ctx, tx, event, map[string]any{
				"trade_id":    tradeID.String(),
				"acting_user": actingUser.String(),
			})
		},
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}

	if completed {
		s.risk.Invalidate(ctx, updated.FromUser, updated.ToUser)
		s.logger.InfoContext(ctx, "trade completed",
			slog.String("trade_id", tradeID.String()),
		)
	}
	return tradeResult(updated, res), nil
}

// Dispute attaches a complaint to an in-flight trade and moves it to
// disputed. Disputed is not terminal; resolution arrives externally via
// ResolveDispute.
func (s *TradeService) Dispute(ctx context.Context, tradeID, actingUser uuid.UUID, reason string) (*domain.TradeResult, error) {
	if reason == "" {
		return nil, fmt.Errorf("trade: dispute reason required: %w", domain.ErrInvalidArgument)
	}

	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			trade, err := s.loadForTransition(ctx, tx, tradeID, domain.TradeStatusDisputed)
			if err != nil {
				return nil, err
			}
			if !trade.Participant(actingUser) {
				return nil, fmt.Errorf("trade %s: not a participant: %w", tradeID, domain.ErrForbidden)
			}

			now := time.Now().UTC()
			trade.Dispute = &domain.Dispute{
				RaisedBy: actingUser,
				Reason:   reason,
			}
			trade.Status = domain.TradeStatusDisputed
			trade.DisputedAt = &now
			trade.UpdatedAt = now
			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		s.auditStep("trade.disputed", tradeID, map[string]any{
			"acting_user": actingUser.String(),
			"reason":      reason,
		}),
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}
	return tradeResult(updated, res), nil
}

// ResolveDispute records an external arbitration outcome atomically with
// object status and escrow settlement. Arbitration itself happens outside
// this core; callers are trusted (the endpoint sits behind collaborator
// auth). An at-fault party forfeits the escrow hold and gains a violation.
func (s *TradeService) ResolveDispute(ctx context.Context, tradeID uuid.UUID, outcome domain.DisputeResolution, atFault *uuid.UUID) (*domain.TradeResult, error) {
	if outcome != domain.ResolutionCompleted && outcome != domain.ResolutionCancelled {
		return nil, fmt.Errorf("trade: unknown resolution %q: %w", outcome, domain.ErrInvalidArgument)
	}

	var updated *domain.Trade
	steps := []txn.Step{
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			target := domain.TradeStatusCompleted
			if outcome == domain.ResolutionCancelled {
				target = domain.TradeStatusCancelled
			}
			trade, err := s.loadForTransition(ctx, tx, tradeID, target)
			if err != nil {
				return nil, err
			}
			if trade.Status != domain.TradeStatusDisputed || trade.Dispute == nil {
				return nil, fmt.Errorf("trade %s: not disputed: %w", tradeID, domain.ErrConflict)
			}
			if atFault != nil && !trade.Participant(*atFault) {
				return nil, fmt.Errorf("trade %s: at-fault user is not a participant: %w", tradeID, domain.ErrInvalidArgument)
			}

			now := time.Now().UTC()
			res := outcome
			trade.Dispute.Resolution = &res
			trade.Dispute.ResolvedAt = &now
			trade.Status = target
			trade.UpdatedAt = now

			if trade.Escrow != nil && trade.Escrow.Status == domain.EscrowStatusHeld {
				if atFault != nil {
					trade.Escrow.Status = domain.EscrowStatusForfeited
				} else {
					trade.Escrow.Status = domain.EscrowStatusReleased
				}
			}

			switch target {
			case domain.TradeStatusCompleted:
				trade.CompletedAt = &now
				if err := s.objects.Finalize(ctx, tx, trade.AllObjects()); err != nil {
					return nil, err
				}
				if err := s.users.IncrementCompleted(ctx, tx, []uuid.UUID{trade.FromUser, trade.ToUser}); err != nil {
					return nil, err
				}
			case domain.TradeStatusCancelled:
				trade.CancelledAt = &now
				if err := s.objects.Release(ctx, tx, trade.AllObjects()); err != nil {
					return nil, err
				}
			}

			if atFault != nil {
				if err := s.users.IncrementViolations(ctx, tx, *atFault); err != nil {
					return nil, err
				}
			}

			if err := s.trades.Update(ctx, tx, trade); err != nil {
				return nil, err
			}
			updated = trade
			return trade, nil
		},
		func(ctx context.Context, tx pgx.Tx) (any, error) {
			detail := map[string]any{
				"trade_id": tradeID.String(),
				"outcome":  string(outcome),
			}
			if atFault != nil {
				detail["at_fault"] = atFault.String()
			}
			return nil, s.audit.LogTx(ctx, tx, "trade.resolved", detail)
		},
	}

	res, err := s.runner.Execute(ctx, steps, txn.Options{})
	if err != nil {
		return nil, err
	}

	s.risk.Invalidate(ctx, updated.FromUser, updated.ToUser)
	s.logger.InfoContext(ctx, "dispute resolved",
		slog.String("trade_id", tradeID.String()),
		slog.String("outcome", string(outcome)),
	)
	return tradeResult(updated, res), nil
}
