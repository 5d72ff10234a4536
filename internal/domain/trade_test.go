package domain_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/barterloop/barterloop/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.TradeStatus
		want     bool
	}{
		{domain.TradeStatusPending, domain.TradeStatusProposed, true},
		{domain.TradeStatusPending, domain.TradeStatusCancelled, true},
		{domain.TradeStatusPending, domain.TradeStatusRefused, true},
		{domain.TradeStatusPending, domain.TradeStatusAccepted, false},
		{domain.TradeStatusPending, domain.TradeStatusShipped, false},

		// Re-proposing replaces the previous counter-offer.
		{domain.TradeStatusProposed, domain.TradeStatusProposed, true},
		{domain.TradeStatusProposed, domain.TradeStatusAccepted, true},
		{domain.TradeStatusProposed, domain.TradeStatusRefused, true},
		{domain.TradeStatusProposed, domain.TradeStatusCompleted, false},

		{domain.TradeStatusAccepted, domain.TradeStatusSecured, true},
		{domain.TradeStatusAccepted, domain.TradeStatusShipped, true},
		{domain.TradeStatusAccepted, domain.TradeStatusDisputed, true},
		{domain.TradeStatusAccepted, domain.TradeStatusCancelled, false},
		{domain.TradeStatusAccepted, domain.TradeStatusProposed, false},

		{domain.TradeStatusSecured, domain.TradeStatusShipped, true},
		{domain.TradeStatusSecured, domain.TradeStatusCompleted, false},

		{domain.TradeStatusShipped, domain.TradeStatusCompleted, true},
		{domain.TradeStatusShipped, domain.TradeStatusDisputed, true},
		{domain.TradeStatusShipped, domain.TradeStatusCancelled, false},

		{domain.TradeStatusDisputed, domain.TradeStatusCompleted, true},
		{domain.TradeStatusDisputed, domain.TradeStatusCancelled, true},
		{domain.TradeStatusDisputed, domain.TradeStatusShipped, false},

		// Terminal states permit nothing.
		{domain.TradeStatusCompleted, domain.TradeStatusDisputed, false},
		{domain.TradeStatusCancelled, domain.TradeStatusProposed, false},
		{domain.TradeStatusRefused, domain.TradeStatusProposed, false},
	}

	for _, tt := range tests {
		if got := domain.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []domain.TradeStatus{
		domain.TradeStatusCompleted,
		domain.TradeStatusCancelled,
		domain.TradeStatusRefused,
	}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
		if len(transitionsFrom(s)) != 0 {
			t.Errorf("terminal status %s has outgoing transitions", s)
		}
	}

	active := []domain.TradeStatus{
		domain.TradeStatusPending,
		domain.TradeStatusProposed,
		domain.TradeStatusAccepted,
		domain.TradeStatusSecured,
		domain.TradeStatusShipped,
		domain.TradeStatusDisputed,
	}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

// transitionsFrom enumerates reachable statuses via the exported predicate.
func transitionsFrom(from domain.TradeStatus) []domain.TradeStatus {
	all := []domain.TradeStatus{
		domain.TradeStatusPending,
		domain.TradeStatusProposed,
		domain.TradeStatusAccepted,
		domain.TradeStatusSecured,
		domain.TradeStatusShipped,
		domain.TradeStatusCompleted,
		domain.TradeStatusDisputed,
		domain.TradeStatusCancelled,
		domain.TradeStatusRefused,
	}
	var out []domain.TradeStatus
	for _, to := range all {
		if domain.CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

func TestTradeParticipants(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	stranger := uuid.New()

	trade := &domain.Trade{FromUser: from, ToUser: to}

	if !trade.Participant(from) || !trade.Participant(to) {
		t.Error("participants not recognised")
	}
	if trade.Participant(stranger) {
		t.Error("stranger recognised as participant")
	}

	if got := trade.Counterparty(from); got != to {
		t.Errorf("Counterparty(from) = %s, want %s", got, to)
	}
	if got := trade.Counterparty(to); got != from {
		t.Errorf("Counterparty(to) = %s, want %s", got, from)
	}
}

func TestAllObjects(t *testing.T) {
	req := []uuid.UUID{uuid.New(), uuid.New()}
	off := []uuid.UUID{uuid.New()}

	trade := &domain.Trade{RequestedObjects: req, OfferedObjects: off}

	all := trade.AllObjects()
	if len(all) != 3 {
		t.Fatalf("AllObjects() returned %d ids, want 3", len(all))
	}
	if all[0] != req[0] || all[1] != req[1] || all[2] != off[0] {
		t.Error("AllObjects() order mismatch")
	}

	empty := &domain.Trade{RequestedObjects: req}
	if got := empty.AllObjects(); len(got) != 2 {
		t.Errorf("AllObjects() with no offered = %d ids, want 2", len(got))
	}
}
