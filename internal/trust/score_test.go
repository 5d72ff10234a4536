package trust_test

import (
	"testing"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/trust"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.TradeStats
		want  int
	}{
		{"no history sits at base", domain.TradeStats{}, 50},
		{"flawless seasoned trader", domain.TradeStats{Completed: 10, Total: 10}, 90},
		{"volume saturates", domain.TradeStats{Completed: 40, Total: 40}, 90},
		{"half completion ratio", domain.TradeStats{Completed: 5, Total: 10}, 60},
		{"violations subtract", domain.TradeStats{Completed: 10, Total: 10, Violations: 2}, 60},
		{"abandoner earns nothing", domain.TradeStats{Completed: 0, Total: 5}, 50},
		{"floor is zero", domain.TradeStats{Completed: 0, Total: 4, Violations: 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trust.Score(tt.stats); got != tt.want {
				t.Errorf("Score(%+v) = %d, want %d", tt.stats, got, tt.want)
			}
		})
	}
}

func TestScoreBounded(t *testing.T) {
	// Brute-force a grid of stats; every score must stay in [0,100].
	for completed := 0; completed <= 30; completed += 3 {
		for extra := 0; extra <= 10; extra += 2 {
			for violations := 0; violations <= 8; violations++ {
				stats := domain.TradeStats{
					Completed:  completed,
					Total:      completed + extra,
					Violations: violations,
				}
				got := trust.Score(stats)
				if got < trust.MinScore || got > trust.MaxScore {
					t.Fatalf("Score(%+v) = %d out of bounds", stats, got)
				}
			}
		}
	}
}

func TestScoreMonotonicInViolations(t *testing.T) {
	stats := domain.TradeStats{Completed: 10, Total: 10}
	prev := trust.Score(stats)
	for v := 1; v <= 7; v++ {
		stats.Violations = v
		got := trust.Score(stats)
		if got > prev {
			t.Fatalf("score rose from %d to %d when violations grew to %d", prev, got, v)
		}
		prev = got
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score      int
		newAccount bool
		want       domain.RiskLevel
	}{
		{90, false, domain.RiskLevelLow},
		{75, false, domain.RiskLevelLow},
		{74, false, domain.RiskLevelMedium},
		{50, false, domain.RiskLevelMedium},
		{49, false, domain.RiskLevelHigh},
		{10, false, domain.RiskLevelHigh},
		{9, false, domain.RiskLevelVeryHigh},
		{0, false, domain.RiskLevelVeryHigh},

		// A first-ever trade carries maximum caution regardless of score.
		{90, true, domain.RiskLevelVeryHigh},
	}

	for _, tt := range tests {
		if got := trust.LevelFor(tt.score, tt.newAccount); got != tt.want {
			t.Errorf("LevelFor(%d, %v) = %s, want %s", tt.score, tt.newAccount, got, tt.want)
		}
	}
}

func TestConstraintsCumulative(t *testing.T) {
	low := trust.Constraints(domain.RiskLevelLow)
	if low.PhotosRequired || low.SecureDeliveryRequired || low.RequiresEscrow || low.RequiresIdentityVerification {
		t.Errorf("low risk carries constraints: %+v", low)
	}

	medium := trust.Constraints(domain.RiskLevelMedium)
	if !medium.PhotosRequired {
		t.Error("medium risk must require photos")
	}
	if medium.RequiresEscrow || medium.RequiresIdentityVerification {
		t.Errorf("medium risk over-constrained: %+v", medium)
	}

	high := trust.Constraints(domain.RiskLevelHigh)
	if !high.PhotosRequired || !high.SecureDeliveryRequired || !high.RequiresEscrow {
		t.Errorf("high risk under-constrained: %+v", high)
	}
	if high.RequiresIdentityVerification {
		t.Error("high risk must not require identity verification")
	}

	veryHigh := trust.Constraints(domain.RiskLevelVeryHigh)
	if !veryHigh.PhotosRequired || !veryHigh.SecureDeliveryRequired ||
		!veryHigh.RequiresEscrow || !veryHigh.RequiresIdentityVerification {
		t.Errorf("very high risk under-constrained: %+v", veryHigh)
	}
}
