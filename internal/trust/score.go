// Package trust computes bounded trust scores from trade history and derives
// the risk level and security constraints for a prospective pairing of two
// users.
package trust

import (
	"github.com/barterloop/barterloop/internal/domain"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100

	baseScore = 50

	// completedWeight is the maximum bonus a flawless, seasoned trader can
	// earn on top of the base score.
	completedWeight = 40
	// saturationTrades is the completed-trade count at which the history
	// bonus stops growing.
	saturationTrades = 10
	// violationPenalty is subtracted per recorded violation.
	violationPenalty = 15
)

// Score derives a bounded trust score in [0,100] from a user's trade stats.
// It rises with completed trades (weighted by the completion ratio,
// saturating at saturationTrades) and drops by a fixed penalty per violation.
// A user with no history sits at the base score.
func Score(stats domain.TradeStats) int {
	score := float64(baseScore)

	if stats.Total > 0 {
		ratio := float64(stats.Completed) / float64(stats.Total)
		volume := float64(stats.Completed) / saturationTrades
		if volume > 1 {
			volume = 1
		}
		score += completedWeight * ratio * volume
	}

	score -= violationPenalty * float64(stats.Violations)

	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return int(score)
}

// Risk level thresholds over the lower of the two participants' scores.
const (
	lowRiskFloor    = 75
	mediumRiskFloor = 50
	highRiskFloor   = 10
)

// LevelFor maps the lowest participant score to a risk level. A participant
// with zero trade history forces VERY_HIGH_RISK regardless of score, so a
// first-ever trade always carries identity verification.
func LevelFor(lowestScore int, newAccount bool) domain.RiskLevel {
	if newAccount {
		return domain.RiskLevelVeryHigh
	}
	switch {
	case lowestScore >= lowRiskFloor:
		return domain.RiskLevelLow
	case lowestScore >= mediumRiskFloor:
		return domain.RiskLevelMedium
	case lowestScore >= highRiskFloor:
		return domain.RiskLevelHigh
	default:
		return domain.RiskLevelVeryHigh
	}
}

// Constraints derives the security constraint set for a risk level. The
// constraints are cumulative: each level carries everything the level below
// it requires.
func Constraints(level domain.RiskLevel) domain.Security {
	sec := domain.Security{RiskLevel: level}
	switch level {
	case domain.RiskLevelVeryHigh:
		sec.RequiresIdentityVerification = true
		fallthrough
	case domain.RiskLevelHigh:
		sec.RequiresEscrow = true
		sec.SecureDeliveryRequired = true
		fallthrough
	case domain.RiskLevelMedium:
		sec.PhotosRequired = true
	}
	return sec
}
