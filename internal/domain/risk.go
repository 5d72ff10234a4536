package domain

// RiskLevel is the coarse classification of a trade pairing's default risk.
// Ordering matters: higher values are stricter.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW_RISK"
	RiskLevelMedium   RiskLevel = "MEDIUM_RISK"
	RiskLevelHigh     RiskLevel = "HIGH_RISK"
	RiskLevelVeryHigh RiskLevel = "VERY_HIGH_RISK"
)

// riskRank maps levels onto a total order for monotonicity comparisons.
var riskRank = map[RiskLevel]int{
	RiskLevelLow:      0,
	RiskLevelMedium:   1,
	RiskLevelHigh:     2,
	RiskLevelVeryHigh: 3,
}

// StricterThan reports whether l imposes at least as strict constraints as o
// and is not equal to it.
func (l RiskLevel) StricterThan(o RiskLevel) bool {
	return riskRank[l] > riskRank[o]
}

// Security is the constraint set derived from the participants' trust scores.
// It is computed fresh at each pre-acceptance transition and snapshotted onto
// the trade at acceptance.
type Security struct {
	RiskLevel                    RiskLevel
	PhotosRequired               bool
	SecureDeliveryRequired       bool
	RequiresEscrow               bool
	RequiresIdentityVerification bool
}

// RiskAssessment is the full output of analyzing a prospective pairing. It is
// ephemeral: only the Security part survives, as the trade's snapshot.
type RiskAssessment struct {
	ScoreFrom   int
	ScoreTo     int
	LowestScore int
	Security    Security
}
