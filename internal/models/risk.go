package models

// RiskTier is the risk band assigned to a loan by the scoring job or by
// a manual override.
type RiskTier string

const (
	TierLow    RiskTier = "Bajo"
	TierMedium RiskTier = "Medio"
	TierHigh   RiskTier = "Alto"
)

// ValidTier reports whether t is one of the three known tiers.
func ValidTier(t RiskTier) bool {
	return t == TierLow || t == TierMedium || t == TierHigh
}

// RiskAssessment holds the machine-computed default risk for a loan plus
// an optional manual override. Manual fields are set and cleared only
// through the mutation coordinator, and are always both present or both
// absent.
type RiskAssessment struct {
	LoanID              int64     `json:"loan_id"`
	ComputedTier        RiskTier  `json:"computed_tier"`
	ComputedProbability float64   `json:"computed_probability"`
	ManualTier          *RiskTier `json:"manual_tier,omitempty"`
	ManualProbability   *float64  `json:"manual_probability,omitempty"`
}

// IsManual reports whether a manual override is in effect.
func (a RiskAssessment) IsManual() bool {
	return a.ManualTier != nil && a.ManualProbability != nil
}

// EffectiveRisk is the risk actually used for display and decisions:
// the manual override when present, the computed score otherwise.
type EffectiveRisk struct {
	Tier        RiskTier `json:"tier"`
	Probability float64  `json:"probability"`
	IsManual    bool     `json:"is_manual"`
}
