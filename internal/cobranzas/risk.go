package cobranzas

import (
	"github.com/rlagos/cobranzas-service/internal/models"
)

// EffectiveRisk resolves the risk actually shown for a loan: the manual
// override when one is set, the computed score otherwise.
func EffectiveRisk(a models.RiskAssessment) models.EffectiveRisk {
	if a.IsManual() {
		return models.EffectiveRisk{
			Tier:        *a.ManualTier,
			Probability: *a.ManualProbability,
			IsManual:    true,
		}
	}
	return models.EffectiveRisk{
		Tier:        a.ComputedTier,
		Probability: a.ComputedProbability,
	}
}

// ValidateOverride checks a requested manual override before it is
// written. Probability must lie in [0,1] and the tier must be one of the
// known bands.
func ValidateOverride(tier models.RiskTier, probability float64) error {
	if !models.ValidTier(tier) {
		return validationf("unknown risk tier %q", tier)
	}
	if probability < 0 || probability > 1 {
		return validationf("probability %v outside [0,1]", probability)
	}
	return nil
}

// ApplyOverride sets the manual fields on an assessment. Repeating the
// same override leaves the assessment unchanged (idempotent).
func ApplyOverride(a models.RiskAssessment, tier models.RiskTier, probability float64) models.RiskAssessment {
	a.ManualTier = &tier
	a.ManualProbability = &probability
	return a
}

// ClearOverride removes the manual fields, reverting the effective risk
// to the computed values.
func ClearOverride(a models.RiskAssessment) models.RiskAssessment {
	a.ManualTier = nil
	a.ManualProbability = nil
	return a
}
