package merton

import (
	"fmt"
	"math"

	"CreditPulse/internal/domain/models"
)

// DefaultShrinkTau is the pseudo-observation count pulling an estimated asset
// drift toward the risk-free rate.
const DefaultShrinkTau = 2.0

// ShrinkDrift blends an estimated drift with the risk-free rate using the
// weight n/(n+tau).
func ShrinkDrift(muHat, riskFree float64, n int, tau float64) float64 {
	if n <= 0 || math.IsNaN(muHat) {
		return riskFree
	}
	w := float64(n) / (float64(n) + tau)
	return w*muHat + (1-w)*riskFree
}

// RealWorldDD is the physical-measure distance-to-default, using the asset
// drift mu in place of the risk-free rate.
func RealWorldDD(in models.MarketInputs, res models.SolverResult, mu float64) (float64, error) {
	if !res.Converged {
		return 0, fmt.Errorf("%w: solver did not converge for %s", models.ErrInvalidState, in.Key())
	}
	return DistanceToDefault(res.AssetValue, res.AssetVolatility, in.DebtFaceValue, mu, in.HorizonYears), nil
}

// LogisticPD maps DD to a default probability with a fitted logistic curve
// 1/(1+exp(-(a+b·DD))). It is an empirical alternative to N(-DD).
func LogisticPD(dd, a, b float64) float64 {
	if dd == models.NoDefaultRiskDD {
		return 0
	}
	return 1 / (1 + math.Exp(-(a + b*dd)))
}
