package analytics

import (
	"math"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/features"
	"CreditPulse/internal/services/merton"
)

// RealWorld computes DD and PD under the physical measure. assetValues are
// implied asset values, oldest first, ending with res.AssetValue. Fewer than
// cfg.Drift.MinObservations usable returns fall back to the risk-free rate;
// otherwise the estimated drift is shrunk toward it.
func RealWorld(in models.MarketInputs, res models.SolverResult, assetValues []float64, cfg models.AnalyticsConfig) (models.RealWorldMetrics, error) {
	if err := cfg.Validate(); err != nil {
		return models.RealWorldMetrics{}, err
	}
	dc := cfg.Drift
	if len(assetValues) > dc.Window+1 {
		assetValues = assetValues[len(assetValues)-dc.Window-1:]
	}

	muHat, n := features.EstimateDrift(assetValues, dc.PeriodsPerYear)
	out := models.RealWorldMetrics{Observations: n}
	if n < dc.MinObservations {
		muHat, n = math.NaN(), 0
	} else {
		out.EstimatedDrift = muHat
	}
	out.Drift = merton.ShrinkDrift(muHat, in.RiskFreeRate, n, dc.ShrinkTau)

	dd, err := merton.RealWorldDD(in, res, out.Drift)
	if err != nil {
		return models.RealWorldMetrics{}, err
	}
	out.DistanceToDefault = dd
	out.ProbabilityOfDefault = merton.ProbabilityOfDefault(dd)
	return out, nil
}

// CalibratedPD maps DD through the configured logistic curve.
func CalibratedPD(dd float64, cfg models.CalibrationConfig) float64 {
	return merton.LogisticPD(dd, cfg.Intercept, cfg.Slope)
}
