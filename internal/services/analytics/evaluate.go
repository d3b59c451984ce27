package analytics

import (
	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/merton"
)

// outcome is one Solver+MetricsDeriver pass.
type outcome struct {
	solver  models.SolverResult
	metrics models.CreditMetrics
	ok      bool // converged and metrics derived
}

// evaluate runs Solver then MetricsDeriver. Invalid inputs are returned as
// errors; non-convergence is reported through ok.
func evaluate(in models.MarketInputs, cfg models.AnalyticsConfig) (outcome, error) {
	res, err := merton.Solve(in, cfg.Solver)
	if err != nil {
		return outcome{}, err
	}
	o := outcome{solver: res}
	if !res.Converged {
		return o, nil
	}
	m, err := merton.Derive(in, res, cfg.Rating, merton.DeriveOptions{})
	if err != nil {
		return o, nil
	}
	o.metrics = m
	o.ok = true
	return o, nil
}

// finiteDD evaluates the inputs and reports a usable, finite DD.
func finiteDD(in models.MarketInputs, cfg models.AnalyticsConfig) (float64, bool) {
	o, err := evaluate(in, cfg)
	if err != nil || !o.ok || o.metrics.NoDefaultRisk {
		return 0, false
	}
	return o.metrics.DistanceToDefault, true
}
