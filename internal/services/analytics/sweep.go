package analytics

import (
	"fmt"
	"math"

	"CreditPulse/internal/domain/models"

	"gonum.org/v1/gonum/floats"
)

// Sweep re-solves the firm once per value of the named input, holding the
// other inputs fixed. Values that make the inputs invalid or fail to converge
// yield a point with Converged false instead of aborting the sweep.
func Sweep(in models.MarketInputs, name string, values []float64, cfg models.AnalyticsConfig) ([]models.SweepPoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := in.Get(name); err != nil {
		return nil, err
	}

	out := make([]models.SweepPoint, 0, len(values))
	for _, v := range values {
		p := models.SweepPoint{Input: name, Value: v}
		shifted, err := in.With(name, v)
		if err == nil {
			err = shifted.Validate()
		}
		if err != nil {
			p.Error = err.Error()
			out = append(out, p)
			continue
		}

		o, err := evaluate(shifted, cfg)
		if err != nil {
			p.Error = err.Error()
		}
		if o.ok {
			m := o.metrics
			p.Converged = true
			p.AssetValue = m.AssetValue
			p.AssetVolatility = m.AssetVolatility
			p.DistanceToDefault = m.DistanceToDefault
			p.ProbabilityOfDefault = m.ProbabilityOfDefault
			p.Leverage = m.Leverage
			p.NoDefaultRisk = m.NoDefaultRisk
		}
		out = append(out, p)
	}
	return out, nil
}

// Grid returns n evenly spaced values from lo to hi inclusive.
func Grid(lo, hi float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: grid needs at least 2 points, got %d", models.ErrInvalidInput, n)
	}
	if math.IsNaN(lo) || math.IsInf(lo, 0) || math.IsNaN(hi) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("%w: grid bounds must be finite", models.ErrInvalidInput)
	}
	return floats.Span(make([]float64, n), lo, hi), nil
}
