package analytics

import (
	"math"

	"CreditPulse/internal/domain/models"
)

// SensitivityInputs are the inputs bumped by Sensitivity, in output order.
var SensitivityInputs = []string{
	models.InputEquityVolatility,
	models.InputDebtFaceValue,
	models.InputRiskFreeRate,
}

// Sensitivity estimates ∂DD/∂input for equity volatility, debt and the
// risk-free rate by symmetric relative bumps. A side that fails to converge
// falls back to a one-sided difference against the baseline; a partial with
// no usable side is left undefined and the result is marked degraded.
func Sensitivity(in models.MarketInputs, cfg models.AnalyticsConfig) (models.SensitivityResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.SensitivityResult{}, err
	}
	if err := in.Validate(); err != nil {
		return models.SensitivityResult{}, err
	}
	out := models.SensitivityResult{
		Ticker:   in.Ticker,
		Date:     in.Date,
		Partials: make(map[string]models.Partial, len(SensitivityInputs)),
	}

	base, err := evaluate(in, cfg)
	if err != nil {
		return models.SensitivityResult{}, err
	}
	if base.ok && base.metrics.NoDefaultRisk {
		out.BaselineDD = models.NoDefaultRiskDD
		for _, name := range SensitivityInputs {
			out.Partials[name] = models.Partial{Method: models.DiffUndefined}
		}
		out.Degraded = true
		return out, nil
	}
	baseOK := base.ok
	baseDD := base.metrics.DistanceToDefault
	out.BaselineDD = baseDD

	for _, name := range SensitivityInputs {
		p, err := partial(in, name, cfg, baseDD, baseOK)
		if err != nil {
			return models.SensitivityResult{}, err
		}
		if p.Method != models.DiffCentral {
			out.Degraded = true
		}
		out.Partials[name] = p
	}
	return out, nil
}

func partial(in models.MarketInputs, name string, cfg models.AnalyticsConfig, baseDD float64, baseOK bool) (models.Partial, error) {
	x, err := in.Get(name)
	if err != nil {
		return models.Partial{}, err
	}
	delta := cfg.Sensitivity.RelativeStep * math.Abs(x)
	if delta == 0 {
		delta = cfg.Sensitivity.RelativeStep
	}

	bumped := func(v float64) (float64, bool) {
		shifted, err := in.With(name, v)
		if err != nil || shifted.Validate() != nil {
			return 0, false
		}
		return finiteDD(shifted, cfg)
	}
	return differentiate(x, delta, bumped, baseDD, baseOK), nil
}

// differentiate picks the best finite-difference scheme available around x.
func differentiate(x, delta float64, dd func(float64) (float64, bool), baseDD float64, baseOK bool) models.Partial {
	up, upOK := dd(x + delta)
	down, downOK := dd(x - delta)

	p := models.Partial{Step: delta}
	switch {
	case upOK && downOK:
		p.Value = (up - down) / (2 * delta)
		p.Method = models.DiffCentral
	case upOK && baseOK:
		p.Value = (up - baseDD) / delta
		p.Method = models.DiffForward
	case downOK && baseOK:
		p.Value = (baseDD - down) / delta
		p.Method = models.DiffBackward
	default:
		p.Method = models.DiffUndefined
	}
	if p.Defined() && (math.IsNaN(p.Value) || math.IsInf(p.Value, 0)) {
		p = models.Partial{Step: delta, Method: models.DiffUndefined}
	}
	return p
}
