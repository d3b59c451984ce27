package merton

import (
	"fmt"
	"math"

	"CreditPulse/internal/domain/models"
)

// Sanity bounds for an annualized asset volatility.
const (
	minAssetVol = 1e-4
	maxAssetVol = 3.0
)

// DeriveOptions tunes Derive.
type DeriveOptions struct {
	// AllowUnconverged lets callers derive metrics from the last iterate of a
	// solve that did not converge. The result carries a warning.
	AllowUnconverged bool
}

// DistanceToDefault computes the Merton distance-to-default under drift mu.
func DistanceToDefault(assetValue, assetVolatility, debt, mu, horizon float64) float64 {
	if debt == 0 {
		return models.NoDefaultRiskDD
	}
	return (math.Log(assetValue/debt) + (mu-0.5*assetVolatility*assetVolatility)*horizon) /
		(assetVolatility * math.Sqrt(horizon))
}

// ProbabilityOfDefault maps DD to the one-horizon default probability N(-DD).
func ProbabilityOfDefault(dd float64) float64 {
	if dd == models.NoDefaultRiskDD {
		return 0
	}
	return NormCDF(-dd)
}

// Bucket returns the label of the first band whose threshold DD exceeds, or
// the floor label when it exceeds none.
func Bucket(dd float64, cfg models.RatingConfig) string {
	for _, band := range cfg.Thresholds {
		if dd > band.MinDD {
			return band.Label
		}
	}
	return cfg.Floor
}

// Derive turns a solver result into credit metrics. It refuses unconverged
// results unless opts.AllowUnconverged is set.
func Derive(in models.MarketInputs, res models.SolverResult, rating models.RatingConfig, opts DeriveOptions) (models.CreditMetrics, error) {
	if !res.Converged && !opts.AllowUnconverged {
		return models.CreditMetrics{}, fmt.Errorf("%w: solver did not converge for %s", models.ErrInvalidState, in.Key())
	}
	if !(res.AssetValue > 0) || !(res.AssetVolatility > 0) ||
		math.IsInf(res.AssetValue, 0) || math.IsInf(res.AssetVolatility, 0) {
		return models.CreditMetrics{}, fmt.Errorf("%w: non-positive asset estimate for %s", models.ErrInvalidState, in.Key())
	}

	m := models.CreditMetrics{
		Ticker:          in.Ticker,
		Date:            in.Date,
		AssetValue:      res.AssetValue,
		AssetVolatility: res.AssetVolatility,
		Leverage:        in.DebtFaceValue / res.AssetValue,
		EquityToAsset:   in.EquityValue / res.AssetValue,
	}
	if !res.Converged {
		m.Warnings = append(m.Warnings, models.WarnDerivedFromUnconverged)
	}

	if in.DebtFaceValue == 0 {
		m.DistanceToDefault = models.NoDefaultRiskDD
		m.ProbabilityOfDefault = 0
		m.NoDefaultRisk = true
		m.RatingBucket = Bucket(m.DistanceToDefault, rating)
		return m, nil
	}

	m.DistanceToDefault = DistanceToDefault(res.AssetValue, res.AssetVolatility, in.DebtFaceValue, in.RiskFreeRate, in.HorizonYears)
	m.ProbabilityOfDefault = ProbabilityOfDefault(m.DistanceToDefault)
	m.RatingBucket = Bucket(m.DistanceToDefault, rating)
	m.Warnings = append(m.Warnings, warnings(in, m)...)
	return m, nil
}

func warnings(in models.MarketInputs, m models.CreditMetrics) []string {
	var out []string
	if m.AssetValue <= in.EquityValue {
		out = append(out, models.WarnAssetBelowEquity)
	}
	if m.AssetVolatility >= in.EquityVolatility {
		out = append(out, models.WarnAssetVolAboveEquity)
	}
	if m.AssetVolatility < minAssetVol || m.AssetVolatility > maxAssetVol {
		out = append(out, models.WarnAssetVolOutOfBounds)
	}
	if m.ProbabilityOfDefault > 0.5 {
		out = append(out, models.WarnPDAboveHalf)
	}
	switch {
	case m.DistanceToDefault < -5:
		out = append(out, models.WarnDDExtremeLow)
	case m.DistanceToDefault > 10:
		out = append(out, models.WarnDDExtremeHigh)
	}
	return out
}
