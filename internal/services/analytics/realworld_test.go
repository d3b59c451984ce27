package analytics

import (
	"math"
	"testing"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/merton"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// growing returns n+1 asset values compounding at g per period.
func growing(n int, g float64) []float64 {
	out := make([]float64, n+1)
	for i := range out {
		out[i] = 1000 * math.Exp(g*float64(i))
	}
	return out
}

func solved(t *testing.T, in models.MarketInputs, cfg models.AnalyticsConfig) models.SolverResult {
	t.Helper()
	res, err := merton.Solve(in, cfg.Solver)
	require.NoError(t, err)
	require.True(t, res.Converged)
	return res
}

func TestRealWorldFallsBackToRiskFree(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	in := firm(400, 600, 0.35, 0.04)
	res := solved(t, in, cfg)

	rw, err := RealWorld(in, res, growing(5, 0.002), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, rw.Observations)
	assert.Equal(t, 0.0, rw.EstimatedDrift)
	assert.Equal(t, in.RiskFreeRate, rw.Drift)
	assert.InDelta(t, ddOf(t, in, cfg), rw.DistanceToDefault, 1e-12)

	rw, err = RealWorld(in, res, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, in.RiskFreeRate, rw.Drift)
}

func TestRealWorldShrinksEstimate(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	in := firm(400, 600, 0.35, 0.04)
	res := solved(t, in, cfg)

	rw, err := RealWorld(in, res, growing(30, 0.001), cfg)
	require.NoError(t, err)
	require.Equal(t, 30, rw.Observations)
	assert.InDelta(t, 0.252, rw.EstimatedDrift, 1e-9)

	w := 30.0 / (30.0 + cfg.Drift.ShrinkTau)
	want := w*0.252 + (1-w)*in.RiskFreeRate
	assert.InDelta(t, want, rw.Drift, 1e-9)

	dd := merton.DistanceToDefault(res.AssetValue, res.AssetVolatility, in.DebtFaceValue, want, in.HorizonYears)
	assert.InDelta(t, dd, rw.DistanceToDefault, 1e-9)
	assert.InDelta(t, merton.ProbabilityOfDefault(dd), rw.ProbabilityOfDefault, 1e-12)
	// a drift above r moves the firm away from default
	assert.Greater(t, rw.DistanceToDefault, ddOf(t, in, cfg))
}

func TestRealWorldUsesTrailingWindow(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	in := firm(400, 600, 0.35, 0.04)
	res := solved(t, in, cfg)

	// early values fall, the trailing window grows
	levels := append(growing(100, -0.01), growing(cfg.Drift.Window, 0.001)...)
	rw, err := RealWorld(in, res, levels, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Drift.Window, rw.Observations)
	assert.InDelta(t, 0.252, rw.EstimatedDrift, 1e-9)
}

func TestRealWorldErrors(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	in := firm(400, 600, 0.35, 0.04)
	res := solved(t, in, cfg)

	bad := cfg
	bad.Drift.MinObservations = bad.Drift.Window
	_, err := RealWorld(in, res, growing(30, 0.001), bad)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	res.Converged = false
	_, err = RealWorld(in, res, growing(30, 0.001), cfg)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestCalibratedPD(t *testing.T) {
	cal := models.CalibrationConfig{Enabled: true, Intercept: -1, Slope: -1}
	assert.InDelta(t, 1/(1+math.Exp(3)), CalibratedPD(2, cal), 1e-15)
	assert.Greater(t, CalibratedPD(1, cal), CalibratedPD(2, cal))
	assert.Equal(t, 0.0, CalibratedPD(models.NoDefaultRiskDD, cal))
}
