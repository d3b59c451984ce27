package analytics

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticReturns draws daily log returns with a known annualized volatility.
func syntheticReturns(seed uint64, n int, annualVol float64) []float64 {
	rng := rand.New(rand.NewPCG(seed, 1))
	daily := annualVol / math.Sqrt(features.TradingDaysPerYear)
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64() * daily
	}
	return out
}

func bootstrapCfg(iterations int, seed uint64) models.AnalyticsConfig {
	cfg := models.DefaultAnalyticsConfig()
	cfg.Bootstrap.Iterations = iterations
	cfg.Bootstrap.Seed = seed
	return cfg
}

func TestBootstrapDeterministicAcrossWorkers(t *testing.T) {
	returns := syntheticReturns(11, 250, 0.3)
	in := firm(500, 800, features.SampleVolatility(returns, features.TradingDaysPerYear), 0.03)

	cfg := bootstrapCfg(300, 1234)
	cfg.Bootstrap.Workers = 1
	serial, err := Bootstrap(context.Background(), in.Ticker, returns, in, cfg)
	require.NoError(t, err)

	cfg.Bootstrap.Workers = 8
	parallel, err := Bootstrap(context.Background(), in.Ticker, returns, in, cfg)
	require.NoError(t, err)
	again, err := Bootstrap(context.Background(), in.Ticker, returns, in, cfg)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
	assert.Equal(t, parallel, again)
	assert.Equal(t, 300, serial.IterationsRequested)
	assert.Equal(t, 300, serial.IterationsUsed)
	assert.Equal(t, 1.0, serial.SuccessRate)
	assert.False(t, serial.LowConfidence)
	assert.False(t, serial.Truncated)
	assert.LessOrEqual(t, serial.DDCI.Low, serial.DDMedian)
	assert.GreaterOrEqual(t, serial.DDCI.High, serial.DDMedian)
	assert.Greater(t, serial.DDStd, 0.0)

	cfg.Bootstrap.Seed = 4321
	other, err := Bootstrap(context.Background(), in.Ticker, returns, in, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, serial.DDMean, other.DDMean)
}

func TestBootstrapIntervalCoversPointEstimate(t *testing.T) {
	returns := syntheticReturns(7, 250, 0.35)
	in := firm(500, 800, features.SampleVolatility(returns, features.TradingDaysPerYear), 0.03)
	point := ddOf(t, in, models.DefaultAnalyticsConfig())

	runs, covered := 20, 0
	for seed := uint64(1); seed <= uint64(runs); seed++ {
		res, err := Bootstrap(context.Background(), in.Ticker, returns, in, bootstrapCfg(200, seed*7919))
		require.NoError(t, err)
		if res.DDCI.Contains(point) {
			covered++
		}
	}
	assert.GreaterOrEqual(t, float64(covered)/float64(runs), 0.9)
}

func TestBootstrapInsufficientHistory(t *testing.T) {
	in := firm(500, 800, 0.3, 0.03)
	res, err := Bootstrap(context.Background(), in.Ticker, syntheticReturns(1, 10, 0.3), in, bootstrapCfg(100, 1))
	require.NoError(t, err)
	assert.True(t, res.InsufficientHistory)
	assert.True(t, res.LowConfidence)
	assert.Equal(t, 0, res.IterationsUsed)
}

func TestBootstrapLowConfidence(t *testing.T) {
	in := firm(10, 1000, 0.6, 0.02)
	cfg := bootstrapCfg(50, 3)
	cfg.Solver.MaxIterations = 1

	res, err := Bootstrap(context.Background(), in.Ticker, syntheticReturns(2, 120, 0.6), in, cfg)
	require.NoError(t, err)
	assert.True(t, res.LowConfidence)
	assert.Less(t, res.SuccessRate, cfg.Bootstrap.MinSuccessRate)
	assert.Equal(t, 50, res.IterationsRequested)
}

func TestBootstrapCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := firm(500, 800, 0.3, 0.03)
	res, err := Bootstrap(ctx, in.Ticker, syntheticReturns(1, 100, 0.3), in, bootstrapCfg(100, 1))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, res.LowConfidence)
	assert.Equal(t, 0, res.IterationsUsed)
}

func TestPercentile(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, percentile(xs, 0))
	assert.Equal(t, 3.0, percentile(xs, 0.5))
	assert.Equal(t, 5.0, percentile(xs, 1))
	assert.InDelta(t, 1.1, percentile(xs, 0.025), 1e-12)
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.3))
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	in := firm(500, 800, 0.3, 0.03)
	returns := syntheticReturns(1, 100, 0.3)

	for name, mutate := range map[string]func(*models.AnalyticsConfig){
		"confidence above one": func(c *models.AnalyticsConfig) { c.Bootstrap.ConfidenceLevel = 1.2 },
		"no iterations":        func(c *models.AnalyticsConfig) { c.Bootstrap.Iterations = 0 },
		"no annualization":     func(c *models.AnalyticsConfig) { c.Bootstrap.Annualization = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := bootstrapCfg(100, 1)
			mutate(&cfg)
			assert.NotPanics(t, func() {
				_, err := Bootstrap(context.Background(), in.Ticker, returns, in, cfg)
				assert.ErrorIs(t, err, models.ErrInvalidConfig)
			})
		})
	}
}

func TestBootstrapReportsRealizedVolatility(t *testing.T) {
	in := firm(500, 800, 0.3, 0.03)
	returns := syntheticReturns(4, 250, 0.3)

	res, err := Bootstrap(context.Background(), in.Ticker, returns, in, bootstrapCfg(50, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.RealizedVolatility, 0.05)
}
