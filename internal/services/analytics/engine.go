package analytics

import (
	"context"

	"CreditPulse/internal/domain/models"
	domsvc "CreditPulse/internal/domain/service"
	"CreditPulse/internal/services/merton"
)

// Engine exposes the stateless analytics behind the domain interfaces so the
// pipeline can be tested against fakes.
type Engine struct{}

var _ domsvc.CreditEngine = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine() *Engine { return &Engine{} }

func (e *Engine) Solve(in models.MarketInputs, cfg models.SolverConfig) (models.SolverResult, error) {
	return merton.Solve(in, cfg)
}

func (e *Engine) Derive(in models.MarketInputs, res models.SolverResult, cfg models.RatingConfig, allowUnconverged bool) (models.CreditMetrics, error) {
	return merton.Derive(in, res, cfg, merton.DeriveOptions{AllowUnconverged: allowUnconverged})
}

func (e *Engine) Sensitivity(in models.MarketInputs, cfg models.AnalyticsConfig) (models.SensitivityResult, error) {
	return Sensitivity(in, cfg)
}

func (e *Engine) Bootstrap(ctx context.Context, ticker string, returns []float64, in models.MarketInputs, cfg models.AnalyticsConfig) (models.BootstrapResult, error) {
	return Bootstrap(ctx, ticker, returns, in, cfg)
}

func (e *Engine) Stress(in models.MarketInputs, sc models.Scenario, cfg models.AnalyticsConfig) (models.StressResult, error) {
	return Stress(in, sc, cfg)
}

func (e *Engine) RealWorld(in models.MarketInputs, res models.SolverResult, assetValues []float64, cfg models.AnalyticsConfig) (models.RealWorldMetrics, error) {
	return RealWorld(in, res, assetValues, cfg)
}

func (e *Engine) CalibratedPD(dd float64, cfg models.CalibrationConfig) float64 {
	return CalibratedPD(dd, cfg)
}

func (e *Engine) Detect(history []models.CreditMetrics, cfg models.SignalConfig) models.Signal {
	return Detect(history, cfg)
}
