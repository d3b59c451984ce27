package service

import (
	"context"

	"CreditPulse/internal/domain/models"
)

// Solver recovers asset value and volatility for one ticker-day.
type Solver interface {
	Solve(in models.MarketInputs, cfg models.SolverConfig) (models.SolverResult, error)
}

// MetricsDeriver converts a solver result into distance-to-default metrics.
type MetricsDeriver interface {
	Derive(in models.MarketInputs, res models.SolverResult, cfg models.RatingConfig, allowUnconverged bool) (models.CreditMetrics, error)
}

// SensitivityEngine estimates local partials of DD.
type SensitivityEngine interface {
	Sensitivity(in models.MarketInputs, cfg models.AnalyticsConfig) (models.SensitivityResult, error)
}

// BootstrapEngine builds a resampled confidence interval for DD and PD.
type BootstrapEngine interface {
	Bootstrap(ctx context.Context, ticker string, returns []float64, in models.MarketInputs, cfg models.AnalyticsConfig) (models.BootstrapResult, error)
}

// StressEngine applies a scenario and reports deltas against a fresh baseline.
type StressEngine interface {
	Stress(in models.MarketInputs, sc models.Scenario, cfg models.AnalyticsConfig) (models.StressResult, error)
}

// SignalDetector turns a per-ticker metric history into a trading signal.
type SignalDetector interface {
	Detect(history []models.CreditMetrics, cfg models.SignalConfig) models.Signal
}

// DriftEstimator computes physical-measure DD/PD and calibrated PDs.
type DriftEstimator interface {
	RealWorld(in models.MarketInputs, res models.SolverResult, assetValues []float64, cfg models.AnalyticsConfig) (models.RealWorldMetrics, error)
	CalibratedPD(dd float64, cfg models.CalibrationConfig) float64
}

// CreditEngine bundles every analytic the pipeline sequences per ticker-day.
type CreditEngine interface {
	Solver
	MetricsDeriver
	SensitivityEngine
	BootstrapEngine
	StressEngine
	SignalDetector
	DriftEstimator
}
