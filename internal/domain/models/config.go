package models

import (
	"fmt"

	"github.com/creasty/defaults"
)

// SolverConfig bounds the Newton iteration.
type SolverConfig struct {
	Tolerance     float64 `yaml:"tolerance" json:"tolerance" default:"1e-6" validate:"gt=0,lt=1"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations" default:"100" validate:"gte=1"`
}

// BootstrapConfig controls resampling of the equity return history.
type BootstrapConfig struct {
	Iterations      int     `yaml:"iterations" json:"iterations" default:"1000" validate:"gte=1"`
	Seed            uint64  `yaml:"seed" json:"seed"`
	ConfidenceLevel float64 `yaml:"confidence_level" json:"confidence_level" default:"0.95" validate:"gt=0,lt=1"`
	MinSuccessRate  float64 `yaml:"min_success_rate" json:"min_success_rate" default:"0.95" validate:"gte=0,lte=1"`
	MinReturns      int     `yaml:"min_returns" json:"min_returns" default:"30" validate:"gte=2"`
	Annualization   float64 `yaml:"annualization" json:"annualization" default:"252" validate:"gt=0"`
	// Workers caps parallel resamples; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`
}

// SensitivityConfig sets the relative bump used for finite differences.
type SensitivityConfig struct {
	RelativeStep float64 `yaml:"relative_step" json:"relative_step" default:"0.01" validate:"gt=0,lt=0.5"`
}

// SignalConfig drives the DD move detector.
type SignalConfig struct {
	LookbackDays int     `yaml:"lookback_days" json:"lookback_days" default:"21" validate:"gte=1"`
	DDThreshold  float64 `yaml:"dd_threshold" json:"dd_threshold" default:"1.0" validate:"gt=0"`
	MinStrength  float64 `yaml:"min_strength" json:"min_strength" validate:"gte=0,lte=1"`
	MaxGapDays   int     `yaml:"max_gap_days" json:"max_gap_days" default:"4" validate:"gte=1"`
}

// DriftConfig controls the physical-measure distance-to-default. The asset
// drift is estimated from recent implied asset values and shrunk toward the
// risk-free rate.
type DriftConfig struct {
	// Window is the number of trailing asset values used for the estimate.
	Window          int     `yaml:"window" json:"window" default:"63" validate:"gte=2"`
	MinObservations int     `yaml:"min_observations" json:"min_observations" default:"20" validate:"gte=1"`
	ShrinkTau       float64 `yaml:"shrink_tau" json:"shrink_tau" default:"2" validate:"gt=0"`
	PeriodsPerYear  float64 `yaml:"periods_per_year" json:"periods_per_year" default:"252" validate:"gt=0"`
}

// CalibrationConfig maps DD to an empirical PD with 1/(1+exp(-(a+b·DD))).
type CalibrationConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Intercept float64 `yaml:"intercept" json:"intercept"`
	Slope     float64 `yaml:"slope" json:"slope"`
}

// RatingBand assigns Label to any DD strictly above MinDD.
type RatingBand struct {
	Label string  `yaml:"label" json:"label" validate:"required"`
	MinDD float64 `yaml:"min_dd" json:"min_dd"`
}

// RatingConfig is an ordered, descending list of bands plus the label used
// below the bottom band.
type RatingConfig struct {
	Thresholds []RatingBand `yaml:"thresholds" json:"thresholds" validate:"dive"`
	Floor      string       `yaml:"floor" json:"floor" default:"B/CCC"`
}

// AnalyticsConfig is passed explicitly to every engine call.
type AnalyticsConfig struct {
	Solver      SolverConfig      `yaml:"solver" json:"solver"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap" json:"bootstrap"`
	Sensitivity SensitivityConfig `yaml:"sensitivity" json:"sensitivity"`
	Signal      SignalConfig      `yaml:"signal" json:"signal"`
	Rating      RatingConfig      `yaml:"rating" json:"rating"`
	Drift       DriftConfig       `yaml:"drift" json:"drift"`
	Calibration CalibrationConfig `yaml:"calibration" json:"calibration"`
}

// DefaultRatingBands mirrors the agency-style buckets used on the dashboard.
func DefaultRatingBands() []RatingBand {
	return []RatingBand{
		{Label: "AAA", MinDD: 10},
		{Label: "AA", MinDD: 8},
		{Label: "A", MinDD: 6},
		{Label: "BBB", MinDD: 4},
		{Label: "BB", MinDD: 2},
	}
}

// DefaultAnalyticsConfig returns the documented defaults.
func DefaultAnalyticsConfig() AnalyticsConfig {
	var cfg AnalyticsConfig
	cfg.ApplyDefaults()
	cfg.Bootstrap.Seed = 42
	return cfg
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *AnalyticsConfig) ApplyDefaults() {
	_ = defaults.Set(c)
	if len(c.Rating.Thresholds) == 0 {
		c.Rating.Thresholds = DefaultRatingBands()
	}
}

// Validate rejects structurally invalid configuration.
func (c AnalyticsConfig) Validate() error {
	s := c.Solver
	if !(s.Tolerance > 0 && s.Tolerance < 1) {
		return fmt.Errorf("%w: solver.tolerance must be in (0,1), got %g", ErrInvalidConfig, s.Tolerance)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("%w: solver.max_iterations must be >= 1", ErrInvalidConfig)
	}

	b := c.Bootstrap
	if b.Iterations < 1 {
		return fmt.Errorf("%w: bootstrap.iterations must be >= 1", ErrInvalidConfig)
	}
	if !(b.ConfidenceLevel > 0 && b.ConfidenceLevel < 1) {
		return fmt.Errorf("%w: bootstrap.confidence_level must be in (0,1)", ErrInvalidConfig)
	}
	if b.MinSuccessRate < 0 || b.MinSuccessRate > 1 {
		return fmt.Errorf("%w: bootstrap.min_success_rate must be in [0,1]", ErrInvalidConfig)
	}
	if b.MinReturns < 2 {
		return fmt.Errorf("%w: bootstrap.min_returns must be >= 2", ErrInvalidConfig)
	}
	if b.Annualization <= 0 {
		return fmt.Errorf("%w: bootstrap.annualization must be positive", ErrInvalidConfig)
	}
	if b.Workers < 0 {
		return fmt.Errorf("%w: bootstrap.workers must be >= 0", ErrInvalidConfig)
	}

	if st := c.Sensitivity.RelativeStep; !(st > 0 && st < 0.5) {
		return fmt.Errorf("%w: sensitivity.relative_step must be in (0,0.5), got %g", ErrInvalidConfig, st)
	}

	sg := c.Signal
	if sg.LookbackDays < 1 {
		return fmt.Errorf("%w: signal.lookback_days must be >= 1", ErrInvalidConfig)
	}
	if !(sg.DDThreshold > 0) {
		return fmt.Errorf("%w: signal.dd_threshold must be positive", ErrInvalidConfig)
	}
	if sg.MinStrength < 0 || sg.MinStrength > 1 {
		return fmt.Errorf("%w: signal.min_strength must be in [0,1]", ErrInvalidConfig)
	}
	if sg.MaxGapDays < 1 {
		return fmt.Errorf("%w: signal.max_gap_days must be >= 1", ErrInvalidConfig)
	}

	d := c.Drift
	if d.Window < 2 {
		return fmt.Errorf("%w: drift.window must be >= 2", ErrInvalidConfig)
	}
	if d.MinObservations < 1 || d.MinObservations >= d.Window {
		return fmt.Errorf("%w: drift.min_observations must be in [1, window)", ErrInvalidConfig)
	}
	if !(d.ShrinkTau > 0) {
		return fmt.Errorf("%w: drift.shrink_tau must be positive", ErrInvalidConfig)
	}
	if !(d.PeriodsPerYear > 0) {
		return fmt.Errorf("%w: drift.periods_per_year must be positive", ErrInvalidConfig)
	}
	if c.Calibration.Enabled && !(c.Calibration.Slope < 0) {
		return fmt.Errorf("%w: calibration.slope must be negative so PD falls as DD rises", ErrInvalidConfig)
	}

	r := c.Rating
	if len(r.Thresholds) == 0 {
		return fmt.Errorf("%w: rating.thresholds is required", ErrInvalidConfig)
	}
	if r.Floor == "" {
		return fmt.Errorf("%w: rating.floor is required", ErrInvalidConfig)
	}
	for i, band := range r.Thresholds {
		if band.Label == "" {
			return fmt.Errorf("%w: rating.thresholds[%d].label is required", ErrInvalidConfig, i)
		}
		if i > 0 && !(band.MinDD < r.Thresholds[i-1].MinDD) {
			return fmt.Errorf("%w: rating.thresholds must be strictly descending at index %d", ErrInvalidConfig, i)
		}
	}
	return nil
}
