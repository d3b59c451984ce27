package models

import (
	"math"
	"time"
)

// NoDefaultRiskDD is the distance-to-default reported for a firm without debt.
const NoDefaultRiskDD = math.MaxFloat64

// SolverResult holds the latent asset value and volatility recovered for one
// ticker-day. When Converged is false the fields carry the last iterate.
type SolverResult struct {
	Ticker          string    `json:"ticker"`
	Date            time.Time `json:"date"`
	AssetValue      float64   `json:"asset_value"`
	AssetVolatility float64   `json:"asset_volatility"`
	Converged       bool      `json:"converged"`
	Iterations      int       `json:"iterations"`
	ResidualNorm    float64   `json:"residual_norm"`
	NearBoundary    bool      `json:"near_boundary"`
}

// Metric warnings attached to CreditMetrics. They never block a result.
const (
	WarnAssetBelowEquity       = "asset_below_equity"
	WarnAssetVolAboveEquity    = "asset_vol_above_equity_vol"
	WarnPDAboveHalf            = "pd_above_half"
	WarnDDExtremeLow           = "dd_extreme_low"
	WarnDDExtremeHigh          = "dd_extreme_high"
	WarnAssetVolOutOfBounds    = "asset_vol_out_of_bounds"
	WarnDerivedFromUnconverged = "derived_from_unconverged"
)

// CreditMetrics is the distance-to-default view of one ticker-day.
type CreditMetrics struct {
	Ticker               string    `json:"ticker"`
	Date                 time.Time `json:"date"`
	DistanceToDefault    float64   `json:"distance_to_default"`
	ProbabilityOfDefault float64   `json:"probability_of_default"`
	RatingBucket         string    `json:"rating_bucket"`
	NoDefaultRisk        bool      `json:"no_default_risk"`
	AssetValue           float64   `json:"asset_value"`
	AssetVolatility      float64   `json:"asset_volatility"`
	Leverage             float64   `json:"leverage"`
	EquityToAsset        float64   `json:"equity_to_asset"`
	Warnings             []string  `json:"warnings,omitempty"`
	// RealWorld is set when the physical-measure analysis runs.
	RealWorld *RealWorldMetrics `json:"real_world,omitempty"`
	// CalibratedPD is the logistic PD when a calibration is configured.
	CalibratedPD *float64 `json:"calibrated_pd,omitempty"`
}

// RealWorldMetrics is DD/PD under an estimated asset drift instead of the
// risk-free rate.
type RealWorldMetrics struct {
	Drift                float64 `json:"drift"`
	EstimatedDrift       float64 `json:"estimated_drift"`
	Observations         int     `json:"observations"`
	DistanceToDefault    float64 `json:"distance_to_default"`
	ProbabilityOfDefault float64 `json:"probability_of_default"`
}

// Interval is a closed confidence interval.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies within the interval.
func (i Interval) Contains(v float64) bool { return v >= i.Low && v <= i.High }

// BootstrapResult aggregates the resampled distance-to-default distribution.
type BootstrapResult struct {
	Ticker              string    `json:"ticker"`
	Date                time.Time `json:"date"`
	DDMean              float64   `json:"dd_mean"`
	DDMedian            float64   `json:"dd_median"`
	DDStd               float64   `json:"dd_std"`
	DDCI                Interval  `json:"dd_ci"`
	PDMean              float64   `json:"pd_mean"`
	PDMedian            float64   `json:"pd_median"`
	PDCI                Interval  `json:"pd_ci"`
	ConfidenceLevel     float64   `json:"confidence_level"`
	SuccessRate         float64   `json:"success_rate"`
	IterationsRequested int       `json:"iterations_requested"`
	IterationsUsed      int       `json:"iterations_used"`
	LowConfidence       bool      `json:"low_confidence"`
	InsufficientHistory bool      `json:"insufficient_history"`
	Truncated           bool      `json:"truncated"`
	// RealizedVolatility is the annualized equity volatility of the full
	// return window the resamples are drawn from.
	RealizedVolatility float64 `json:"realized_volatility"`
}

// DiffMethod is the finite-difference scheme used for a partial.
type DiffMethod string

const (
	DiffCentral   DiffMethod = "central"
	DiffForward   DiffMethod = "forward"
	DiffBackward  DiffMethod = "backward"
	DiffUndefined DiffMethod = "undefined"
)

// Partial is one ∂DD/∂input estimate. Value is meaningless when Method is
// DiffUndefined.
type Partial struct {
	Value  float64    `json:"value"`
	Method DiffMethod `json:"method"`
	Step   float64    `json:"step"`
}

// Defined reports whether the partial carries an estimate.
func (p Partial) Defined() bool { return p.Method != DiffUndefined }

// SensitivityResult maps input names to local partials of DD.
type SensitivityResult struct {
	Ticker     string             `json:"ticker"`
	Date       time.Time          `json:"date"`
	BaselineDD float64            `json:"baseline_dd"`
	Partials   map[string]Partial `json:"partials"`
	Degraded   bool               `json:"degraded"`
}

// ShockKind selects how a shock combines with the input.
type ShockKind string

const (
	ShockMultiplicative ShockKind = "multiplicative"
	ShockAdditive       ShockKind = "additive"
)

// Shock perturbs one named input.
type Shock struct {
	Input string    `json:"input" yaml:"input" validate:"required"`
	Kind  ShockKind `json:"kind" yaml:"kind" validate:"oneof=multiplicative additive"`
	Value float64   `json:"value" yaml:"value"`
}

// Scenario is a named set of shocks applied together.
type Scenario struct {
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Shocks      []Shock `json:"shocks" yaml:"shocks" validate:"dive"`
}

// StressResult compares a shocked solve against a baseline computed in the same call.
type StressResult struct {
	Ticker        string       `json:"ticker"`
	Date          time.Time    `json:"date"`
	ScenarioName  string       `json:"scenario_name"`
	ShockedInputs MarketInputs `json:"shocked_inputs"`
	BaselineDD    float64      `json:"baseline_dd"`
	BaselinePD    float64      `json:"baseline_pd"`
	ShockedDD     float64      `json:"shocked_dd"`
	ShockedPD     float64      `json:"shocked_pd"`
	DeltaDD       float64      `json:"delta_dd"`
	DeltaPD       float64      `json:"delta_pd"`
	Converged     bool         `json:"converged"`
}

// SweepPoint is one evaluation of a parameter sweep. Metric fields are zero
// when the point did not converge or its inputs were rejected.
type SweepPoint struct {
	Input                string  `json:"input"`
	Value                float64 `json:"value"`
	AssetValue           float64 `json:"asset_value"`
	AssetVolatility      float64 `json:"asset_volatility"`
	DistanceToDefault    float64 `json:"distance_to_default"`
	ProbabilityOfDefault float64 `json:"probability_of_default"`
	Leverage             float64 `json:"leverage"`
	Converged            bool    `json:"converged"`
	NoDefaultRisk        bool    `json:"no_default_risk"`
	Error                string  `json:"error,omitempty"`
}
