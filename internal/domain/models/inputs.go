package models

import (
	"fmt"
	"math"
	"time"
)

// MarketInputs is one ticker-day snapshot of the observable equity data the
// structural model is calibrated against.
type MarketInputs struct {
	Ticker           string    `json:"ticker" validate:"required"`
	Date             time.Time `json:"date" validate:"required"`
	EquityValue      float64   `json:"equity_value" validate:"gt=0"`
	EquityVolatility float64   `json:"equity_volatility" validate:"gt=0"`
	DebtFaceValue    float64   `json:"debt_face_value" validate:"gte=0"`
	RiskFreeRate     float64   `json:"risk_free_rate"`
	HorizonYears     float64   `json:"horizon_years" validate:"gt=0"`
}

// Input names accepted by sensitivity and stress shocks.
const (
	InputEquityValue      = "equity_value"
	InputEquityVolatility = "equity_volatility"
	InputDebtFaceValue    = "debt_face_value"
	InputRiskFreeRate     = "risk_free_rate"
	InputHorizonYears     = "horizon_years"
)

// PerturbableInputs lists every numeric input in a stable order.
var PerturbableInputs = []string{
	InputEquityValue,
	InputEquityVolatility,
	InputDebtFaceValue,
	InputRiskFreeRate,
	InputHorizonYears,
}

// Validate checks the domain constraints of the row. It is applied by the
// solver before any iteration and does not depend on struct tags.
func (in MarketInputs) Validate() error {
	for _, name := range PerturbableInputs {
		v, _ := in.Get(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
		}
	}
	switch {
	case in.EquityValue <= 0:
		return fmt.Errorf("%w: equity value must be positive, got %g", ErrInvalidInput, in.EquityValue)
	case in.EquityVolatility <= 0:
		return fmt.Errorf("%w: equity volatility must be positive, got %g", ErrInvalidInput, in.EquityVolatility)
	case in.DebtFaceValue < 0:
		return fmt.Errorf("%w: debt face value must be non-negative, got %g", ErrInvalidInput, in.DebtFaceValue)
	case in.HorizonYears <= 0:
		return fmt.Errorf("%w: horizon must be positive, got %g", ErrInvalidInput, in.HorizonYears)
	}
	return nil
}

// Get returns the named input value.
func (in MarketInputs) Get(name string) (float64, error) {
	switch name {
	case InputEquityValue:
		return in.EquityValue, nil
	case InputEquityVolatility:
		return in.EquityVolatility, nil
	case InputDebtFaceValue:
		return in.DebtFaceValue, nil
	case InputRiskFreeRate:
		return in.RiskFreeRate, nil
	case InputHorizonYears:
		return in.HorizonYears, nil
	}
	return 0, fmt.Errorf("%w: unknown input %q", ErrInvalidInput, name)
}

// With returns a copy of the inputs with the named field replaced.
func (in MarketInputs) With(name string, v float64) (MarketInputs, error) {
	out := in
	switch name {
	case InputEquityValue:
		out.EquityValue = v
	case InputEquityVolatility:
		out.EquityVolatility = v
	case InputDebtFaceValue:
		out.DebtFaceValue = v
	case InputRiskFreeRate:
		out.RiskFreeRate = v
	case InputHorizonYears:
		out.HorizonYears = v
	default:
		return in, fmt.Errorf("%w: unknown input %q", ErrInvalidInput, name)
	}
	return out, nil
}

// Key identifies the ticker-day the row belongs to.
func (in MarketInputs) Key() string {
	return in.Ticker + "@" + in.Date.Format("2006-01-02")
}

// PricePoint is one daily close used to build the equity return history.
type PricePoint struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
}
