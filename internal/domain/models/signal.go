package models

import "time"

// SignalAction is the trading direction suggested by a move in DD.
type SignalAction string

const (
	ActionLongProtection  SignalAction = "LONG_PROTECTION"
	ActionShortProtection SignalAction = "SHORT_PROTECTION"
	ActionNone            SignalAction = "NONE"
)

// Reasons attached to a NONE signal that was not produced by a quiet market.
const (
	ReasonInsufficientHistory = "insufficient_history"
	ReasonUnorderedHistory    = "unordered_history"
	ReasonGapInHistory        = "gap_in_history"
	ReasonMixedTickers        = "mixed_tickers"
	ReasonUndefinedDD         = "undefined_dd"
	ReasonBelowMinStrength    = "below_min_strength"
)

// Signal is the detector output for the most recent date of a history.
type Signal struct {
	Ticker         string       `json:"ticker"`
	Date           time.Time    `json:"date"`
	Action         SignalAction `json:"action"`
	DDChange       float64      `json:"dd_change"`
	SignalStrength float64      `json:"signal_strength"`
	LookbackDays   int          `json:"lookback_days"`
	CurrentDD      float64      `json:"current_dd"`
	HistoricalDD   float64      `json:"historical_dd"`
	HistoricalDate time.Time    `json:"historical_date"`
	Reason         string       `json:"reason,omitempty"`
}
