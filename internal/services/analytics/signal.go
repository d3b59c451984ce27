package analytics

import (
	"math"

	"CreditPulse/internal/domain/models"
	"CreditPulse/pkg/util"
)

// Detect emits a signal for the most recent entry of a single ticker's
// date-ordered metric history. The move is measured against the entry
// LookbackDays observations earlier; the window between them must have no
// gap wider than MaxGapDays calendar days. Histories that cannot support a
// measurement yield NONE with a reason.
func Detect(history []models.CreditMetrics, cfg models.SignalConfig) models.Signal {
	sig := models.Signal{Action: models.ActionNone, LookbackDays: cfg.LookbackDays}
	if len(history) == 0 {
		sig.Reason = models.ReasonInsufficientHistory
		return sig
	}

	latest := history[len(history)-1]
	sig.Ticker = latest.Ticker
	sig.Date = latest.Date
	sig.CurrentDD = latest.DistanceToDefault

	for _, m := range history {
		if m.Ticker != latest.Ticker {
			sig.Reason = models.ReasonMixedTickers
			return sig
		}
	}
	for i := 1; i < len(history); i++ {
		if !history[i].Date.After(history[i-1].Date) {
			sig.Reason = models.ReasonUnorderedHistory
			return sig
		}
	}
	if len(history) < cfg.LookbackDays+1 {
		sig.Reason = models.ReasonInsufficientHistory
		return sig
	}

	window := history[len(history)-1-cfg.LookbackDays:]
	for i := 1; i < len(window); i++ {
		if util.CalendarDaysBetween(window[i-1].Date, window[i].Date) > cfg.MaxGapDays {
			sig.Reason = models.ReasonGapInHistory
			return sig
		}
	}

	base := window[0]
	sig.HistoricalDD = base.DistanceToDefault
	sig.HistoricalDate = base.Date
	if latest.NoDefaultRisk || base.NoDefaultRisk {
		sig.Reason = models.ReasonUndefinedDD
		return sig
	}

	change := latest.DistanceToDefault - base.DistanceToDefault
	sig.DDChange = change
	sig.SignalStrength = math.Min(math.Max(math.Abs(change)/(2*cfg.DDThreshold), 0), 1)

	switch {
	case change <= -cfg.DDThreshold:
		sig.Action = models.ActionLongProtection
	case change >= cfg.DDThreshold:
		sig.Action = models.ActionShortProtection
	}
	if sig.Action != models.ActionNone && sig.SignalStrength < cfg.MinStrength {
		sig.Action = models.ActionNone
		sig.Reason = models.ReasonBelowMinStrength
	}
	return sig
}
