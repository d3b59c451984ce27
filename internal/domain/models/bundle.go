package models

import "time"

// AnalysisBundle collects every fact produced for one ticker-day. Optional
// analyses are nil when disabled or not applicable.
type AnalysisBundle struct {
	Inputs      MarketInputs       `json:"inputs"`
	Solver      SolverResult       `json:"solver"`
	Metrics     *CreditMetrics     `json:"metrics,omitempty"`
	Sensitivity *SensitivityResult `json:"sensitivity,omitempty"`
	Bootstrap   *BootstrapResult   `json:"bootstrap,omitempty"`
	Stress      []StressResult     `json:"stress,omitempty"`
	Signal      *Signal            `json:"signal,omitempty"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// RowFailure records why a ticker-day produced no (or partial) results.
type RowFailure struct {
	Ticker   string      `json:"ticker"`
	Date     time.Time   `json:"date"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
	Recorded time.Time   `json:"recorded"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Rows       int          `json:"rows"`
	Converged  int          `json:"converged"`
	Signals    int          `json:"signals"`
	Degraded   int          `json:"degraded"`
	Failures   []RowFailure `json:"failures"`
}

// FailureCounts groups failures by kind.
func (r *BatchReport) FailureCounts() map[FailureKind]int {
	out := make(map[FailureKind]int)
	for _, f := range r.Failures {
		out[f.Kind]++
	}
	return out
}
