package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	solvesTotal     *prometheus.CounterVec
	solveIterations prometheus.Histogram
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	bootstrapRate   prometheus.Histogram
	lowConfidence   prometheus.Counter
	signalsTotal    *prometheus.CounterVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		solvesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditpulse_solves_total",
				Help: "Total number of asset value solves",
			},
			[]string{"converged"},
		),
		solveIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "creditpulse_solve_iterations",
				Help:    "Newton iterations per solve",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100},
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		bootstrapRate: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "creditpulse_bootstrap_success_rate",
				Help:    "Share of bootstrap iterations that converged",
				Buckets: []float64{0.5, 0.8, 0.9, 0.95, 0.99, 1},
			},
		),
		lowConfidence: f.NewCounter(
			prometheus.CounterOpts{
				Name: "creditpulse_bootstrap_low_confidence_total",
				Help: "Bootstrap results flagged low confidence",
			},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditpulse_signals_total",
				Help: "Signals emitted by action",
			},
			[]string{"action"},
		),
	}
}

// RecordSolve records one solver run.
func (r *Recorder) RecordSolve(converged bool, iterations int) {
	r.solvesTotal.WithLabelValues(strconv.FormatBool(converged)).Inc()
	r.solveIterations.Observe(float64(iterations))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBootstrap(successRate float64, lowConfidence bool) {
	r.bootstrapRate.Observe(successRate)
	if lowConfidence {
		r.lowConfidence.Inc()
	}
}

func (r *Recorder) RecordSignal(action string) {
	r.signalsTotal.WithLabelValues(action).Inc()
}
