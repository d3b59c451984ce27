package usecase

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/analytics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordSolve(bool, int)         {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
func (nopMetrics) RecordBootstrap(float64, bool) {}
func (nopMetrics) RecordSignal(string)           {}

type memSink struct {
	mu       sync.Mutex
	bundles  []*models.AnalysisBundle
	failures []models.RowFailure
	err      error
}

func (s *memSink) Append(_ context.Context, b *models.AnalysisBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bundles = append(s.bundles, b)
	return nil
}

func (s *memSink) RecordFailure(_ context.Context, f models.RowFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) byTicker(ticker string) []*models.AnalysisBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AnalysisBundle
	for _, b := range s.bundles {
		if b.Inputs.Ticker == ticker {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Inputs.Date.Before(out[j].Inputs.Date) })
	return out
}

type memHistory struct {
	rows map[string][]models.CreditMetrics
}

func (h *memHistory) History(_ context.Context, ticker string, before time.Time, limit int) ([]models.CreditMetrics, error) {
	var out []models.CreditMetrics
	for _, m := range h.rows[ticker] {
		if m.Date.Before(before) {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type synthReturns struct{}

func (synthReturns) Returns(_ context.Context, _ string, _ time.Time, lookback int) ([]float64, error) {
	rng := rand.New(rand.NewPCG(3, 5))
	out := make([]float64, lookback)
	for i := range out {
		out[i] = rng.NormFloat64() * 0.3 / math.Sqrt(252)
	}
	return out, nil
}

// slowEngine blocks every solve past the bundle budget.
type slowEngine struct {
	*analytics.Engine
	delay time.Duration
}

func (e slowEngine) Solve(in models.MarketInputs, cfg models.SolverConfig) (models.SolverResult, error) {
	time.Sleep(e.delay)
	return e.Engine.Solve(in, cfg)
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func inputRow(ticker string, day int, equityVol float64) models.MarketInputs {
	return models.MarketInputs{
		Ticker:           ticker,
		Date:             day0.AddDate(0, 0, day),
		EquityValue:      500,
		EquityVolatility: equityVol,
		DebtFaceValue:    500,
		RiskFreeRate:     0.03,
		HorizonYears:     1,
	}
}

// deteriorating returns n daily rows whose equity volatility climbs from 0.2
// to 0.5, driving DD down.
func deteriorating(ticker string, n int) []models.MarketInputs {
	rows := make([]models.MarketInputs, n)
	for i := range rows {
		rows[i] = inputRow(ticker, i, 0.2+0.3*float64(i)/float64(n-1))
	}
	return rows
}

func newRunner(sink *memSink, opts AnalysisOptions) *AnalysisRunner {
	return NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, sink, nopMetrics{}, models.DefaultAnalyticsConfig(), opts)
}

func TestRunBatchEmitsSignalsInDateOrder(t *testing.T) {
	sink := &memSink{}
	r := newRunner(sink, AnalysisOptions{Signal: true, Sensitivity: true, Workers: 2})

	rows := append(deteriorating("ACME", 22), deteriorating("BETA", 5)...)
	// shuffle the input; the runner must order by date per ticker
	rand.New(rand.NewPCG(1, 2)).Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	report, err := r.RunBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 27, report.Rows)
	assert.Equal(t, 27, report.Converged)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, report.Signals)
	assert.Same(t, report, r.LastReport())

	acme := sink.byTicker("ACME")
	require.Len(t, acme, 22)
	for _, b := range acme[:21] {
		require.NotNil(t, b.Signal)
		assert.Equal(t, models.ActionNone, b.Signal.Action)
		assert.Equal(t, models.ReasonInsufficientHistory, b.Signal.Reason)
	}
	last := acme[21]
	require.NotNil(t, last.Signal)
	assert.Equal(t, models.ActionLongProtection, last.Signal.Action)
	assert.Less(t, last.Signal.DDChange, -1.0)
	assert.True(t, last.Signal.HistoricalDate.Equal(acme[0].Inputs.Date))
	require.NotNil(t, last.Sensitivity)
	assert.Contains(t, last.Sensitivity.Partials, models.InputEquityVolatility)
	assert.Nil(t, last.Bootstrap)
}

func TestRunBatchSeedsSignalFromHistory(t *testing.T) {
	rows := deteriorating("ACME", 22)
	cfg := models.DefaultAnalyticsConfig()

	// compute the first 21 rows as stored history
	engine := analytics.NewEngine()
	hist := &memHistory{rows: map[string][]models.CreditMetrics{}}
	for _, in := range rows[:21] {
		res, err := engine.Solve(in, cfg.Solver)
		require.NoError(t, err)
		m, err := engine.Derive(in, res, cfg.Rating, false)
		require.NoError(t, err)
		hist.rows["ACME"] = append(hist.rows["ACME"], m)
	}

	sink := &memSink{}
	r := NewAnalysisRunner(engine, synthReturns{}, hist, sink, nopMetrics{}, cfg, AnalysisOptions{Signal: true})
	report, err := r.RunBatch(context.Background(), rows[21:])
	require.NoError(t, err)
	assert.Equal(t, 1, report.Signals)
	require.Len(t, sink.bundles, 1)
	assert.Equal(t, models.ActionLongProtection, sink.bundles[0].Signal.Action)
}

func TestRunBatchScopesFailuresToRows(t *testing.T) {
	sink := &memSink{}
	r := newRunner(sink, AnalysisOptions{})

	bad := inputRow("BAD", 0, 0.3)
	bad.EquityValue = -1
	dup := inputRow("ACME", 1, 0.3)
	rows := []models.MarketInputs{inputRow("ACME", 0, 0.3), inputRow("ACME", 1, 0.3), dup, bad}

	report, err := r.RunBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Converged)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "ACME", report.Failures[0].Ticker)
	assert.Equal(t, models.FailureInvalidInput, report.Failures[0].Kind)
	assert.Equal(t, "BAD", report.Failures[1].Ticker)
	assert.Equal(t, models.FailureInvalidInput, report.Failures[1].Kind)
	assert.Len(t, sink.failures, 2)
	assert.Equal(t, map[models.FailureKind]int{models.FailureInvalidInput: 2}, report.FailureCounts())
}

func TestRunBatchRecordsConvergenceFailure(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	cfg.Solver.MaxIterations = 1
	sink := &memSink{}
	r := NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, sink, nopMetrics{}, cfg, AnalysisOptions{Signal: true})

	in := models.MarketInputs{
		Ticker: "LEV", Date: day0, EquityValue: 10, EquityVolatility: 0.6,
		DebtFaceValue: 1000, RiskFreeRate: 0.02, HorizonYears: 1,
	}
	report, err := r.RunBatch(context.Background(), []models.MarketInputs{in})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.FailureConvergence, report.Failures[0].Kind)

	// the unconverged solve is still persisted, without derived metrics
	require.Len(t, sink.bundles, 1)
	assert.False(t, sink.bundles[0].Solver.Converged)
	assert.Nil(t, sink.bundles[0].Metrics)
	assert.Nil(t, sink.bundles[0].Signal)
}

func TestRunBatchBundleTimeout(t *testing.T) {
	sink := &memSink{}
	engine := slowEngine{Engine: analytics.NewEngine(), delay: 200 * time.Millisecond}
	r := NewAnalysisRunner(engine, synthReturns{}, nil, sink, nopMetrics{}, models.DefaultAnalyticsConfig(),
		AnalysisOptions{BundleTimeout: 10 * time.Millisecond})

	report, err := r.RunBatch(context.Background(), []models.MarketInputs{inputRow("ACME", 0, 0.3)})
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, models.FailureTimeout, report.Failures[0].Kind)
	assert.Empty(t, sink.bundles)
}

func TestRunBatchRejectsInvalidConfig(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	cfg.Solver.Tolerance = 0
	r := NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, &memSink{}, nopMetrics{}, cfg, AnalysisOptions{})

	_, err := r.RunBatch(context.Background(), []models.MarketInputs{inputRow("ACME", 0, 0.3)})
	require.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Nil(t, r.LastReport())
}

func TestRunBundleFullAnalysis(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	cfg.Bootstrap.Iterations = 100
	gfc, ok := analytics.NamedScenario("GFC_2008")
	require.True(t, ok)

	r := NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, &memSink{}, nopMetrics{}, cfg, AnalysisOptions{
		Sensitivity: true,
		Bootstrap:   true,
		Stress:      true,
		Signal:      true,
		Scenarios:   []models.Scenario{gfc},
	})

	b, err := r.RunBundle(context.Background(), inputRow("ACME", 0, 0.3), nil)
	require.NoError(t, err)
	require.NotNil(t, b.Metrics)
	require.NotNil(t, b.Sensitivity)
	require.NotNil(t, b.Bootstrap)
	assert.Equal(t, 100, b.Bootstrap.IterationsRequested)
	require.Len(t, b.Stress, 1)
	assert.Equal(t, "GFC_2008", b.Stress[0].ScenarioName)
	assert.Less(t, b.Stress[0].DeltaDD, 0.0)
	require.NotNil(t, b.Signal)
	assert.Equal(t, models.ReasonInsufficientHistory, b.Signal.Reason)
}

func TestProcessKeepsTailBetweenRows(t *testing.T) {
	sink := &memSink{}
	r := newRunner(sink, AnalysisOptions{Signal: true})
	ctx := context.Background()

	for _, in := range deteriorating("ACME", 22) {
		require.NoError(t, r.Process(ctx, in))
	}
	acme := sink.byTicker("ACME")
	require.Len(t, acme, 22)
	assert.Equal(t, models.ActionLongProtection, acme[21].Signal.Action)
}

func TestProcessReturnsSinkErrors(t *testing.T) {
	sink := &memSink{err: errors.New("clickhouse unavailable")}
	r := newRunner(sink, AnalysisOptions{})

	err := r.Process(context.Background(), inputRow("ACME", 0, 0.3))
	require.Error(t, err)

	// row-level problems are recorded, not returned
	bad := inputRow("ACME", 1, 0.3)
	bad.HorizonYears = 0
	require.NoError(t, r.Process(context.Background(), bad))
	require.Len(t, sink.failures, 1)
	assert.Equal(t, models.FailureInvalidInput, sink.failures[0].Kind)
}

func TestInsertTailOrdersByDate(t *testing.T) {
	metric := func(day int, dd float64) models.CreditMetrics {
		return models.CreditMetrics{Date: day0.AddDate(0, 0, day), DistanceToDefault: dd}
	}
	var tail []models.CreditMetrics
	for _, d := range []int{0, 1, 3, 4} {
		tail = insertTail(tail, metric(d, float64(d)), 3)
	}
	require.Len(t, tail, 3)
	assert.True(t, tail[0].Date.Equal(day0.AddDate(0, 0, 1)))

	// a late row lands in place, a repeated day replaces the entry
	tail = insertTail(tail, metric(2, 2), 4)
	tail = insertTail(tail, metric(3, 30), 4)
	require.Len(t, tail, 4)
	for i, want := range []float64{1, 2, 30, 4} {
		assert.Equal(t, want, tail[i].DistanceToDefault)
	}

	assert.Len(t, before(tail, day0.AddDate(0, 0, 3)), 2)
	assert.Empty(t, before(tail, day0))
}

// flakySink fails the first append of one date.
type flakySink struct {
	*memSink
	day    time.Time
	failed bool
}

func (s *flakySink) Append(ctx context.Context, b *models.AnalysisBundle) error {
	if !s.failed && b.Inputs.Date.Equal(s.day) {
		s.failed = true
		return errors.New("clickhouse unavailable")
	}
	return s.memSink.Append(ctx, b)
}

func TestProcessRetriedRowKeepsTailOrdered(t *testing.T) {
	rows := deteriorating("ACME", 30)
	sink := &flakySink{memSink: &memSink{}, day: rows[10].Date}
	r := NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, sink, nopMetrics{}, models.DefaultAnalyticsConfig(),
		AnalysisOptions{Signal: true})
	ctx := context.Background()

	var retry []models.MarketInputs
	for i, in := range rows[:25] {
		if err := r.Process(ctx, in); err != nil {
			require.Equal(t, 10, i)
			retry = append(retry, in)
		}
	}
	// the broker redelivers the failed row after newer ones
	require.Len(t, retry, 1)
	require.NoError(t, r.Process(ctx, retry[0]))
	for _, in := range rows[25:] {
		require.NoError(t, r.Process(ctx, in))
	}

	acme := sink.byTicker("ACME")
	require.Len(t, acme, 30)
	for _, b := range acme {
		require.NotNil(t, b.Signal)
		assert.NotEqual(t, models.ReasonUnorderedHistory, b.Signal.Reason, b.Inputs.Date)
	}
	// the retried row saw only earlier history
	assert.Equal(t, models.ReasonInsufficientHistory, acme[10].Signal.Reason)
	assert.Equal(t, models.ActionLongProtection, acme[29].Signal.Action)

	tail := r.tails["ACME"]
	require.Len(t, tail, models.DefaultAnalyticsConfig().Signal.LookbackDays)
	for i := 1; i < len(tail); i++ {
		assert.True(t, tail[i-1].Date.Before(tail[i].Date))
	}
}

func TestProcessRealWorldAndCalibration(t *testing.T) {
	cfg := models.DefaultAnalyticsConfig()
	cfg.Calibration = models.CalibrationConfig{Enabled: true, Intercept: -1, Slope: -1}
	sink := &memSink{}
	r := NewAnalysisRunner(analytics.NewEngine(), synthReturns{}, nil, sink, nopMetrics{}, cfg,
		AnalysisOptions{RealWorld: true})
	ctx := context.Background()

	rows := deteriorating("ACME", 30)
	for _, in := range rows {
		require.NoError(t, r.Process(ctx, in))
	}
	acme := sink.byTicker("ACME")
	require.Len(t, acme, 30)

	first := acme[0].Metrics
	require.NotNil(t, first.RealWorld)
	assert.Equal(t, 0, first.RealWorld.Observations)
	assert.Equal(t, rows[0].RiskFreeRate, first.RealWorld.Drift)

	last := acme[29].Metrics
	require.NotNil(t, last.RealWorld)
	assert.Equal(t, 29, last.RealWorld.Observations)
	assert.NotEqual(t, rows[29].RiskFreeRate, last.RealWorld.Drift)
	assert.Nil(t, acme[29].Signal)

	require.NotNil(t, last.CalibratedPD)
	assert.InDelta(t, 1/(1+math.Exp(1+last.DistanceToDefault)), *last.CalibratedPD, 1e-12)
	assert.Len(t, r.tails["ACME"], 30)
}

// countingStress slows every stress scenario and counts how many ran.
type countingStress struct {
	*analytics.Engine
	delay time.Duration
	calls *atomic.Int32
}

func (e countingStress) Stress(in models.MarketInputs, sc models.Scenario, cfg models.AnalyticsConfig) (models.StressResult, error) {
	e.calls.Add(1)
	time.Sleep(e.delay)
	return e.Engine.Stress(in, sc, cfg)
}

func TestRunBundleStopsStressAfterTimeout(t *testing.T) {
	gfc, ok := analytics.NamedScenario("GFC_2008")
	require.True(t, ok)
	scenarios := make([]models.Scenario, 10)
	for i := range scenarios {
		scenarios[i] = gfc
	}
	calls := &atomic.Int32{}
	engine := countingStress{Engine: analytics.NewEngine(), delay: 30 * time.Millisecond, calls: calls}
	r := NewAnalysisRunner(engine, synthReturns{}, nil, &memSink{}, nopMetrics{}, models.DefaultAnalyticsConfig(),
		AnalysisOptions{Stress: true, Scenarios: scenarios, BundleTimeout: 50 * time.Millisecond})

	_, err := r.RunBundle(context.Background(), inputRow("ACME", 0, 0.3), nil)
	require.ErrorIs(t, err, models.ErrTimeout)

	// give an unchecked loop time to run every scenario
	time.Sleep(500 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(3))
}
