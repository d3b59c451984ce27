package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"CreditPulse/internal/domain/models"
	drepo "CreditPulse/internal/domain/repository"
	domsvc "CreditPulse/internal/domain/service"
	applogger "CreditPulse/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// AnalysisOptions selects the optional analyses and the run limits.
type AnalysisOptions struct {
	Workers       int
	BundleTimeout time.Duration
	ReturnsWindow int
	Sensitivity   bool
	Bootstrap     bool
	Stress        bool
	Signal        bool
	// RealWorld adds DD/PD under an estimated asset drift.
	RealWorld bool
	Scenarios []models.Scenario
}

// AnalysisRunner sequences Solver → MetricsDeriver → {Sensitivity, Bootstrap,
// Stress, Signal} per ticker-day and hands each bundle to the sink. Failures
// are scoped to the row that produced them.
type AnalysisRunner struct {
	engine  domsvc.CreditEngine
	returns drepo.ReturnsSource
	history drepo.HistoryStore
	sink    drepo.ResultSink
	metrics drepo.Metrics
	cfg     models.AnalyticsConfig
	opts    AnalysisOptions
	log     *applogger.Logger
	keep    int // metric history entries kept per ticker

	mu    sync.Mutex
	tails map[string][]models.CreditMetrics
	last  *models.BatchReport
}

// NewAnalysisRunner creates a new AnalysisRunner instance.
func NewAnalysisRunner(
	engine domsvc.CreditEngine,
	returns drepo.ReturnsSource,
	history drepo.HistoryStore,
	sink drepo.ResultSink,
	metrics drepo.Metrics,
	cfg models.AnalyticsConfig,
	opts AnalysisOptions,
) *AnalysisRunner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BundleTimeout <= 0 {
		opts.BundleTimeout = 30 * time.Second
	}
	if opts.ReturnsWindow <= 0 {
		opts.ReturnsWindow = 252
	}
	keep := cfg.Signal.LookbackDays
	if opts.RealWorld && cfg.Drift.Window > keep {
		keep = cfg.Drift.Window
	}
	return &AnalysisRunner{
		keep:    keep,
		engine:  engine,
		returns: returns,
		history: history,
		sink:    sink,
		metrics: metrics,
		cfg:     cfg,
		opts:    opts,
		log:     applogger.Nop(),
		tails:   make(map[string][]models.CreditMetrics),
	}
}

// SetLogger sets an optional logger.
func (r *AnalysisRunner) SetLogger(l *applogger.Logger) {
	if l != nil {
		r.log = l
	}
}

// LastReport returns the report of the most recent batch, or nil.
func (r *AnalysisRunner) LastReport() *models.BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// RunBatch processes every row. Tickers run in parallel; rows of one ticker
// run in date order so the signal detector sees its own earlier output. Only
// invalid configuration aborts the batch.
func (r *AnalysisRunner) RunBatch(ctx context.Context, rows []models.MarketInputs) (*models.BatchReport, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	report := &models.BatchReport{StartedAt: time.Now().UTC(), Rows: len(rows)}
	byTicker := make(map[string][]models.MarketInputs)
	for _, row := range rows {
		byTicker[row.Ticker] = append(byTicker[row.Ticker], row)
	}
	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	for _, ticker := range tickers {
		series := byTicker[ticker]
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		g.Go(func() error {
			tr := r.runTicker(ctx, ticker, series)
			mu.Lock()
			report.Converged += tr.converged
			report.Signals += tr.signals
			report.Degraded += tr.degraded
			report.Failures = append(report.Failures, tr.failures...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(report.Failures, func(i, j int) bool {
		a, b := report.Failures[i], report.Failures[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		return a.Date.Before(b.Date)
	})
	report.FinishedAt = time.Now().UTC()

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	r.log.Info("batch finished",
		applogger.Int("rows", report.Rows),
		applogger.Int("converged", report.Converged),
		applogger.Int("failures", len(report.Failures)),
		applogger.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	r.metrics.RecordLatency("batch", report.FinishedAt.Sub(report.StartedAt).Seconds())
	return report, nil
}

type tickerRun struct {
	converged int
	signals   int
	degraded  int
	failures  []models.RowFailure
}

func (r *AnalysisRunner) runTicker(ctx context.Context, ticker string, rows []models.MarketInputs) tickerRun {
	var tr tickerRun
	tail := r.loadHistory(ctx, ticker, rows[0].Date)

	for i, row := range rows {
		if ctx.Err() != nil {
			tr.failures = append(tr.failures, r.fail(ctx, row, ctx.Err()))
			continue
		}
		if i > 0 && !row.Date.After(rows[i-1].Date) {
			tr.failures = append(tr.failures, r.fail(ctx, row,
				fmt.Errorf("%w: duplicate row for %s", models.ErrInvalidInput, row.Key())))
			continue
		}

		b, err := r.RunBundle(ctx, row, tail)
		if err != nil {
			tr.failures = append(tr.failures, r.fail(ctx, row, err))
			continue
		}
		if err := r.sink.Append(ctx, b); err != nil {
			tr.failures = append(tr.failures, r.fail(ctx, row, fmt.Errorf("append results: %w", err)))
			continue
		}

		if !b.Solver.Converged {
			tr.failures = append(tr.failures, r.failKind(ctx, row, models.FailureConvergence,
				fmt.Sprintf("no convergence after %d iterations, residual %g", b.Solver.Iterations, b.Solver.ResidualNorm)))
			continue
		}
		tr.converged++
		if b.Signal != nil && b.Signal.Action != models.ActionNone {
			tr.signals++
		}
		if isDegraded(b) {
			tr.degraded++
		}
		tail = insertTail(tail, *b.Metrics, r.keep)
	}
	return tr
}

// Process runs one streamed row. The per-ticker history tail is kept in
// memory between calls, in date order, and seeded from the history store on
// first use. A row that arrives after newer rows of its ticker (a retried
// row) sees only the history dated before it and is inserted in place.
func (r *AnalysisRunner) Process(ctx context.Context, in models.MarketInputs) error {
	r.mu.Lock()
	tail, ok := r.tails[in.Ticker]
	r.mu.Unlock()
	if !ok {
		tail = r.loadHistory(ctx, in.Ticker, in.Date)
	}

	b, err := r.RunBundle(ctx, in, before(tail, in.Date))
	if err != nil {
		r.fail(ctx, in, err)
		return nil
	}
	if err := r.sink.Append(ctx, b); err != nil {
		return fmt.Errorf("append results: %w", err)
	}
	if !b.Solver.Converged {
		r.failKind(ctx, in, models.FailureConvergence,
			fmt.Sprintf("no convergence after %d iterations", b.Solver.Iterations))
		return nil
	}

	r.mu.Lock()
	if cur, ok := r.tails[in.Ticker]; ok {
		// another row of the ticker may have finished meanwhile
		tail = cur
	}
	r.tails[in.Ticker] = insertTail(tail, *b.Metrics, r.keep)
	r.mu.Unlock()
	return nil
}

// RunBundle computes every enabled analysis for one row under the bundle
// time budget. history holds earlier metrics of the same ticker, oldest first.
func (r *AnalysisRunner) RunBundle(ctx context.Context, in models.MarketInputs, history []models.CreditMetrics) (*models.AnalysisBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.BundleTimeout)
	defer cancel()

	type result struct {
		b   *models.AnalysisBundle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := r.analyze(ctx, in, history)
		ch <- result{b, err}
	}()

	select {
	case res := <-ch:
		return res.b, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", in.Key(), r.opts.BundleTimeout, models.ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

func (r *AnalysisRunner) analyze(ctx context.Context, in models.MarketInputs, history []models.CreditMetrics) (*models.AnalysisBundle, error) {
	start := time.Now()
	res, err := r.engine.Solve(in, r.cfg.Solver)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordSolve(res.Converged, res.Iterations)
	r.metrics.RecordLatency("solve", time.Since(start).Seconds())

	b := &models.AnalysisBundle{Inputs: in, Solver: res, ComputedAt: time.Now().UTC()}
	if !res.Converged {
		return b, nil
	}

	m, err := r.engine.Derive(in, res, r.cfg.Rating, false)
	if err != nil {
		return nil, err
	}
	if r.opts.RealWorld {
		levels := make([]float64, 0, len(history)+1)
		for _, h := range history {
			levels = append(levels, h.AssetValue)
		}
		levels = append(levels, res.AssetValue)
		rw, err := r.engine.RealWorld(in, res, levels, r.cfg)
		if err != nil {
			return nil, fmt.Errorf("real-world dd: %w", err)
		}
		m.RealWorld = &rw
	}
	if r.cfg.Calibration.Enabled && !m.NoDefaultRisk {
		pd := r.engine.CalibratedPD(m.DistanceToDefault, r.cfg.Calibration)
		m.CalibratedPD = &pd
	}
	b.Metrics = &m

	if r.opts.Sensitivity {
		s, err := r.engine.Sensitivity(in, r.cfg)
		if err != nil {
			return nil, fmt.Errorf("sensitivity: %w", err)
		}
		b.Sensitivity = &s
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.opts.Bootstrap {
		t0 := time.Now()
		returns, err := r.returns.Returns(ctx, in.Ticker, in.Date, r.opts.ReturnsWindow)
		if err != nil {
			return nil, fmt.Errorf("load returns: %w", err)
		}
		bs, err := r.engine.Bootstrap(ctx, in.Ticker, returns, in, r.cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		b.Bootstrap = &bs
		r.metrics.RecordBootstrap(bs.SuccessRate, bs.LowConfidence)
		r.metrics.RecordLatency("bootstrap", time.Since(t0).Seconds())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.opts.Stress {
		for _, sc := range r.opts.Scenarios {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			st, err := r.engine.Stress(in, sc, r.cfg)
			if errors.Is(err, models.ErrInvalidInput) {
				r.log.Warn("stress scenario skipped",
					applogger.String("ticker", in.Ticker),
					applogger.String("scenario", sc.Name),
					applogger.Error(err),
				)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stress %s: %w", sc.Name, err)
			}
			b.Stress = append(b.Stress, st)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.opts.Signal {
		series := make([]models.CreditMetrics, 0, len(history)+1)
		series = append(series, history...)
		series = append(series, m)
		sig := r.engine.Detect(series, r.cfg.Signal)
		b.Signal = &sig
		r.metrics.RecordSignal(string(sig.Action))
	}

	r.metrics.RecordLatency("bundle", time.Since(start).Seconds())
	return b, nil
}

func (r *AnalysisRunner) loadHistory(ctx context.Context, ticker string, before time.Time) []models.CreditMetrics {
	if (!r.opts.Signal && !r.opts.RealWorld) || r.history == nil {
		return nil
	}
	h, err := r.history.History(ctx, ticker, before, r.keep)
	if err != nil {
		r.metrics.RecordError("history")
		r.log.Warn("load metric history",
			applogger.String("ticker", ticker),
			applogger.Date("before", before),
			applogger.Error(err),
		)
		return nil
	}
	return h
}

func (r *AnalysisRunner) fail(ctx context.Context, in models.MarketInputs, err error) models.RowFailure {
	return r.failKind(ctx, in, models.ClassifyError(err), err.Error())
}

func (r *AnalysisRunner) failKind(ctx context.Context, in models.MarketInputs, kind models.FailureKind, msg string) models.RowFailure {
	f := models.RowFailure{
		Ticker:   in.Ticker,
		Date:     in.Date,
		Kind:     kind,
		Message:  msg,
		Recorded: time.Now().UTC(),
	}
	r.metrics.RecordError(string(kind))
	r.log.Warn("row failed",
		applogger.String("ticker", in.Ticker),
		applogger.Date("date", in.Date),
		applogger.String("kind", string(kind)),
		applogger.String("reason", msg),
	)
	// the batch context may already be cancelled; failures are still recorded
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.sink.RecordFailure(sctx, f); err != nil {
		r.log.Error("record failure", applogger.String("ticker", in.Ticker), applogger.Error(err))
	}
	return f
}

func isDegraded(b *models.AnalysisBundle) bool {
	return (b.Sensitivity != nil && b.Sensitivity.Degraded) ||
		(b.Bootstrap != nil && b.Bootstrap.LowConfidence)
}

// insertTail places m in date order, replacing an entry of the same date,
// and keeps only the newest keep entries.
func insertTail(tail []models.CreditMetrics, m models.CreditMetrics, keep int) []models.CreditMetrics {
	i := sort.Search(len(tail), func(i int) bool { return !tail[i].Date.Before(m.Date) })
	j := i
	if j < len(tail) && tail[j].Date.Equal(m.Date) {
		j++
	}
	out := make([]models.CreditMetrics, 0, len(tail)+1)
	out = append(out, tail[:i]...)
	out = append(out, m)
	out = append(out, tail[j:]...)
	if len(out) > keep {
		out = out[len(out)-keep:]
	}
	return out
}

// before returns the prefix of a date-ordered tail dated strictly before day.
func before(tail []models.CreditMetrics, day time.Time) []models.CreditMetrics {
	return tail[:sort.Search(len(tail), func(i int) bool { return !tail[i].Date.Before(day) })]
}
