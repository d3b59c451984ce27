package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	"CreditPulse/internal/service/ratelimit"
	"CreditPulse/pkg/validate"
)

// ErrRateLimited is returned when a ticker exceeds its row rate. The row is
// not admitted and may be redelivered.
var ErrRateLimited = errors.New("input gate: rate limited")

// Proc is the minimal processor interface the gate needs.
type Proc interface {
	Process(ctx context.Context, in models.MarketInputs) error
}

// InputGate sits between the input stream and the analysis runner. It
// validates rows, keeps each ticker's dates strictly increasing, and buffers
// rows when the downstream processor fails.
type InputGate struct {
	proc     Proc
	metrics  domrepo.Metrics
	bufSize  int
	bufCh    chan models.MarketInputs
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-ticker last accepted date
	limiter  *ratelimit.Limiter
	// optional normalization hook
	transform func(models.MarketInputs) models.MarketInputs
}

type GateOption func(*InputGate)

// WithBufferSize sets the retry buffer size used when downstream fails.
func WithBufferSize(n int) GateOption {
	return func(g *InputGate) {
		if n > 0 {
			g.bufSize = n
		}
	}
}

// WithTransform sets a normalization hook applied before validation.
func WithTransform(fn func(models.MarketInputs) models.MarketInputs) GateOption {
	return func(g *InputGate) { g.transform = fn }
}

// WithRateLimit caps the rows admitted per ticker.
func WithRateLimit(l *ratelimit.Limiter) GateOption {
	return func(g *InputGate) { g.limiter = l }
}

// UpperTicker normalizes tickers to upper case without surrounding spaces.
func UpperTicker(in models.MarketInputs) models.MarketInputs {
	in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	return in
}

// NewInputGate creates a new gate.
func NewInputGate(proc Proc, metrics domrepo.Metrics, opts ...GateOption) *InputGate {
	g := &InputGate{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.bufCh = make(chan models.MarketInputs, g.bufSize)
	return g
}

// Start launches the background retry of buffered rows.
func (g *InputGate) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return
	}
	g.started = true
	g.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-g.stopCh:
				return
			case <-ctx.Done():
				return
			case in := <-g.bufCh:
				if err := g.proc.Process(ctx, in); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					g.metrics.RecordError("gate_retry")
					time.Sleep(backoff)
					select {
					case g.bufCh <- in:
					default:
						g.metrics.RecordError("gate_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background retry.
func (g *InputGate) Stop() {
	g.mu.Lock()
	if !g.started {
		g.mu.Unlock()
		return
	}
	g.started = false
	g.mu.Unlock()
	close(g.stopCh)
}

// Buffered reports how many rows wait for a retry.
func (g *InputGate) Buffered() int { return len(g.bufCh) }

// Process validates and forwards a row. Rows that are invalid or not newer
// than the last accepted row of their ticker are rejected with
// models.ErrInvalidInput and never reach the processor. A row the processor
// fails on is buffered for background retry; only when the buffer is full is
// the error returned.
func (g *InputGate) Process(ctx context.Context, in models.MarketInputs) error {
	start := time.Now()
	if g.transform != nil {
		in = g.transform(in)
	}
	if err := validate.Struct(ctx, &in); err != nil {
		g.metrics.RecordError("gate_validate")
		return fmt.Errorf("%w: %s", models.ErrInvalidInput, validate.Describe(err))
	}
	if err := in.Validate(); err != nil {
		g.metrics.RecordError("gate_validate")
		return err
	}
	if g.limiter != nil && !g.limiter.Allow(in.Ticker) {
		g.metrics.RecordError("gate_rate_limited")
		return fmt.Errorf("%w: %s", ErrRateLimited, in.Ticker)
	}
	prev, ok := g.admit(in.Ticker, in.Date)
	if !ok {
		g.metrics.RecordError("gate_out_of_order")
		return fmt.Errorf("%w: %s is not after the last accepted date", models.ErrInvalidInput, in.Key())
	}

	if err := g.proc.Process(ctx, in); err != nil {
		g.metrics.RecordError("gate_process")
		select {
		case g.bufCh <- in:
			// retried in the background
			return nil
		default:
			g.metrics.RecordError("gate_buffer_full")
		}
		// let the caller redeliver the row
		g.release(in.Ticker, in.Date, prev)
		return fmt.Errorf("gate downstream: %w", err)
	}
	g.metrics.RecordLatency("gate_process", time.Since(start).Seconds())
	return nil
}

// admit records date as the ticker's latest accepted date and returns the
// previous one.
func (g *InputGate) admit(ticker string, date time.Time) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, seen := g.lastSeen[ticker]
	if seen && !date.After(last) {
		return last, false
	}
	g.lastSeen[ticker] = date
	return last, true
}

func (g *InputGate) release(ticker string, date, prev time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastSeen[ticker].Equal(date) {
		return
	}
	if prev.IsZero() {
		delete(g.lastSeen, ticker)
		return
	}
	g.lastSeen[ticker] = prev
}
