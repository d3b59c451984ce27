package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	pkgch "CreditPulse/pkg/clickhouse"
)

// insertChunk bounds the rows per multi-row INSERT.
const insertChunk = 2000

// CHResultSink appends analysis results to ClickHouse. Bundles are buffered
// and written with multi-row INSERTs once BatchSize rows are pending or
// FlushInterval has passed since the last write; failures are written
// immediately.
type CHResultSink struct {
	db            *sql.DB
	tables        pkgch.Tables
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu        sync.Mutex
	pending   []*models.AnalysisBundle
	lastFlush time.Time
}

var _ domrepo.ResultSink = (*CHResultSink)(nil)

func NewCHResultSink(db *sql.DB, tables pkgch.Tables, batchSize int, flushInterval time.Duration) *CHResultSink {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &CHResultSink{
		db:            db,
		tables:        tables,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		now:           time.Now,
		lastFlush:     time.Now(),
	}
}

func (s *CHResultSink) Append(ctx context.Context, b *models.AnalysisBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, b)
	due := s.flushInterval > 0 && s.now().Sub(s.lastFlush) >= s.flushInterval
	if len(s.pending) < s.batchSize && !due {
		return nil
	}
	return s.flushLocked(ctx)
}

// Flush writes every pending bundle.
func (s *CHResultSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *CHResultSink) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	if err := s.writeBundles(ctx, batch); err != nil {
		return err
	}
	if err := s.writeMetrics(ctx, batch); err != nil {
		return err
	}
	if err := s.writeSignals(ctx, batch); err != nil {
		return err
	}
	s.pending = nil
	s.lastFlush = s.now()
	return nil
}

func (s *CHResultSink) writeBundles(ctx context.Context, batch []*models.AnalysisBundle) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, b := range batch {
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bundle %s: %w", b.Inputs.Key(), err)
		}
		rows = append(rows, []interface{}{b.Inputs.Ticker, b.Inputs.Date, boolU8(b.Solver.Converged), string(payload), b.ComputedAt})
	}
	return s.insert(ctx, s.tables.Bundles, []string{"ticker", "date", "converged", "payload", "computed_at"}, rows)
}

func (s *CHResultSink) writeMetrics(ctx context.Context, batch []*models.AnalysisBundle) error {
	var rows [][]interface{}
	for _, b := range batch {
		m := b.Metrics
		if m == nil {
			continue
		}
		warnings := m.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		var rwDD, rwPD interface{}
		if rw := m.RealWorld; rw != nil {
			rwDD, rwPD = rw.DistanceToDefault, rw.ProbabilityOfDefault
		}
		var calPD interface{}
		if m.CalibratedPD != nil {
			calPD = *m.CalibratedPD
		}
		rows = append(rows, []interface{}{
			m.Ticker, m.Date, m.DistanceToDefault, m.ProbabilityOfDefault, m.RatingBucket,
			boolU8(m.NoDefaultRisk), m.AssetValue, m.AssetVolatility, m.Leverage, m.EquityToAsset,
			warnings, rwDD, rwPD, calPD, b.ComputedAt,
		})
	}
	return s.insert(ctx, s.tables.Metrics, []string{
		"ticker", "date", "distance_to_default", "probability_of_default", "rating_bucket",
		"no_default_risk", "asset_value", "asset_volatility", "leverage", "equity_to_asset",
		"warnings", "real_world_dd", "real_world_pd", "calibrated_pd", "computed_at",
	}, rows)
}

func (s *CHResultSink) writeSignals(ctx context.Context, batch []*models.AnalysisBundle) error {
	var rows [][]interface{}
	for _, b := range batch {
		sig := b.Signal
		if sig == nil {
			continue
		}
		rows = append(rows, []interface{}{
			b.Inputs.Ticker, b.Inputs.Date, string(sig.Action), sig.DDChange, sig.SignalStrength,
			uint16(sig.LookbackDays), sig.CurrentDD, sig.HistoricalDD, string(sig.Reason), b.ComputedAt,
		})
	}
	return s.insert(ctx, s.tables.Signals, []string{
		"ticker", "date", "action", "dd_change", "signal_strength",
		"lookback_days", "current_dd", "historical_dd", "reason", "computed_at",
	}, rows)
}

func (s *CHResultSink) RecordFailure(ctx context.Context, f models.RowFailure) error {
	return s.insert(ctx, s.tables.Failures, []string{"ticker", "date", "kind", "message", "recorded"},
		[][]interface{}{{f.Ticker, f.Date, string(f.Kind), f.Message, f.Recorded}})
}

// Close flushes pending bundles. The connection pool is owned by the client.
func (s *CHResultSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

// insert writes rows with multi-row VALUES in chunks to reduce round-trips.
func (s *CHResultSink) insert(ctx context.Context, table string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	tuple := "(" + placeholders(len(cols)) + ")"
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for _, r := range rows[start:end] {
			values = append(values, tuple)
			args = append(args, r...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
