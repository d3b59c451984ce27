package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/service/cache"
	pkgch "CreditPulse/pkg/clickhouse"
	pkgkafka "CreditPulse/pkg/kafka"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var d0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// passthrough lets array arguments reach the mock unchanged.
type passthrough struct{}

func (passthrough) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

func TestInputsFiltersTickers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	from, to := d0, d0.AddDate(0, 0, 7)
	rows := sqlmock.NewRows([]string{"ticker", "date", "equity_value", "equity_volatility", "debt_face_value", "risk_free_rate", "horizon_years"}).
		AddRow("AAPL", d0, 500.0, 0.3, 800.0, 0.03, 1.0).
		AddRow("MSFT", d0, 900.0, 0.25, 100.0, 0.03, 1.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM market_inputs FINAL") + ".*" + regexp.QuoteMeta("ticker IN (?, ?) ORDER BY ticker, date")).
		WithArgs(from, to, "AAPL", "MSFT").
		WillReturnRows(rows)

	s := NewCHInputStore(db, "market_inputs", "daily_prices")
	got, err := s.Inputs(context.Background(), []string{"AAPL", "MSFT"}, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.Equal(t, 800.0, got[0].DebtFaceValue)
	assert.Equal(t, 0.25, got[1].EquityVolatility)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInputsWithoutTickerFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE date >= \? AND date <= \? ORDER BY ticker, date`).
		WithArgs(d0, d0).
		WillReturnError(errors.New("table missing"))

	_, err = NewCHInputStore(db, "market_inputs", "daily_prices").Inputs(context.Background(), nil, d0, d0)
	assert.ErrorContains(t, err, "query inputs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnsOrdersOldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// newest first, as the query returns them
	rows := sqlmock.NewRows([]string{"date", "close"}).
		AddRow(d0.AddDate(0, 0, 2), 121.0).
		AddRow(d0.AddDate(0, 0, 1), 110.0).
		AddRow(d0, 100.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_prices FINAL")).
		WithArgs("ACME", d0.AddDate(0, 0, 2), 3).
		WillReturnRows(rows)

	got, err := NewCHInputStore(db, "market_inputs", "daily_prices").Returns(context.Background(), "ACME", d0.AddDate(0, 0, 2), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, math.Log(1.1), got[0], 1e-12)
	assert.InDelta(t, math.Log(1.1), got[1], 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryOldestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"ticker", "date", "distance_to_default", "probability_of_default", "rating_bucket",
		"no_default_risk", "asset_value", "asset_volatility", "leverage", "equity_to_asset"}
	rows := sqlmock.NewRows(cols).
		AddRow("ACME", d0.AddDate(0, 0, -1), 2.5, 0.006, "BB", int64(0), 1200.0, 0.12, 0.6, 0.4).
		AddRow("ACME", d0.AddDate(0, 0, -2), models.NoDefaultRiskDD, 0.0, "AAA", int64(1), 500.0, 0.3, 0.0, 1.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM credit_metrics FINAL")).
		WithArgs("ACME", d0, 21).
		WillReturnRows(rows)

	got, err := NewCHHistoryStore(db, "credit_metrics").History(context.Background(), "ACME", d0, 21)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].NoDefaultRisk)
	assert.True(t, got[0].Date.Before(got[1].Date))
	assert.Equal(t, 2.5, got[1].DistanceToDefault)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func bundle(ticker string, day int, withSignal bool) *models.AnalysisBundle {
	date := d0.AddDate(0, 0, day)
	b := &models.AnalysisBundle{
		Inputs:     models.MarketInputs{Ticker: ticker, Date: date, EquityValue: 500, EquityVolatility: 0.3, DebtFaceValue: 800, HorizonYears: 1},
		Solver:     models.SolverResult{Ticker: ticker, Date: date, Converged: true, AssetValue: 1270, AssetVolatility: 0.12},
		Metrics:    &models.CreditMetrics{Ticker: ticker, Date: date, DistanceToDefault: 3.1, RatingBucket: "BB"},
		ComputedAt: d0,
	}
	if withSignal {
		b.Signal = &models.Signal{Ticker: ticker, Date: date, Action: models.ActionLongProtection, LookbackDays: 21}
	}
	return b
}

func TestSinkBuffersUntilBatchSize(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	s := NewCHResultSink(db, pkgch.DefaultTables(), 2, 0)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, bundle("ACME", 0, false)))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_bundles (ticker, date, converged, payload, computed_at) VALUES (?, ?, ?, ?, ?),(?, ?, ?, ?, ?)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_metrics (ticker, date, distance_to_default")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_signals (")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Append(ctx, bundle("ACME", 1, true)))
	assert.NoError(t, mock.ExpectationsWereMet())

	// nothing pending: close is a no-op
	require.NoError(t, s.Close())
}

func TestSinkWritesOptionalMetricColumns(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	b := bundle("ACME", 0, false)
	b.Metrics.RealWorld = &models.RealWorldMetrics{DistanceToDefault: 3.4, ProbabilityOfDefault: 0.0003}
	anyArg := sqlmock.AnyArg()

	mock.ExpectExec("INSERT INTO analysis_bundles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("warnings, real_world_dd, real_world_pd, calibrated_pd, computed_at)")).
		WithArgs("ACME", d0, 3.1, anyArg, "BB", anyArg, anyArg, anyArg, anyArg, anyArg, anyArg, 3.4, 0.0003, nil, d0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, NewCHResultSink(db, pkgch.DefaultTables(), 1, 0).Append(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkKeepsPendingOnError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	s := NewCHResultSink(db, pkgch.DefaultTables(), 1, 0)
	b := bundle("ACME", 0, false)
	b.Metrics = nil

	mock.ExpectExec("INSERT INTO analysis_bundles").WillReturnError(errors.New("too many parts"))
	require.Error(t, s.Append(context.Background(), b))

	mock.ExpectExec("INSERT INTO analysis_bundles").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkFlushesOnInterval(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	s := NewCHResultSink(db, pkgch.DefaultTables(), 100, time.Second)
	now := d0
	s.now = func() time.Time { return now }
	s.lastFlush = d0

	b := bundle("ACME", 0, false)
	b.Metrics = nil
	require.NoError(t, s.Append(context.Background(), b))

	now = now.Add(2 * time.Second)
	mock.ExpectExec("INSERT INTO analysis_bundles").WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, s.Append(context.Background(), b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkRecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := models.RowFailure{Ticker: "ACME", Date: d0, Kind: models.FailureTimeout, Message: "slow", Recorded: d0}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO row_failures (ticker, date, kind, message, recorded) VALUES (?, ?, ?, ?, ?)")).
		WithArgs("ACME", d0, "timeout", "slow", d0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewCHResultSink(db, pkgch.DefaultTables(), 10, 0).RecordFailure(context.Background(), f))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakePublisher struct {
	sent   map[string][]pkgkafka.Message
	err    error
	closed bool
}

func (p *fakePublisher) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if p.err != nil {
		return p.err
	}
	if p.sent == nil {
		p.sent = make(map[string][]pkgkafka.Message)
	}
	p.sent[topic] = append(p.sent[topic], msgs...)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func TestKafkaPublisherRoutesByTopic(t *testing.T) {
	fp := &fakePublisher{}
	p := &KafkaPublisher{producer: fp, topics: KafkaTopics{Results: "results", Signals: "signals", Failures: "failures"}}
	ctx := context.Background()

	require.NoError(t, p.Append(ctx, bundle("ACME", 0, true)))
	quiet := bundle("BETA", 0, true)
	quiet.Signal.Action = models.ActionNone
	require.NoError(t, p.Append(ctx, quiet))
	require.NoError(t, p.RecordFailure(ctx, models.RowFailure{Ticker: "GAMMA", Kind: models.FailureInvalidInput}))

	assert.Len(t, fp.sent["results"], 2)
	require.Len(t, fp.sent["signals"], 1)
	assert.Equal(t, []byte("ACME"), fp.sent["signals"][0].Key)
	assert.Equal(t, "LONG_PROTECTION", fp.sent["signals"][0].Headers["action"])
	assert.Equal(t, "2024-03-04", fp.sent["results"][0].Headers["date"])
	require.Len(t, fp.sent["failures"], 1)

	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}

type failingSink struct{ err error }

func (s failingSink) Append(context.Context, *models.AnalysisBundle) error { return s.err }

func (s failingSink) RecordFailure(context.Context, models.RowFailure) error { return s.err }

func (s failingSink) Close() error { return s.err }

func TestMultiSinkAttemptsEverySink(t *testing.T) {
	fp := &fakePublisher{}
	boom := errors.New("boom")
	m := NewMultiSink(failingSink{err: boom}, nil, &KafkaPublisher{producer: fp, topics: KafkaTopics{Results: "results"}})

	err := m.Append(context.Background(), bundle("ACME", 0, false))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, fp.sent["results"], 1)

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, fp.closed)
}

type countingHistory struct {
	calls int
	out   []models.CreditMetrics
}

func (h *countingHistory) History(context.Context, string, time.Time, int) ([]models.CreditMetrics, error) {
	h.calls++
	return h.out, nil
}

func TestCachedHistoryUsesCache(t *testing.T) {
	store := &countingHistory{out: []models.CreditMetrics{{Ticker: "ACME", Date: d0.AddDate(0, 0, -1), DistanceToDefault: 2}}}
	h := NewCachedHistory(store, cache.NewTTLCache(10), time.Minute)
	ctx := context.Background()

	first, err := h.History(ctx, "ACME", d0, 21)
	require.NoError(t, err)
	second, err := h.History(ctx, "ACME", d0, 21)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.calls)

	_, err = h.History(ctx, "ACME", d0.AddDate(0, 0, 1), 21)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestCachedHistoryFallsThroughOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &countingHistory{out: []models.CreditMetrics{{Ticker: "ACME", DistanceToDefault: 2}}}
	h := NewCachedHistory(store, cache.NewRedisCacheFromClient(db, "cp"), time.Minute)

	payload, err := json.Marshal(store.out)
	require.NoError(t, err)
	mock.ExpectGet("cp:history:ACME:2024-03-04:21").SetErr(errors.New("timeout"))
	mock.ExpectSet("cp:history:ACME:2024-03-04:21", payload, time.Minute).SetVal("OK")

	got, err := h.History(context.Background(), "ACME", d0, 21)
	require.NoError(t, err)
	assert.Equal(t, store.out, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
