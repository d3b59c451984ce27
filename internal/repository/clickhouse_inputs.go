package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
	"CreditPulse/internal/services/features"
	applogger "CreditPulse/pkg/logger"
)

// CHInputStore reads market input rows and daily closes from ClickHouse.
type CHInputStore struct {
	db     *sql.DB
	inputs string
	prices string
	l      *applogger.Logger
}

var (
	_ domrepo.InputSource   = (*CHInputStore)(nil)
	_ domrepo.ReturnsSource = (*CHInputStore)(nil)
)

func NewCHInputStore(db *sql.DB, inputsTable, pricesTable string) *CHInputStore {
	return &CHInputStore{db: db, inputs: inputsTable, prices: pricesTable, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHInputStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Inputs loads rows dated within [from, to], ordered by ticker then date.
// An empty ticker list selects every ticker.
func (s *CHInputStore) Inputs(ctx context.Context, tickers []string, from, to time.Time) ([]models.MarketInputs, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ticker, date, equity_value, equity_volatility, debt_face_value, risk_free_rate, horizon_years
        FROM %s FINAL
        WHERE date >= ? AND date <= ?`, s.inputs)
	args := []interface{}{from, to}
	if len(tickers) > 0 {
		q += " AND ticker IN (" + placeholders(len(tickers)) + ")"
		for _, t := range tickers {
			args = append(args, t)
		}
	}
	q += " ORDER BY ticker, date"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse inputs query error", applogger.String("table", s.inputs), applogger.Error(err))
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	out := make([]models.MarketInputs, 0, 256)
	for rows.Next() {
		var in models.MarketInputs
		if err := rows.Scan(&in.Ticker, &in.Date, &in.EquityValue, &in.EquityVolatility,
			&in.DebtFaceValue, &in.RiskFreeRate, &in.HorizonYears); err != nil {
			return nil, fmt.Errorf("scan inputs: %w", err)
		}
		in.Date = in.Date.UTC()
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Info("clickhouse inputs ok",
		applogger.Date("from", from),
		applogger.Date("to", to),
		applogger.Int("tickers", len(tickers)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Returns loads the last lookback+1 closes up to asOf and converts them to
// up to lookback daily log returns.
func (s *CHInputStore) Returns(ctx context.Context, ticker string, asOf time.Time, lookback int) ([]float64, error) {
	q := fmt.Sprintf(`
        SELECT date, close
        FROM %s FINAL
        WHERE ticker = ? AND date <= ?
        ORDER BY date DESC
        LIMIT ?`, s.prices)
	rows, err := s.db.QueryContext(ctx, q, ticker, asOf, lookback+1)
	if err != nil {
		s.l.Error("clickhouse prices query error",
			applogger.String("table", s.prices),
			applogger.String("ticker", ticker),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	points := make([]models.PricePoint, 0, lookback+1)
	for rows.Next() {
		p := models.PricePoint{Ticker: ticker}
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(points)
	return features.ComputeLogReturns(points), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
