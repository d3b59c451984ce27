package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CreditPulse/internal/domain/models"
	domrepo "CreditPulse/internal/domain/repository"
)

// CHHistoryStore reads earlier credit metrics for the signal detector.
type CHHistoryStore struct {
	db    *sql.DB
	table string
}

var _ domrepo.HistoryStore = (*CHHistoryStore)(nil)

func NewCHHistoryStore(db *sql.DB, metricsTable string) *CHHistoryStore {
	return &CHHistoryStore{db: db, table: metricsTable}
}

func (s *CHHistoryStore) History(ctx context.Context, ticker string, before time.Time, limit int) ([]models.CreditMetrics, error) {
	const qtpl = `
        SELECT ticker, date, distance_to_default, probability_of_default, rating_bucket,
               no_default_risk, asset_value, asset_volatility, leverage, equity_to_asset
        FROM %s FINAL
        WHERE ticker = ? AND date < ?
        ORDER BY date DESC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), ticker, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]models.CreditMetrics, 0, limit)
	for rows.Next() {
		var m models.CreditMetrics
		var noRisk uint8
		if err := rows.Scan(&m.Ticker, &m.Date, &m.DistanceToDefault, &m.ProbabilityOfDefault, &m.RatingBucket,
			&noRisk, &m.AssetValue, &m.AssetVolatility, &m.Leverage, &m.EquityToAsset); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		m.Date = m.Date.UTC()
		m.NoDefaultRisk = noRisk == 1
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)
	return out, nil
}
