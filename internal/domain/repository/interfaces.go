package repository

import (
	"context"
	"time"

	"CreditPulse/internal/domain/models"
)

// InputSource loads the market input rows of a batch.
type InputSource interface {
	Inputs(ctx context.Context, tickers []string, from, to time.Time) ([]models.MarketInputs, error)
}

// ReturnsSource provides up to lookback daily log returns ending on asOf.
type ReturnsSource interface {
	Returns(ctx context.Context, ticker string, asOf time.Time, lookback int) ([]float64, error)
}

// HistoryStore returns up to limit metrics dated strictly before the given
// date, oldest first.
type HistoryStore interface {
	History(ctx context.Context, ticker string, before time.Time, limit int) ([]models.CreditMetrics, error)
}

// ResultSink receives append-only analysis facts.
type ResultSink interface {
	Append(ctx context.Context, b *models.AnalysisBundle) error
	RecordFailure(ctx context.Context, f models.RowFailure) error
	Close() error
}

type Metrics interface {
	RecordSolve(converged bool, iterations int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordBootstrap(successRate float64, lowConfidence bool)
	RecordSignal(action string)
}
