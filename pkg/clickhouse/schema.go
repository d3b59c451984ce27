package clickhouse

import "fmt"

// Tables names the tables the service reads and writes.
type Tables struct {
	MarketInputs string `yaml:"market_inputs" default:"market_inputs"`
	DailyPrices  string `yaml:"daily_prices" default:"daily_prices"`
	Metrics      string `yaml:"credit_metrics" default:"credit_metrics"`
	Bundles      string `yaml:"analysis_bundles" default:"analysis_bundles"`
	Signals      string `yaml:"credit_signals" default:"credit_signals"`
	Failures     string `yaml:"row_failures" default:"row_failures"`
}

// DefaultTables returns the default table names.
func DefaultTables() Tables {
	return Tables{
		MarketInputs: "market_inputs",
		DailyPrices:  "daily_prices",
		Metrics:      "credit_metrics",
		Bundles:      "analysis_bundles",
		Signals:      "credit_signals",
		Failures:     "row_failures",
	}
}

// DDL returns idempotent CREATE statements. Result tables are append-only;
// the ReplacingMergeTree keeps the newest computation per ticker-day.
func (t Tables) DDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    equity_value Float64,
    equity_volatility Float64,
    debt_face_value Float64,
    risk_free_rate Float64,
    horizon_years Float64
) ENGINE = ReplacingMergeTree ORDER BY (ticker, date)`, t.MarketInputs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    close Float64
) ENGINE = ReplacingMergeTree ORDER BY (ticker, date)`, t.DailyPrices),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    distance_to_default Float64,
    probability_of_default Float64,
    rating_bucket LowCardinality(String),
    no_default_risk UInt8,
    asset_value Float64,
    asset_volatility Float64,
    leverage Float64,
    equity_to_asset Float64,
    warnings Array(String),
    real_world_dd Nullable(Float64),
    real_world_pd Nullable(Float64),
    calibrated_pd Nullable(Float64),
    computed_at DateTime64(3)
) ENGINE = ReplacingMergeTree(computed_at) ORDER BY (ticker, date)`, t.Metrics),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    converged UInt8,
    payload String,
    computed_at DateTime64(3)
) ENGINE = MergeTree ORDER BY (ticker, date, computed_at)`, t.Bundles),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    action LowCardinality(String),
    dd_change Float64,
    signal_strength Float64,
    lookback_days UInt16,
    current_dd Float64,
    historical_dd Float64,
    reason String,
    computed_at DateTime64(3)
) ENGINE = ReplacingMergeTree(computed_at) ORDER BY (ticker, date)`, t.Signals),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ticker String,
    date Date,
    kind LowCardinality(String),
    message String,
    recorded DateTime64(3)
) ENGINE = MergeTree ORDER BY (recorded, ticker)`, t.Failures),
	}
}
