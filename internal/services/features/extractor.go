package features

import (
	"math"

	"CreditPulse/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252.0

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(points)-1, or nil if insufficient data.
// Pairs with a non-positive close are skipped.
func ComputeLogReturns(points []models.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Close
		cur := points[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using the provided number of periods per year.
func RealizedVolatility(logReturns []float64, window int, periodsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	return SampleVolatility(logReturns[len(logReturns)-window:], periodsPerYear)
}

// SampleVolatility is the annualized sample standard deviation of the whole
// series. It returns 0 for fewer than two observations.
func SampleVolatility(logReturns []float64, periodsPerYear float64) float64 {
	if len(logReturns) < 2 {
		return 0
	}
	return math.Sqrt(stat.Variance(logReturns, nil) * periodsPerYear)
}

// EstimateDrift annualizes the mean log return of a level series, typically
// the implied asset values. It returns NaN and 0 when there is not enough data.
func EstimateDrift(levels []float64, periodsPerYear float64) (mu float64, n int) {
	returns := make([]float64, 0, len(levels))
	for i := 1; i < len(levels); i++ {
		if levels[i-1] <= 0 || levels[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(levels[i]/levels[i-1]))
	}
	if len(returns) == 0 {
		return math.NaN(), 0
	}
	return stat.Mean(returns, nil) * periodsPerYear, len(returns)
}
