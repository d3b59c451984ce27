package analytics

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"CreditPulse/internal/domain/models"
	"CreditPulse/internal/services/features"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// pcgStream is the fixed PCG stream selector; the per-iteration seed varies
// only the state.
const pcgStream = 0x9e3779b97f4a7c15

type draw struct {
	dd, pd float64
	ok     bool
	done   bool
}

// Bootstrap resamples the daily log-return history with replacement,
// re-estimates equity volatility from every resample and re-solves the model.
// Iteration i draws from its own generator seeded with Seed XOR i, so the
// result does not depend on how iterations are scheduled across workers.
//
// Cancelling ctx stops dispatching new iterations; completed ones are still
// aggregated and the result is marked Truncated.
func Bootstrap(ctx context.Context, ticker string, returns []float64, in models.MarketInputs, cfg models.AnalyticsConfig) (models.BootstrapResult, error) {
	if err := cfg.Validate(); err != nil {
		return models.BootstrapResult{}, err
	}
	if err := in.Validate(); err != nil {
		return models.BootstrapResult{}, err
	}
	bc := cfg.Bootstrap
	out := models.BootstrapResult{
		Ticker:              ticker,
		Date:                in.Date,
		ConfidenceLevel:     bc.ConfidenceLevel,
		IterationsRequested: bc.Iterations,
	}

	if len(returns) < bc.MinReturns {
		out.InsufficientHistory = true
		out.LowConfidence = true
		return out, nil
	}
	out.RealizedVolatility = features.RealizedVolatility(returns, len(returns), bc.Annualization)
	if in.DebtFaceValue == 0 {
		out.DDMean, out.DDMedian = models.NoDefaultRiskDD, models.NoDefaultRiskDD
		out.DDCI = models.Interval{Low: models.NoDefaultRiskDD, High: models.NoDefaultRiskDD}
		out.SuccessRate = 1
		out.IterationsUsed = bc.Iterations
		return out, nil
	}

	workers := bc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	draws := make([]draw, bc.Iterations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < bc.Iterations; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			draws[i] = resample(i, returns, in, cfg)
			return nil
		})
	}
	_ = g.Wait()

	dds := make([]float64, 0, len(draws))
	pds := make([]float64, 0, len(draws))
	for _, d := range draws {
		if !d.done {
			out.Truncated = true
			continue
		}
		if d.ok {
			dds = append(dds, d.dd)
			pds = append(pds, d.pd)
		}
	}

	out.IterationsUsed = len(dds)
	out.SuccessRate = float64(len(dds)) / float64(bc.Iterations)
	out.LowConfidence = out.SuccessRate < bc.MinSuccessRate
	if len(dds) == 0 {
		out.LowConfidence = true
		return out, nil
	}

	alpha := (1 - bc.ConfidenceLevel) / 2
	out.DDMean, out.DDStd = stat.PopMeanStdDev(dds, nil)
	out.PDMean = stat.Mean(pds, nil)
	sort.Float64s(dds)
	sort.Float64s(pds)
	out.DDMedian = percentile(dds, 0.5)
	out.PDMedian = percentile(pds, 0.5)
	out.DDCI = models.Interval{Low: percentile(dds, alpha), High: percentile(dds, 1-alpha)}
	out.PDCI = models.Interval{Low: percentile(pds, alpha), High: percentile(pds, 1-alpha)}
	return out, nil
}

func resample(i int, returns []float64, in models.MarketInputs, cfg models.AnalyticsConfig) draw {
	rng := rand.New(rand.NewPCG(cfg.Bootstrap.Seed^uint64(i), pcgStream))
	n := len(returns)
	sample := make([]float64, n)
	for j := range sample {
		sample[j] = returns[rng.IntN(n)]
	}

	vol := features.SampleVolatility(sample, cfg.Bootstrap.Annualization)
	if !(vol > 0) {
		return draw{done: true}
	}
	shocked := in
	shocked.EquityVolatility = vol

	o, err := evaluate(shocked, cfg)
	if err != nil || !o.ok {
		return draw{done: true}
	}
	return draw{dd: o.metrics.DistanceToDefault, pd: o.metrics.ProbabilityOfDefault, ok: true, done: true}
}

// percentile interpolates linearly between closest ranks of a sorted slice
// (R type 7). stat.Quantile only offers the R1 and R4 estimators.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
