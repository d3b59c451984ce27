package merton

import (
	"math"

	"CreditPulse/internal/domain/models"
)

const (
	maxDampingHalvings = 60
	maxBacktracks      = 40
)

// system holds the Merton equations in units of equity value: e = 1,
// d = D/E and v = V/E. Working in these units keeps the Jacobian well scaled
// for firms of any size.
type system struct {
	d        float64 // debt / equity
	sigmaE   float64
	rate     float64
	horizon  float64
	sqrtT    float64
	discount float64 // e^{-rT}
}

func newSystem(in models.MarketInputs) system {
	return system{
		d:        in.DebtFaceValue / in.EquityValue,
		sigmaE:   in.EquityVolatility,
		rate:     in.RiskFreeRate,
		horizon:  in.HorizonYears,
		sqrtT:    math.Sqrt(in.HorizonYears),
		discount: math.Exp(-in.RiskFreeRate * in.HorizonYears),
	}
}

// point is the model evaluated at one (v, s) pair.
type point struct {
	v, s     float64
	d1, d2   float64
	nd1, nd2 float64 // N(d1), N(d2)
	pd1      float64 // n(d1)
	r1, r2   float64 // relative residuals
	clamped  bool
}

func (p point) norm() float64 {
	return math.Max(math.Abs(p.r1), math.Abs(p.r2))
}

func (sys system) eval(v, s float64) point {
	sigT := s * sys.sqrtT
	raw := (math.Log(v/sys.d) + (sys.rate+0.5*s*s)*sys.horizon) / sigT
	d1, c1 := clampD(raw)
	d2, c2 := clampD(raw - sigT)

	p := point{v: v, s: s, d1: d1, d2: d2, clamped: c1 || c2}
	p.nd1 = NormCDF(d1)
	p.nd2 = NormCDF(d2)
	p.pd1 = NormPDF(d1)
	// E/E - 1 and (V/E)·N(d1)·σV / σE - 1
	p.r1 = v*p.nd1 - sys.d*sys.discount*p.nd2 - 1
	p.r2 = (v*p.nd1*s - sys.sigmaE) / sys.sigmaE
	return p
}

// step solves J·Δ = -r for the Newton update. ok is false when the Jacobian
// is singular or not finite.
func (sys system) step(p point) (dv, ds float64, ok bool) {
	j11 := p.nd1
	j12 := p.v * p.pd1 * sys.sqrtT
	j21 := (p.nd1*p.s + p.pd1/sys.sqrtT) / sys.sigmaE
	j22 := (p.v*p.nd1 - p.v*p.pd1*p.d2) / sys.sigmaE

	det := j11*j22 - j12*j21
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return 0, 0, false
	}
	dv = (-p.r1*j22 + p.r2*j12) / det
	ds = (-p.r2*j11 + p.r1*j21) / det
	if math.IsNaN(dv) || math.IsNaN(ds) || math.IsInf(dv, 0) || math.IsInf(ds, 0) {
		return 0, 0, false
	}
	return dv, ds, true
}

// attempt is one Newton run from a single starting point.
type attempt struct {
	cur          point
	iterations   int
	converged    bool
	nearBoundary bool
}

// newton iterates from v0 for at most maxIter steps. A step shorter than tol
// only counts as convergence when the residual is within 10·tol.
func (sys system) newton(v0, tol float64, maxIter int) attempt {
	cur := sys.eval(v0, sys.sigmaE/v0)
	a := attempt{cur: cur, nearBoundary: cur.clamped, converged: cur.norm() < tol}

	for !a.converged && a.iterations < maxIter {
		dv, ds, ok := sys.step(cur)
		if !ok {
			break
		}
		relStep := math.Max(math.Abs(dv)/cur.v, math.Abs(ds)/cur.s)

		lambda := 1.0
		for i := 0; i < maxDampingHalvings && (cur.v+lambda*dv <= 0 || cur.s+lambda*ds <= 0); i++ {
			lambda /= 2
		}
		if cur.v+lambda*dv <= 0 || cur.s+lambda*ds <= 0 {
			break
		}

		accepted := false
		var next point
		for i := 0; i < maxBacktracks; i++ {
			next = sys.eval(cur.v+lambda*dv, cur.s+lambda*ds)
			if next.norm() < cur.norm() {
				accepted = true
				break
			}
			lambda /= 2
		}
		if !accepted {
			break
		}

		a.iterations++
		cur = next
		a.cur = cur
		a.nearBoundary = a.nearBoundary || cur.clamped
		a.converged = cur.norm() < tol || (lambda == 1 && relStep < tol && cur.norm() < 10*tol)
	}
	return a
}

// seeds returns the starting asset values, in units of equity: E + D first,
// then E + D·e^{-rT}. The second start rescues negative-rate, high-leverage
// inputs where N(d1) underflows at E + D and the Jacobian is singular.
func (sys system) seeds() []float64 {
	out := []float64{1 + sys.d}
	if alt := 1 + sys.d*sys.discount; alt != out[0] {
		out = append(out, alt)
	}
	return out
}

// Solve recovers asset value and asset volatility from equity value and
// equity volatility with a damped Newton-Raphson iteration on the two Merton
// equations. Invalid inputs are rejected before any iteration. When the run
// from the first seed fails, the remaining iteration budget is spent from the
// second. A solve that does not meet the tolerance within cfg.MaxIterations
// returns Converged=false together with the best iterate.
func Solve(in models.MarketInputs, cfg models.SolverConfig) (models.SolverResult, error) {
	if err := in.Validate(); err != nil {
		return models.SolverResult{}, err
	}
	out := models.SolverResult{Ticker: in.Ticker, Date: in.Date}

	if in.DebtFaceValue == 0 {
		out.AssetValue = in.EquityValue
		out.AssetVolatility = in.EquityVolatility
		out.Converged = true
		return out, nil
	}

	sys := newSystem(in)
	budget := cfg.MaxIterations
	var best attempt
	for i, v0 := range sys.seeds() {
		a := sys.newton(v0, cfg.Tolerance, budget)
		budget -= a.iterations
		out.Iterations += a.iterations
		out.NearBoundary = out.NearBoundary || a.nearBoundary
		if i == 0 || a.converged || a.cur.norm() < best.cur.norm() {
			best = a
		}
		if a.converged || budget <= 0 {
			break
		}
	}

	out.AssetValue = best.cur.v * in.EquityValue
	out.AssetVolatility = best.cur.s
	out.Converged = best.converged
	out.ResidualNorm = best.cur.norm()
	return out, nil
}

// Residuals re-prices equity from an asset value/volatility pair and returns
// the relative errors against the observed equity value and volatility.
func Residuals(in models.MarketInputs, assetValue, assetVolatility float64) (equityErr, volErr float64) {
	if in.DebtFaceValue == 0 {
		return (assetValue - in.EquityValue) / in.EquityValue,
			(assetVolatility - in.EquityVolatility) / in.EquityVolatility
	}
	p := newSystem(in).eval(assetValue/in.EquityValue, assetVolatility)
	return p.r1, p.r2
}
