package merton

import "math"

// dClamp bounds d1/d2. Beyond it N(·) is 0 or 1 at float64 precision.
const dClamp = 38.0

// NormCDF is the standard normal CDF evaluated through erfc, which keeps full
// relative precision in the lower tail.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NormPDF is the standard normal density.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// clampD keeps d within ±dClamp and replaces NaN with 0. The bool reports
// whether clamping happened.
func clampD(d float64) (float64, bool) {
	switch {
	case math.IsNaN(d):
		return 0, true
	case d > dClamp:
		return dClamp, true
	case d < -dClamp:
		return -dClamp, true
	}
	return d, false
}
