package features

import "math"

// LogReturns computes r_t = ln(p_t / p_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last window
// returns scaled by sqrt(periodsPerYear). Returns 0 when there is not enough data.
func RealizedVolatility(returns []float64, window int, periodsPerYear float64) float64 {
	if window <= 1 || len(returns) < window || periodsPerYear <= 0 {
		return 0
	}
	sd := sampleStd(returns[len(returns)-window:])
	return sd * math.Sqrt(periodsPerYear)
}
