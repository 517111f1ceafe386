package features

import (
	"math"

	"OptEdge/internal/domain/models"
)

// Rolling statistics follow the trailing-window convention with a minimum of
// one observation: point i uses samples max(0, i-window+1)..i. Standard
// deviation is the sample (n-1) estimator everywhere; a window holding a
// single sample has deviation 0.

// RollingMean returns one mean per sample.
func RollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = Mean(xs[lo(i, window):i+1])
	}
	return out
}

// RollingStd returns one sample standard deviation per sample.
func RollingStd(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = sampleStd(xs[lo(i, window):i+1])
	}
	return out
}

// Bollinger computes moving average, deviation and MA +/- k*STD for every sample.
func Bollinger(xs []float64, window int, k float64) models.RollingStats {
	return BollingerTail(xs, window, k, len(xs))
}

// BollingerTail computes the same series but only for the last n samples.
// The decision loop needs two points, not the whole history.
func BollingerTail(xs []float64, window int, k float64, n int) models.RollingStats {
	if window < 1 {
		window = 1
	}
	if n > len(xs) {
		n = len(xs)
	}
	if n < 0 {
		n = 0
	}
	st := models.RollingStats{
		Window:        window,
		K:             k,
		MovingAverage: make([]float64, n),
		Std:           make([]float64, n),
		UpperBand:     make([]float64, n),
		LowerBand:     make([]float64, n),
	}
	start := len(xs) - n
	for j := 0; j < n; j++ {
		i := start + j
		w := xs[lo(i, window) : i+1]
		ma, sd := Mean(w), sampleStd(w)
		st.MovingAverage[j] = ma
		st.Std[j] = sd
		st.UpperBand[j] = ma + k*sd
		st.LowerBand[j] = ma - k*sd
	}
	return st
}

// Mean returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// MeanExcluding averages the values that differ from skip. ok is false when
// nothing is left.
func MeanExcluding(xs []float64, skip float64) (mean float64, ok bool) {
	sum, n := 0.0, 0
	for _, x := range xs {
		if x == skip {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func lo(i, window int) int {
	if window < 1 {
		window = 1
	}
	if i-window+1 < 0 {
		return 0
	}
	return i - window + 1
}
