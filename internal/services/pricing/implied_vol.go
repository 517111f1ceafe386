package pricing

import (
	"fmt"
	"math"
)

const (
	ivInitialGuess = 0.5
	ivMaxIter      = 10
	ivTolerance    = 1e-4
)

// ImpliedVolatility solves price(vol) == observed with Newton-Raphson from
// an initial guess of 0.5. It fails rather than return an unconverged estimate.
func ImpliedVolatility(observed, spot, strike, expiry, rate float64, isCall bool) (float64, error) {
	in := Inputs{Spot: spot, Strike: strike, Expiry: expiry, Rate: rate, Vol: ivInitialGuess}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	if !positive(observed) {
		return 0, fmt.Errorf("%w: observed price %v", ErrInvalidInput, observed)
	}

	for i := 0; i < ivMaxIter; i++ {
		diff := price(isCall, in) - observed
		if math.Abs(diff) < ivTolerance {
			return in.Vol, nil
		}
		v := vega(in)
		if v == 0 {
			return 0, fmt.Errorf("%w: at vol %v after %d iterations", ErrZeroVega, in.Vol, i)
		}
		in.Vol -= diff / v
		if !positive(in.Vol) {
			return 0, fmt.Errorf("%w: iterate left domain after %d iterations", ErrNonConvergent, i+1)
		}
	}
	return 0, fmt.Errorf("%w: %d iterations, last vol %v", ErrNonConvergent, ivMaxIter, in.Vol)
}
