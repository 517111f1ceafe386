package pricing

import "errors"

var (
	// ErrInvalidInput is returned for non-positive spot, strike, time or vol.
	ErrInvalidInput = errors.New("pricing: invalid input")
	// ErrNonConvergent is returned when the solver hits its iteration cap or
	// its iterate leaves the valid domain.
	ErrNonConvergent = errors.New("pricing: implied volatility did not converge")
	// ErrZeroVega is returned when a Newton step would divide by zero.
	ErrZeroVega = errors.New("pricing: zero vega")
)
