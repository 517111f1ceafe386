package pricing

import (
	"fmt"
	"math"

	"OptEdge/internal/domain/models"
)

// Inputs are the Black-Scholes model parameters. Expiry is a year fraction.
type Inputs struct {
	Spot   float64
	Strike float64
	Expiry float64
	Rate   float64
	Vol    float64
}

// Validate rejects non-positive or non-finite spot, strike, expiry and vol.
func (in Inputs) Validate() error {
	switch {
	case !positive(in.Spot):
		return fmt.Errorf("%w: spot %v", ErrInvalidInput, in.Spot)
	case !positive(in.Strike):
		return fmt.Errorf("%w: strike %v", ErrInvalidInput, in.Strike)
	case !positive(in.Expiry):
		return fmt.Errorf("%w: time to expiry %v", ErrInvalidInput, in.Expiry)
	case !positive(in.Vol):
		return fmt.Errorf("%w: vol %v", ErrInvalidInput, in.Vol)
	case math.IsNaN(in.Rate) || math.IsInf(in.Rate, 0):
		return fmt.Errorf("%w: rate %v", ErrInvalidInput, in.Rate)
	}
	return nil
}

// Price is the Black-Scholes value. Puts come from put-call parity on the
// call value: put = call + K*exp(-rT) - S.
func Price(isCall bool, in Inputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return price(isCall, in), nil
}

// Delta is N(d1) - 1 + isCall.
func Delta(isCall bool, in Inputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return delta(isCall, in), nil
}

// Gamma is identical for calls and puts.
func Gamma(in Inputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return gamma(in), nil
}

// Vega is the price sensitivity to a unit change in vol, identical for calls and puts.
func Vega(in Inputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	return vega(in), nil
}

// ComputeGreeks returns delta, gamma and vega in one pass.
func ComputeGreeks(isCall bool, in Inputs) (models.Greeks, error) {
	if err := in.Validate(); err != nil {
		return models.Greeks{}, err
	}
	return models.Greeks{
		Delta: delta(isCall, in),
		Gamma: gamma(in),
		Vega:  vega(in),
	}, nil
}

// Intrinsic is the immediate exercise value. Futures have none.
func Intrinsic(kind models.Kind, spot, strike float64) float64 {
	switch kind {
	case models.KindCall:
		return math.Max(spot-strike, 0)
	case models.KindPut:
		return math.Max(strike-spot, 0)
	}
	return 0
}

func d1(in Inputs) float64 {
	return (math.Log(in.Spot/in.Strike) + (in.Rate+in.Vol*in.Vol/2)*in.Expiry) / (in.Vol * math.Sqrt(in.Expiry))
}

func price(isCall bool, in Inputs) float64 {
	a := d1(in)
	b := a - in.Vol*math.Sqrt(in.Expiry)
	discounted := in.Strike * math.Exp(-in.Rate*in.Expiry)
	call := normCDF(a)*in.Spot - normCDF(b)*discounted
	if isCall {
		return call
	}
	return call + discounted - in.Spot
}

func delta(isCall bool, in Inputs) float64 {
	d := normCDF(d1(in)) - 1
	if isCall {
		d++
	}
	return d
}

func gamma(in Inputs) float64 {
	return normPDF(d1(in)) / (in.Spot * in.Vol * math.Sqrt(in.Expiry))
}

func vega(in Inputs) float64 {
	return in.Spot * normPDF(d1(in)) * math.Sqrt(in.Expiry)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 1) && !math.IsNaN(x)
}
