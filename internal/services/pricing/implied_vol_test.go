package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	for _, isCall := range []bool{true, false} {
		for _, k := range []float64{90, 95, 100, 105, 110} {
			for _, T := range []float64{0.25, 0.5, 1} {
				for _, r := range []float64{0, 0.05} {
					for _, vol := range []float64{0.15, 0.2, 0.3, 0.5, 0.8, 1.2, 2.0} {
						p, err := Price(isCall, Inputs{Spot: 100, Strike: k, Expiry: T, Rate: r, Vol: vol})
						require.NoError(t, err)

						got, err := ImpliedVolatility(p, 100, k, T, r, isCall)
						require.NoError(t, err, "call=%v K=%v T=%v r=%v vol=%v", isCall, k, T, r, vol)
						assert.InDelta(t, vol, got, 1e-3, "call=%v K=%v T=%v r=%v", isCall, k, T, r)
					}
				}
			}
		}
	}
}

func TestImpliedVolatilityRoundTripLowVol(t *testing.T) {
	type point struct{ k, T float64 }
	points := []point{{100, 1.0 / 12}, {100, 0.25}, {105, 0.25}}
	for _, k := range []float64{90, 95, 100, 105, 110} {
		points = append(points, point{k, 0.5}, point{k, 1})
	}
	for _, isCall := range []bool{true, false} {
		for _, pt := range points {
			for _, r := range []float64{0, 0.05} {
				for _, vol := range []float64{0.05, 0.1} {
					p, err := Price(isCall, Inputs{Spot: 100, Strike: pt.k, Expiry: pt.T, Rate: r, Vol: vol})
					require.NoError(t, err)

					got, err := ImpliedVolatility(p, 100, pt.k, pt.T, r, isCall)
					require.NoError(t, err, "call=%v K=%v T=%v r=%v vol=%v", isCall, pt.k, pt.T, r, vol)
					assert.InDelta(t, vol, got, 1e-3, "call=%v K=%v T=%v r=%v", isCall, pt.k, pt.T, r)
				}
			}
		}
	}
}

// Far from the money at low vol the price barely moves with vol, so a vol
// well off the true one already meets the price tolerance.
func TestImpliedVolatilityMatchesPriceNotVolWhenVegaIsSmall(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 90, Expiry: 1.0 / 12, Vol: 0.05}
	p, err := Price(true, in)
	require.NoError(t, err)

	got, err := ImpliedVolatility(p, 100, 90, 1.0/12, 0, true)
	require.NoError(t, err)
	assert.Greater(t, got-in.Vol, 1e-3)

	in.Vol = got
	back, err := Price(true, in)
	require.NoError(t, err)
	assert.InDelta(t, p, back, ivTolerance)
}

func TestImpliedVolatilityZeroVega(t *testing.T) {
	// d1 is so large that the normal density underflows to exactly zero.
	_, err := ImpliedVolatility(50, 100, 1e-30, 1, 0, true)
	assert.ErrorIs(t, err, ErrZeroVega)
}

func TestImpliedVolatilityNonConvergent(t *testing.T) {
	// Price close to the spot needs a vol far beyond what ten steps reach.
	_, err := ImpliedVolatility(99.99, 100, 100, 1, 0, true)
	assert.ErrorIs(t, err, ErrNonConvergent)

	// Observed price under intrinsic drives the iterate negative.
	_, err = ImpliedVolatility(1, 100, 50, 1, 0, true)
	assert.ErrorIs(t, err, ErrNonConvergent)
}

func TestImpliedVolatilityInvalid(t *testing.T) {
	_, err := ImpliedVolatility(5, 100, 100, 0, 0, true)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ImpliedVolatility(0, 100, 100, 1, 0, true)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImpliedVolatilityReferenceContract(t *testing.T) {
	got, err := ImpliedVolatility(5.0, 100, 100, 1.0/12, 0, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.4344, got, 1e-3)
}
