package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = 100 + float64(i)
	}
	return xs
}

func TestRollingMeanWarmUp(t *testing.T) {
	ma := RollingMean(ramp(11), 10)
	require.Len(t, ma, 11)
	assert.Equal(t, 100.0, ma[0])
	assert.Equal(t, 100.5, ma[1])
	assert.InDelta(t, 104.5, ma[9], 1e-12)
	assert.InDelta(t, 105.5, ma[10], 1e-12)
}

func TestRollingStdSample(t *testing.T) {
	sd := RollingStd(ramp(11), 10)
	assert.Equal(t, 0.0, sd[0])
	assert.InDelta(t, math.Sqrt(0.5), sd[1], 1e-12)
	assert.InDelta(t, 3.0276503540974917, sd[10], 1e-12)
}

func TestBollingerOneValuePerSample(t *testing.T) {
	xs := []float64{5, 5.2, 4.9, 5.1, 5.3, 4.8, 5, 5.4, 4.7, 5.2, 5.6, 4.5}
	st := Bollinger(xs, 10, 2)
	require.Len(t, st.MovingAverage, len(xs))
	require.Len(t, st.UpperBand, len(xs))
	for i := range xs {
		assert.InDelta(t, st.MovingAverage[i]+2*st.Std[i], st.UpperBand[i], 1e-12)
		assert.InDelta(t, st.MovingAverage[i]-2*st.Std[i], st.LowerBand[i], 1e-12)
	}
}

func TestBollingerWiderMultiplierNeverNarrows(t *testing.T) {
	series := [][]float64{
		ramp(25),
		{100, 100, 100, 100},
		{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4},
	}
	for _, xs := range series {
		narrow := Bollinger(xs, 10, 1.25)
		wide := Bollinger(xs, 10, 2.0)
		for i := range xs {
			assert.GreaterOrEqual(t, wide.UpperBand[i], narrow.UpperBand[i])
			assert.LessOrEqual(t, wide.LowerBand[i], narrow.LowerBand[i])
		}
	}
}

func TestBollingerTailMatchesFullSeries(t *testing.T) {
	xs := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7}
	full := Bollinger(xs, 10, 2)
	tail := BollingerTail(xs, 10, 2, 2)
	require.Len(t, tail.LowerBand, 2)
	assert.Equal(t, full.LowerBand[len(xs)-2:], tail.LowerBand)
	assert.Equal(t, full.UpperBand[len(xs)-2:], tail.UpperBand)

	assert.Empty(t, BollingerTail(nil, 10, 2, 2).MovingAverage)
}

func TestMeanExcluding(t *testing.T) {
	m, ok := MeanExcluding([]float64{0, 0.4, 0, 0.6}, 0)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, m, 1e-12)

	_, ok = MeanExcluding([]float64{0, 0}, 0)
	assert.False(t, ok)
}

func TestSummarizeBook(t *testing.T) {
	b := SummarizeBook(map[float64]float64{4.8: 10, 5.0: 5}, map[float64]float64{5.2: 3, 5.4: 1, 5.6: 2})
	assert.True(t, b.HasBids)
	assert.InDelta(t, 4.9, b.MeanBid, 1e-12)
	assert.Equal(t, 4.8, b.MinBid)
	assert.Equal(t, 5.6, b.MaxAsk)
	spread, ok := b.Spread()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, spread, 1e-12)

	_, ok = SummarizeBook(nil, map[float64]float64{5: 1}).Spread()
	assert.False(t, ok)
}

func TestRealizedVolatility(t *testing.T) {
	r := LogReturns([]float64{100, 101, 100, 101, 100})
	require.Len(t, r, 4)
	assert.Equal(t, 0.0, RealizedVolatility(r, 10, 1))
	assert.Greater(t, RealizedVolatility(r, 4, 1), 0.0)
	assert.Nil(t, LogReturns([]float64{100}))
}
