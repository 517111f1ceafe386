package usecase

import (
	"testing"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/services/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstQuoteRecordsImpliedVol(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(callSpec("C100", 100, 5.0))
	require.NoError(t, err)

	require.NoError(t, store.OnQuoteUpdate("C100", 5.0, nil, nil))

	st, err := store.Snapshot("C100")
	require.NoError(t, err)
	require.Len(t, st.IVHistory, 1)
	assert.NotZero(t, st.IVHistory[0])
	assert.InDelta(t, 0.4344, st.IVHistory[0], 1e-3)
	assert.Len(t, st.PriceHistory, len(st.IVHistory))
}

func TestUnknownTickerLeavesStoreUnchanged(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(callSpec("C100", 100, 5.0))
	require.NoError(t, err)
	before := store.Tickers()

	err = store.OnQuoteUpdate("ZZZ", 5.0, nil, nil)
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)
	assert.ErrorIs(t, store.OnTrade("ZZZ", 5.0), models.ErrUnknownSecurity)
	_, err = store.RollingStats("ZZZ", 10, 2)
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)

	// the ticker is resolved before the payload is checked
	err = store.OnQuoteUpdate("ZZZ", -1, map[float64]float64{-1: 10}, nil)
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)
	assert.NotErrorIs(t, err, models.ErrInvalidEvent)
	assert.ErrorIs(t, store.OnTrade("ZZZ", 0), models.ErrUnknownSecurity)

	assert.Equal(t, before, store.Tickers())
}

func TestOnTradesValidatesWholeBatch(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(futureSpec())
	require.NoError(t, err)

	_, err = store.OnTrades([]models.TradePrint{
		{Ticker: models.FutureTicker, Price: 100.25},
		{Ticker: "ZZZ", Price: 1},
	})
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)
	n, err := store.HistoryLen(models.FutureTicker)
	require.NoError(t, err)
	assert.Zero(t, n)

	touched, err := store.OnTrades([]models.TradePrint{
		{Ticker: models.FutureTicker, Price: 100.25},
		{Ticker: models.FutureTicker, Price: 100.5},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.FutureTicker}, touched)
	n, err = store.HistoryLen(models.FutureTicker)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(callSpec("C100", 100, 5.0))
	require.NoError(t, err)
	_, err = store.Register(callSpec("C100", 100, 5.0))
	assert.ErrorIs(t, err, models.ErrDuplicateSecurity)
}

func TestRegisterSubstitutesSentinelOnSolverFailure(t *testing.T) {
	store, alerts := newStore(pricing.FixedClock(1.0 / 12))
	// below intrinsic value at the reference spot: no vol reprices it
	secs, err := store.RegisterAll([]models.SecuritySpec{
		callSpec("T80C", 80, 1.0),
		futureSpec(),
	})
	require.NoError(t, err)
	require.Len(t, secs, 2)

	st, err := store.Snapshot("T80C")
	require.NoError(t, err)
	assert.Zero(t, st.ImpliedVol)
	assert.Empty(t, st.IVHistory)
	assert.Equal(t, 20.0, st.Intrinsic)

	recent := alerts.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, models.AlertPricingFailure, recent[0].Kind)
	assert.Equal(t, "T80C", recent[0].Ticker)
}

func TestRegisterAllKeepsGoingPastBadEntries(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	secs, err := store.RegisterAll([]models.SecuritySpec{
		{Ticker: "???", Tradeable: true},
		callSpec("T100C", 100, 5.0),
	})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
	require.Len(t, secs, 1)
	assert.Equal(t, []string{"T100C"}, store.Tickers())
}

func TestQuoteValidationHappensBeforeMutation(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(callSpec("C100", 100, 5.0))
	require.NoError(t, err)

	err = store.OnQuoteUpdate("C100", 5.0, map[float64]float64{-1: 10}, nil)
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
	err = store.OnQuoteUpdate("C100", 0, nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	n, err := store.HistoryLen("C100")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSpreadNeedsBothSides(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(futureSpec())
	require.NoError(t, err)

	require.NoError(t, store.OnQuoteUpdate(models.FutureTicker, 100, map[float64]float64{99: 5}, nil))
	require.NoError(t, store.OnQuoteUpdate(models.FutureTicker, 100, map[float64]float64{99: 5, 98: 1}, map[float64]float64{101: 5, 102: 1}))

	st, err := store.Snapshot(models.FutureTicker)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 100}, st.PriceHistory)
	assert.Equal(t, []float64{3}, st.SpreadHistory)
	assert.Nil(t, st.IVHistory)
	assert.Equal(t, 98.0, st.Book.MinBid)
	assert.Equal(t, 102.0, st.Book.MaxAsk)
}

func TestRollingStatsOverElevenPrices(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	_, err := store.Register(futureSpec())
	require.NoError(t, err)
	for p := 100.0; p <= 110; p++ {
		require.NoError(t, store.OnTrade(models.FutureTicker, p))
	}

	stats, err := store.RollingStats(models.FutureTicker, 10, 2)
	require.NoError(t, err)
	require.Len(t, stats.MovingAverage, 11)
	assert.InDelta(t, 105.5, stats.MovingAverage[10], 1e-12)
	assert.Equal(t, 100.0, stats.MovingAverage[0])
	assert.Zero(t, stats.Std[0])
}

func TestTradeAfterExpiryStoresSentinel(t *testing.T) {
	store, alerts := newStore(pricing.FixedClock(0))
	_, err := store.Register(callSpec("C100", 100, 5.0))
	require.NoError(t, err)

	require.NoError(t, store.OnTrade("C100", 5.0))
	st, err := store.Snapshot("C100")
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, st.IVHistory)
	assert.Empty(t, alerts.Recent(0))
}

func TestUnderlyingSpotFollowsFuture(t *testing.T) {
	store, _ := newStore(pricing.FixedClock(1.0 / 12))
	store.cfg.UnderlyingSpot = true
	_, err := store.Register(futureSpec())
	require.NoError(t, err)
	assert.Equal(t, 100.0, store.Spot())

	require.NoError(t, store.OnTrade(models.FutureTicker, 104))
	assert.Equal(t, 104.0, store.Spot())

	mean, ok, err := store.MeanIV(models.FutureTicker)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, mean)
}
