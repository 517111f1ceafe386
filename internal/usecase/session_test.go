package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/services/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windingClock struct {
	remaining time.Duration
}

func (c windingClock) TimeToExpiry() float64    { return 1.0 / 12 }
func (c windingClock) Remaining() time.Duration { return c.remaining }

func TestSessionUnknownTickerIsReturned(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	h.register(t, futureSpec())

	err := h.session.Handle(context.Background(), models.Event{
		Type:  models.EventQuoteUpdate,
		Quote: &models.QuoteUpdate{Ticker: "ZZZ", LastPrice: 1},
	})
	assert.ErrorIs(t, err, models.ErrUnknownSecurity)
	assert.Equal(t, []string{models.FutureTicker}, h.store.Tickers())
}

func TestSessionRejectsMalformedEvents(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	err := h.session.Handle(context.Background(), models.Event{Type: models.EventQuoteUpdate})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
	err = h.session.Handle(context.Background(), models.Event{Type: "bogus"})
	assert.ErrorIs(t, err, models.ErrInvalidEvent)
}

func TestSessionTradesApplyAllOrNothing(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	h.register(t, futureSpec(), callSpec("T100C", 100, 5.0))

	cases := map[string]struct {
		prints []models.TradePrint
		want   error
	}{
		"unknown ticker": {
			prints: []models.TradePrint{
				{Ticker: models.FutureTicker, Price: 100.25, Size: 3},
				{Ticker: "ZZZ", Price: 1, Size: 1},
				{Ticker: "T100C", Price: 5.1, Size: 2},
			},
			want: models.ErrUnknownSecurity,
		},
		"bad price": {
			prints: []models.TradePrint{
				{Ticker: models.FutureTicker, Price: 100.25, Size: 3},
				{Ticker: "T100C", Price: -1, Size: 2},
			},
			want: models.ErrInvalidEvent,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := h.session.Handle(context.Background(), models.Event{Type: models.EventTrade, Trades: tc.prints})
			assert.ErrorIs(t, err, tc.want)

			for _, tk := range []string{models.FutureTicker, "T100C"} {
				st, err := h.store.Snapshot(tk)
				require.NoError(t, err)
				assert.Empty(t, st.PriceHistory, tk)
				assert.Empty(t, st.IVHistory, tk)
			}
		})
	}

	err := h.session.Handle(context.Background(), models.Event{
		Type: models.EventTrade,
		Trades: []models.TradePrint{
			{Ticker: models.FutureTicker, Price: 100.25, Size: 3},
			{Ticker: "T100C", Price: 5.1, Size: 2},
			{Ticker: models.FutureTicker, Price: 100.5, Size: 1},
		},
	})
	require.NoError(t, err)
	st, err := h.store.Snapshot(models.FutureTicker)
	require.NoError(t, err)
	assert.Equal(t, []float64{100.25, 100.5}, st.PriceHistory)
	st, err = h.store.Snapshot("T100C")
	require.NoError(t, err)
	assert.Len(t, st.IVHistory, 1)
}

func TestSessionPortfolioUpdateReconcilesAndCancels(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{CancelStale: true}, pricing.FixedClock(1.0/12))
	h.register(t, futureSpec())
	h.quote(t, models.FutureTicker, 100, nil, nil)

	err := h.session.Handle(context.Background(), models.Event{
		Type: models.EventPortfolioUpdate,
		Portfolio: &models.PortfolioUpdate{
			Positions:  map[string]int64{models.FutureTicker: 5},
			OpenOrders: []models.OpenOrder{{OrderID: "42", Ticker: models.FutureTicker, IsBuy: true, Price: 101, Quantity: 5}},
		},
	})
	require.NoError(t, err)

	sent := h.router.actions()
	require.Len(t, sent, 1)
	assert.Equal(t, models.ActionCancel, sent[0].Kind)
	assert.Equal(t, "42", sent[0].OrderID)

	alerts := h.alerts.Recent(0)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertPositionDrift, alerts[0].Kind)
	_, ok := h.tracker.Position(models.FutureTicker)
	assert.False(t, ok)
}

func TestSessionEvaluatesEachSampleOnce(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	h.register(t, futureSpec())
	for _, p := range crossingSeries[:12] {
		h.quote(t, models.FutureTicker, p, nil, nil)
	}
	require.Len(t, h.router.actions(), 1)

	// a portfolio update re-runs the cycle but there is no new sample
	err := h.session.Handle(context.Background(), models.Event{
		Type:      models.EventPortfolioUpdate,
		Portfolio: &models.PortfolioUpdate{Positions: map[string]int64{models.FutureTicker: 10}},
	})
	require.NoError(t, err)
	assert.Len(t, h.router.actions(), 1)
}

func TestSessionWindDownSuppressesSignals(t *testing.T) {
	clock := windingClock{remaining: 5 * time.Second}
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{WindDown: 10 * time.Second}, clock)
	h.register(t, futureSpec())
	for _, p := range crossingSeries {
		h.quote(t, models.FutureTicker, p, nil, nil)
	}
	assert.Empty(t, h.router.actions())
	n, err := h.store.HistoryLen(models.FutureTicker)
	require.NoError(t, err)
	assert.Equal(t, len(crossingSeries), n)
}

func TestSessionRoutingFailureStillBooksFill(t *testing.T) {
	h := newHarness(t, defaultEngineConfig(), defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	h.router.fail = true
	h.register(t, futureSpec())
	for _, p := range crossingSeries[:12] {
		h.quote(t, models.FutureTicker, p, nil, nil)
	}

	pos, ok := h.tracker.Position(models.FutureTicker)
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)

	alerts := h.alerts.Recent(0)
	require.NotEmpty(t, alerts)
	assert.Equal(t, models.AlertRoutingFailure, alerts[len(alerts)-1].Kind)
	assert.Equal(t, "error", alerts[len(alerts)-1].Level)
}

func TestSessionAlertsOnceWhenLimitBreached(t *testing.T) {
	tcfg := defaultTrackerConfig()
	tcfg.DeltaMax = 5
	h := newHarness(t, defaultEngineConfig(), tcfg, SessionConfig{}, pricing.FixedClock(1.0/12))
	h.register(t, futureSpec())
	for _, p := range crossingSeries[:12] {
		h.quote(t, models.FutureTicker, p, nil, nil)
	}
	h.quote(t, models.FutureTicker, 100.2, nil, nil)

	var breaches int
	for _, a := range h.alerts.Recent(0) {
		if a.Kind == models.AlertLimitBreached {
			breaches++
			assert.Equal(t, "delta", a.Greek)
			assert.Equal(t, 10.0, a.Value)
		}
	}
	assert.Equal(t, 1, breaches)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "unknown_security", classify(models.ErrUnknownSecurity))
	assert.Equal(t, "invalid_event", classify(models.ErrInvalidEvent))
	assert.Equal(t, "session", classify(assert.AnError))
}

// failingLookup resolves the first n lookups and fails the rest.
type failingLookup struct {
	mu   sync.Mutex
	next func(string) (models.Security, error)
	left int
}

func (f *failingLookup) Security(ticker string) (models.Security, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.left <= 0 {
		return models.Security{}, errors.New("lookup unavailable")
	}
	f.left--
	return f.next(ticker)
}

func TestSessionRoutesFillsBookedBeforeCycleError(t *testing.T) {
	cfg := defaultEngineConfig()
	cfg.Mode = ModeMarketMaking
	h := newHarness(t, cfg, defaultTrackerConfig(), SessionConfig{}, pricing.FixedClock(1.0/12))
	h.register(t, callSpec("T100C", 100, 5.0), futureSpec())
	for i := 0; i < 10; i++ {
		h.quote(t, "T100C", 5.0, map[float64]float64{4.9: 10}, map[float64]float64{5.1: 10})
	}

	// headroom and fill of the bid, then headroom of the ask; the ask fill fails
	h.tracker.lookup = &failingLookup{next: h.store.Security, left: 3}
	err := h.session.Handle(context.Background(), models.Event{
		Type: models.EventQuoteUpdate,
		Quote: &models.QuoteUpdate{
			Ticker:    "T100C",
			LastPrice: 5.0,
			Bids:      map[float64]float64{4.0: 10, 4.6: 10},
			Asks:      map[float64]float64{6.0: 10, 6.6: 10},
		},
	})
	require.Error(t, err)

	sent := h.router.actions()
	require.Len(t, sent, 1)
	assert.Equal(t, models.ActionSubmitBuy, sent[0].Kind)
	pos, ok := h.tracker.Position("T100C")
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.Len(t, h.journal.orders, 1)
}
