package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"OptEdge/internal/domain/models"
	icache "OptEdge/internal/service/cache"
	"OptEdge/internal/service/ratelimit"
	"OptEdge/internal/services/pricing"
	"OptEdge/internal/usecase"
	applogger "OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	e       *echo.Echo
	store   *usecase.MarketStore
	tracker *usecase.PortfolioTracker
	alerts  *usecase.AlertStream
	cache   *icache.TTLCache
}

func newFixture(t *testing.T, rl *ratelimit.Limiter) *fixture {
	t.Helper()
	log := applogger.Nop()
	m := metrics.Nop{}
	clock := pricing.FixedClock(1.0 / 12)

	f := &fixture{e: echo.New(), cache: icache.NewTTLCache()}
	f.alerts = usecase.NewAlertStream(16, nil, log, m)
	f.store = usecase.NewMarketStore(usecase.StoreConfig{ReferenceSpot: 100, ContractTerm: 1.0 / 12}, clock, f.alerts, m, log)
	f.tracker = usecase.NewPortfolioTracker(usecase.TrackerConfig{
		DeltaMax: 1000, VegaMax: 9000, OptionsLimit: 5000, FuturesLimit: 2500, StartingCash: 1_000_000,
	}, f.store, m, log)

	k := 100.0
	_, err := f.store.RegisterAll([]models.SecuritySpec{
		{Ticker: "T100C", Tradeable: true, Kind: models.KindCall, Strike: &k, StartingPrice: 5},
		{Ticker: models.FutureTicker, Tradeable: true, Kind: models.KindFuture, StartingPrice: 100},
	})
	require.NoError(t, err)
	for _, p := range []float64{100, 101, 102, 101} {
		require.NoError(t, f.store.OnTrade(models.FutureTicker, p))
	}

	h := NewHandler(f.store, f.tracker, f.alerts, clock, f.cache, rl, time.Minute, log)
	h.RegisterRoutes(f.e)
	return f
}

func (f *fixture) get(t *testing.T, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestSecuritiesListIsCached(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.get(t, "/api/securities")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []securityView `json:"rows"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	_, ok, _ := f.cache.GetBytes(context.Background(), "securities")
	assert.True(t, ok)
}

func TestUnknownTickerIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec, env := f.get(t, "/api/securities/ZZZ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Status)

	rec, _ = f.get(t, "/api/securities/ZZZ/stats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	rec, env := f.get(t, "/api/securities/"+models.FutureTicker+"/stats?window=3&k=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var v statsView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, 3, v.Stats.Window)
	require.Len(t, v.Stats.MovingAverage, 4)
	assert.InDelta(t, 100.5, v.Stats.MovingAverage[1], 1e-9)
	assert.InDelta(t, 101.333333, v.Stats.MovingAverage[3], 1e-6)
	assert.Greater(t, v.RealizedVol, 0.0)
}

func TestStatsValidation(t *testing.T) {
	f := newFixture(t, nil)
	rec, env := f.get(t, "/api/securities/"+models.FutureTicker+"/stats?window=1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_GTE")
}

func TestPortfolioAndLimits(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.tracker.ApplyFill(models.FutureTicker, true, 10, 101, models.FutureGreeks)
	require.NoError(t, err)

	rec, env := f.get(t, "/api/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)
	var p portfolioView
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.InDelta(t, 10, p.Risk.Greeks.Delta, 1e-9)
	assert.InDelta(t, 1_000_000-1010, p.Risk.Cash, 1e-9)

	_, env = f.get(t, "/api/limits")
	var l models.LimitStatus
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.False(t, l.Any())
	assert.Equal(t, 1000.0, l.DeltaMax)
}

func TestAlerts(t *testing.T) {
	f := newFixture(t, nil)
	f.alerts.Raise(models.Alert{Kind: models.AlertPositionDrift, Ticker: "T100C"})
	f.alerts.Raise(models.Alert{Kind: models.AlertLimitBreached, Greek: "vega"})

	_, env := f.get(t, "/api/alerts?limit=1")
	var list struct {
		Rows []models.Alert `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, models.AlertLimitBreached, list.Rows[0].Kind)

	rec, _ := f.get(t, "/api/alerts?limit=5000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPricingEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.get(t, "/api/pricing/greeks?spot=100&strike=100&expiry=0.0833333333&vol=0.2")
	require.Equal(t, http.StatusOK, rec.Code)
	var g greeksView
	require.NoError(t, json.Unmarshal(env.Data, &g))
	assert.InDelta(t, 0.5115, g.Greeks.Delta, 1e-3)
	assert.Greater(t, g.Price, 0.0)

	rec, env = f.get(t, "/api/pricing/iv?price=2.3&strike=100&expiry=0.0833333333")
	require.Equal(t, http.StatusOK, rec.Code)
	var iv ivView
	require.NoError(t, json.Unmarshal(env.Data, &iv))
	assert.InDelta(t, 0.2, iv.ImpliedVol, 0.01)

	rec, _ = f.get(t, "/api/pricing/iv?price=1.0&spot=100&strike=80&expiry=0.0833333333")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = f.get(t, "/api/pricing/greeks?strike=100&vol=0.2&kind=straddle")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, ratelimit.New(1, 0))
	rec, _ := f.get(t, "/api/limits")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.get(t, "/api/limits")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
