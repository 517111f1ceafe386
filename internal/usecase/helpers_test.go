package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/services/pricing"
	"OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"

	"github.com/stretchr/testify/require"
)

type fakeRouter struct {
	mu   sync.Mutex
	sent []models.OrderAction
	fail bool
}

func (r *fakeRouter) Submit(_ context.Context, a models.OrderAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("router down")
	}
	r.sent = append(r.sent, a)
	return nil
}

func (r *fakeRouter) Close() error { return nil }

func (r *fakeRouter) actions() []models.OrderAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OrderAction(nil), r.sent...)
}

type fakeJournal struct {
	mu     sync.Mutex
	orders []models.OrderAction
	alerts []models.Alert
}

func (j *fakeJournal) RecordOrders(_ context.Context, a []models.OrderAction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, a...)
	return nil
}

func (j *fakeJournal) RecordAlert(_ context.Context, a models.Alert) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.alerts = append(j.alerts, a)
	return nil
}

func (j *fakeJournal) Close() error { return nil }

type harness struct {
	store   *MarketStore
	tracker *PortfolioTracker
	engine  *SignalEngine
	session *Session
	alerts  *AlertStream
	router  *fakeRouter
	journal *fakeJournal
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:             ModeBollinger,
		Window:           10,
		BandK:            2,
		IVBuyMultiplier:  0.8,
		IVSellMultiplier: 1.2,
		SpreadMultiplier: 2.5,
		Clip:             10,
		Skew:             0.3,
		TimeValueEdge:    true,
		MinEdge:          0.5,
		EdgeFraction:     0.1,
		Workers:          4,
	}
}

func defaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		DeltaMax:     1000,
		VegaMax:      9000,
		OptionsLimit: 5000,
		FuturesLimit: 2500,
		StartingCash: 1_000_000,
	}
}

func newHarness(t *testing.T, ecfg EngineConfig, tcfg TrackerConfig, scfg SessionConfig, clock pricing.Clock) *harness {
	t.Helper()
	log := logger.Nop()
	m := metrics.Nop{}
	h := &harness{router: &fakeRouter{}, journal: &fakeJournal{}}
	h.alerts = NewAlertStream(64, h.journal, log, m)
	h.store = NewMarketStore(StoreConfig{ReferenceSpot: 100, ContractTerm: 1.0 / 12}, clock, h.alerts, m, log)
	h.tracker = NewPortfolioTracker(tcfg, h.store, m, log)
	h.engine = NewSignalEngine(ecfg, h.store, h.tracker, clock, h.alerts, m, log)
	d := NewOrderDispatcher(h.router, h.journal, h.alerts, m, log)
	h.session = NewSession(scfg, h.store, h.tracker, h.engine, d, h.alerts, clock, m, log)
	return h
}

func (h *harness) register(t *testing.T, specs ...models.SecuritySpec) {
	t.Helper()
	err := h.session.Handle(context.Background(), models.Event{
		Type:         models.EventRegistration,
		Registration: &models.Registration{Securities: specs},
	})
	require.NoError(t, err)
}

func (h *harness) quote(t *testing.T, ticker string, last float64, bids, asks map[float64]float64) {
	t.Helper()
	err := h.session.Handle(context.Background(), models.Event{
		Type:  models.EventQuoteUpdate,
		Quote: &models.QuoteUpdate{Ticker: ticker, LastPrice: last, Bids: bids, Asks: asks},
	})
	require.NoError(t, err)
}

func strike(k float64) *float64 { return &k }

func callSpec(ticker string, k, start float64) models.SecuritySpec {
	return models.SecuritySpec{Ticker: ticker, Tradeable: true, Kind: models.KindCall, Strike: strike(k), StartingPrice: start}
}

func futureSpec() models.SecuritySpec {
	return models.SecuritySpec{Ticker: models.FutureTicker, Tradeable: true, Kind: models.KindFuture, StartingPrice: 100}
}

func newStore(clock pricing.Clock) (*MarketStore, *AlertStream) {
	alerts := NewAlertStream(16, nil, logger.Nop(), metrics.Nop{})
	return NewMarketStore(StoreConfig{ReferenceSpot: 100, ContractTerm: 1.0 / 12}, clock, alerts, metrics.Nop{}, logger.Nop()), alerts
}
