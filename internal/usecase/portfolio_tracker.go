package usecase

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/pkg/logger"
)

// TrackerConfig holds risk limits and cash accounting parameters.
type TrackerConfig struct {
	DeltaMax     float64
	VegaMax      float64
	OptionsLimit int64
	FuturesLimit int64
	TradeFee     float64
	StartingCash float64
}

type position struct {
	models.Position
	delta decimal.Decimal
	gamma decimal.Decimal
	vega  decimal.Decimal
	cash  decimal.Decimal
}

// PortfolioTracker owns positions and the aggregate exposure. Aggregates are
// exact decimals so a fill followed by its exact reverse restores them.
type PortfolioTracker struct {
	mu        sync.RWMutex
	positions map[string]*position
	delta     decimal.Decimal
	gamma     decimal.Decimal
	vega      decimal.Decimal
	cash      decimal.Decimal
	trades    int64

	cfg     TrackerConfig
	lookup  domrepo.SecurityLookup
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewPortfolioTracker(cfg TrackerConfig, lookup domrepo.SecurityLookup, metrics domrepo.Metrics, log *logger.Logger) *PortfolioTracker {
	return &PortfolioTracker{
		positions: make(map[string]*position),
		cash:      decimal.NewFromFloat(cfg.StartingCash),
		cfg:       cfg,
		lookup:    lookup,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// ApplyFill books qty units of ticker at price. perUnit are the Greeks of one
// unit at fill time; the position and the aggregates move by perUnit scaled
// by the signed quantity. Nothing changes when an error is returned.
func (t *PortfolioTracker) ApplyFill(ticker string, isBuy bool, qty int64, price float64, perUnit models.Greeks) (models.Position, error) {
	if qty <= 0 {
		return models.Position{}, fmt.Errorf("%w: quantity %d for %s", models.ErrInvalidFill, qty, ticker)
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.Position{}, fmt.Errorf("%w: price %v for %s", models.ErrInvalidFill, price, ticker)
	}
	sec, err := t.lookup.Security(ticker)
	if err != nil {
		return models.Position{}, err
	}

	signed := qty
	if !isBuy {
		signed = -qty
	}
	q := decimal.NewFromInt(signed)
	dDelta := decimal.NewFromFloat(perUnit.Delta).Mul(q)
	dGamma := decimal.NewFromFloat(perUnit.Gamma).Mul(q)
	dVega := decimal.NewFromFloat(perUnit.Vega).Mul(q)
	// buying spends cash, selling receives it; the fee is paid either way
	notional := decimal.NewFromFloat(price).Mul(q)
	fee := decimal.NewFromFloat(t.cfg.TradeFee).Mul(decimal.NewFromInt(qty))
	dCash := notional.Neg().Sub(fee)

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[ticker]
	if !ok {
		p = &position{Position: models.Position{Ticker: ticker, Kind: sec.Kind}}
		t.positions[ticker] = p
	}
	p.Quantity += signed
	p.EntryPrice = price
	p.Fills++
	p.UpdatedAt = t.now()
	p.delta = p.delta.Add(dDelta)
	p.gamma = p.gamma.Add(dGamma)
	p.vega = p.vega.Add(dVega)
	p.cash = p.cash.Add(dCash)
	p.Greeks = models.Greeks{Delta: p.delta.InexactFloat64(), Gamma: p.gamma.InexactFloat64(), Vega: p.vega.InexactFloat64()}
	p.CashFlow = p.cash.InexactFloat64()

	t.delta = t.delta.Add(dDelta)
	t.gamma = t.gamma.Add(dGamma)
	t.vega = t.vega.Add(dVega)
	t.cash = t.cash.Add(dCash)
	t.trades++

	t.metrics.RecordPortfolio(t.riskLocked())
	t.log.Debug("fill applied",
		logger.String("ticker", ticker),
		logger.Bool("buy", isBuy),
		logger.Int64("quantity", qty),
		logger.Float64("price", price),
		logger.Int64("position", p.Quantity),
	)
	return p.Position, nil
}

// Risk returns a float view of the aggregates.
func (t *PortfolioTracker) Risk() models.PortfolioRisk {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.riskLocked()
}

func (t *PortfolioTracker) riskLocked() models.PortfolioRisk {
	r := models.PortfolioRisk{
		Greeks: models.Greeks{
			Delta: t.delta.InexactFloat64(),
			Gamma: t.gamma.InexactFloat64(),
			Vega:  t.vega.InexactFloat64(),
		},
		Cash:       t.cash.InexactFloat64(),
		TradeCount: t.trades,
	}
	for _, p := range t.positions {
		if p.Kind == models.KindFuture {
			r.Futures += abs64(p.Quantity)
		} else {
			r.Options += abs64(p.Quantity)
		}
	}
	return r
}

// CheckLimits compares |delta| and |vega| with their maxima.
func (t *PortfolioTracker) CheckLimits() models.LimitStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, v := t.delta.InexactFloat64(), t.vega.InexactFloat64()
	return models.LimitStatus{
		DeltaBreached: math.Abs(d) > t.cfg.DeltaMax,
		VegaBreached:  math.Abs(v) > t.cfg.VegaMax,
		Delta:         d,
		Vega:          v,
		DeltaMax:      t.cfg.DeltaMax,
		VegaMax:       t.cfg.VegaMax,
	}
}

// WouldWorsen reports the first breached Greek whose magnitude would grow if
// contribution were added to the current aggregates.
func (t *PortfolioTracker) WouldWorsen(status models.LimitStatus, contribution models.Greeks) (string, bool) {
	if status.DeltaBreached && math.Abs(status.Delta+contribution.Delta) > math.Abs(status.Delta) {
		return "delta", true
	}
	if status.VegaBreached && math.Abs(status.Vega+contribution.Vega) > math.Abs(status.Vega) {
		return "vega", true
	}
	return "", false
}

// Headroom is the largest quantity that can be bought or sold in ticker
// without exceeding the gross position limit of its kind. Options share one
// limit across all strikes.
func (t *PortfolioTracker) Headroom(ticker string, isBuy bool) int64 {
	sec, err := t.lookup.Security(ticker)
	if err != nil {
		return 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	limit := t.cfg.FuturesLimit
	if sec.IsOption() {
		limit = t.cfg.OptionsLimit
	}
	var current, others int64
	for tk, p := range t.positions {
		if tk == ticker {
			current = p.Quantity
			continue
		}
		if p.Kind.IsOption() == sec.IsOption() {
			others += abs64(p.Quantity)
		}
	}
	room := limit - others
	if isBuy {
		room -= current
	} else {
		room += current
	}
	if room < 0 {
		return 0
	}
	return room
}

// Position returns the tracked position of ticker.
func (t *PortfolioTracker) Position(ticker string) (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.positions[ticker]
	if !ok {
		return models.Position{}, false
	}
	return p.Position, true
}

// Positions returns every position, dormant ones included, sorted by ticker.
func (t *PortfolioTracker) Positions() []models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Reconcile compares exchange-reported quantities with tracked ones. It
// never overwrites tracked state; every mismatch becomes a drift alert.
func (t *PortfolioTracker) Reconcile(reported map[string]int64) []models.Alert {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{}, len(reported)+len(t.positions))
	for tk := range reported {
		seen[tk] = struct{}{}
	}
	for tk := range t.positions {
		seen[tk] = struct{}{}
	}
	tickers := make([]string, 0, len(seen))
	for tk := range seen {
		tickers = append(tickers, tk)
	}
	sort.Strings(tickers)

	var alerts []models.Alert
	for _, tk := range tickers {
		var tracked int64
		if p, ok := t.positions[tk]; ok {
			tracked = p.Quantity
		}
		got := reported[tk]
		if got == tracked {
			continue
		}
		alerts = append(alerts, models.Alert{
			Kind:    models.AlertPositionDrift,
			Ticker:  tk,
			Value:   float64(got),
			Limit:   float64(tracked),
			Message: fmt.Sprintf("exchange reports %d, tracked %d", got, tracked),
		})
	}
	return alerts
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
