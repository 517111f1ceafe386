package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/services/features"
	"OptEdge/internal/services/pricing"
	"OptEdge/pkg/logger"
)

const (
	ModeBollinger    = "bollinger"
	ModeMarketMaking = "market_making"
)

// EngineConfig selects the strategy rule and its parameters.
type EngineConfig struct {
	Mode             string
	Window           int
	BandK            float64
	IVBuyMultiplier  float64
	IVSellMultiplier float64
	SpreadMultiplier float64
	Clip             int64
	Skew             float64
	TimeValueEdge    bool
	MinEdge          float64
	EdgeFraction     float64
	HardStop         bool
	Rate             float64
	Workers          int
}

// CycleResult is the outcome of one decision cycle.
type CycleResult struct {
	Actions []models.OrderAction
	Limits  models.LimitStatus
}

// view is the read-only input of one ticker's decision.
type view struct {
	state      models.SecurityState
	bands      models.RollingStats
	meanIV     float64
	hasMeanIV  bool
	meanSpread float64
}

// SignalEngine turns market state into orders. It keeps no state of its own:
// every emitted order is booked on the tracker before the cycle returns.
type SignalEngine struct {
	cfg     EngineConfig
	store   *MarketStore
	tracker *PortfolioTracker
	clock   pricing.Clock
	alerts  alertRaiser
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewSignalEngine(cfg EngineConfig, store *MarketStore, tracker *PortfolioTracker, clock pricing.Clock, alerts alertRaiser, metrics domrepo.Metrics, log *logger.Logger) *SignalEngine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &SignalEngine{
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		clock:   clock,
		alerts:  alerts,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Cycle evaluates the latest sample of each ticker. Statistics are computed
// in parallel; decisions and fills happen sequentially in ticker order. When
// a fill fails the actions already booked are returned with the error.
func (e *SignalEngine) Cycle(ctx context.Context, tickers []string) (CycleResult, error) {
	start := time.Now()
	tickers = sortedUnique(tickers)

	views := make([]*view, len(tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, tk := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := e.buildView(tk)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CycleResult{}, fmt.Errorf("signal cycle: %w", err)
	}

	spot := e.store.Spot()
	expiry := e.clock.TimeToExpiry()
	var actions []models.OrderAction
	for _, v := range views {
		if v == nil {
			continue
		}
		var proposed []models.OrderAction
		switch e.cfg.Mode {
		case ModeMarketMaking:
			proposed = e.marketMake(v, spot)
		default:
			proposed = e.bollinger(v, spot)
		}
		for _, a := range proposed {
			booked, ok, err := e.book(a, v.state.Security, spot, expiry, v.state.ImpliedVol)
			if err != nil {
				return CycleResult{Actions: actions, Limits: e.tracker.CheckLimits()}, err
			}
			if ok {
				actions = append(actions, booked)
			}
		}
	}

	e.metrics.RecordLatency("signal_cycle", time.Since(start).Seconds())
	return CycleResult{Actions: actions, Limits: e.tracker.CheckLimits()}, nil
}

// buildView returns nil for securities that are not tradeable or still
// warming up.
func (e *SignalEngine) buildView(ticker string) (*view, error) {
	st, err := e.store.Snapshot(ticker)
	if err != nil {
		return nil, err
	}
	if !st.Security.Tradeable || len(st.PriceHistory) <= e.cfg.Window {
		return nil, nil
	}
	v := &view{
		state:      st,
		bands:      features.BollingerTail(st.PriceHistory, e.cfg.Window, e.cfg.BandK, 2),
		meanSpread: features.Mean(st.SpreadHistory),
	}
	v.meanIV, v.hasMeanIV = features.MeanExcluding(st.IVHistory, 0)
	return v, nil
}

// bollinger emits on a re-entry into the band: the previous sample sat
// outside it and the current one is back on the inside edge.
func (e *SignalEngine) bollinger(v *view, spot float64) []models.OrderAction {
	h := v.state.PriceHistory
	prev, cur := h[len(h)-2], h[len(h)-1]
	b := v.bands

	var isBuy bool
	switch {
	case prev < b.LowerBand[0] && cur >= b.LowerBand[1]:
		isBuy = true
	case prev > b.UpperBand[0] && cur <= b.UpperBand[1]:
		isBuy = false
	default:
		return nil
	}

	sec := v.state.Security
	if sec.IsOption() && !e.ivConfirms(v, isBuy) {
		e.log.Debug("bollinger signal not confirmed by implied vol",
			logger.String("ticker", sec.Ticker),
			logger.Float64("implied_vol", v.state.ImpliedVol),
			logger.Float64("mean_iv", v.meanIV),
		)
		return nil
	}

	price, ok := e.limitPrice(sec, cur, spot, isBuy)
	if !ok {
		return nil
	}
	kind, side := models.ActionSubmitSell, "upper"
	if isBuy {
		kind, side = models.ActionSubmitBuy, "lower"
	}
	return []models.OrderAction{{
		Kind:     kind,
		Ticker:   sec.Ticker,
		Quantity: e.cfg.Clip,
		Price:    price,
		Rule:     models.RuleBollinger,
		Reason:   fmt.Sprintf("re-entered %s band (%.4f -> %.4f)", side, prev, cur),
	}}
}

// ivConfirms treats IV as a filter. A sentinel IV never confirms.
func (e *SignalEngine) ivConfirms(v *view, isBuy bool) bool {
	iv := v.state.ImpliedVol
	if iv == 0 || !v.hasMeanIV {
		return false
	}
	if isBuy {
		return iv < e.cfg.IVBuyMultiplier*v.meanIV
	}
	return iv > e.cfg.IVSellMultiplier*v.meanIV
}

// limitPrice shades option orders by the time-value edge when enabled.
// Futures and options without time value trade at the last price.
func (e *SignalEngine) limitPrice(sec models.Security, last, spot float64, isBuy bool) (float64, bool) {
	if !sec.IsOption() || !e.cfg.TimeValueEdge {
		return round2(last), true
	}
	tv := last - pricing.Intrinsic(sec.Kind, spot, sec.Strike)
	if tv <= 0 {
		return round2(last), true
	}
	adj := max(e.cfg.EdgeFraction*tv, e.cfg.MinEdge)
	if isBuy {
		p := round2(last - adj)
		if p <= 0 {
			return 0, false
		}
		return p, true
	}
	return round2(last + adj), true
}

// marketMake quotes both sides when the spread blows out relative to its
// history and the bid still clears intrinsic value.
func (e *SignalEngine) marketMake(v *view, spot float64) []models.OrderAction {
	sec := v.state.Security
	if !sec.IsOption() {
		return nil
	}
	spread, ok := v.state.Book.Spread()
	if !ok || v.meanSpread <= 0 || spread <= e.cfg.SpreadMultiplier*v.meanSpread {
		return nil
	}
	book := v.state.Book
	bidRef := (book.MeanBid + book.MinBid) / 2
	askRef := (book.MaxAsk + book.MeanAsk) / 2
	intrinsic := pricing.Intrinsic(sec.Kind, spot, sec.Strike)
	if bidRef <= intrinsic {
		return nil
	}

	reason := fmt.Sprintf("spread %.4f > %.2fx mean %.4f", spread, e.cfg.SpreadMultiplier, v.meanSpread)
	var out []models.OrderAction
	if bid := round2(bidRef - e.cfg.Skew); bid > 0 {
		out = append(out, models.OrderAction{
			Kind:     models.ActionSubmitBuy,
			Ticker:   sec.Ticker,
			Quantity: e.cfg.Clip,
			Price:    bid,
			Rule:     models.RuleMarketMake,
			Reason:   reason,
		})
	}
	out = append(out, models.OrderAction{
		Kind:     models.ActionSubmitSell,
		Ticker:   sec.Ticker,
		Quantity: e.cfg.Clip,
		Price:    round2(askRef),
		Rule:     models.RuleMarketMake,
		Reason:   reason,
	})
	return out
}

// book sizes a proposed order to the position headroom, applies the hard
// stop and books the fill. ok is false when the order was dropped.
func (e *SignalEngine) book(a models.OrderAction, sec models.Security, spot, expiry, iv float64) (models.OrderAction, bool, error) {
	qty := min(a.Quantity, e.tracker.Headroom(a.Ticker, a.IsBuy()))
	if qty <= 0 {
		e.log.Debug("order dropped at position limit", logger.String("ticker", a.Ticker), logger.String("action", string(a.Kind)))
		return a, false, nil
	}
	a.Quantity = qty

	perUnit := e.greeksAtFill(sec, spot, expiry, iv)
	signed := float64(qty)
	if !a.IsBuy() {
		signed = -signed
	}
	a.Greeks = perUnit.Scale(signed)

	if e.cfg.HardStop {
		limits := e.tracker.CheckLimits()
		if greek, worse := e.tracker.WouldWorsen(limits, a.Greeks); worse {
			e.metrics.RecordError("hard_stop")
			e.alerts.Raise(models.Alert{
				Kind:    models.AlertOrderBlocked,
				Ticker:  a.Ticker,
				Greek:   greek,
				Value:   greekValue(limits, greek),
				Limit:   greekLimit(limits, greek),
				Message: fmt.Errorf("%w: blocked %s on %s", models.ErrLimitBreached, a, greek).Error(),
			})
			return a, false, nil
		}
	}

	if _, err := e.tracker.ApplyFill(a.Ticker, a.IsBuy(), qty, a.Price, perUnit); err != nil {
		return a, false, fmt.Errorf("book %s: %w", a, err)
	}
	a.OrderID = uuid.NewString()
	a.CreatedAt = e.now()
	return a, true, nil
}

// greeksAtFill values one unit at the current IV. A failed valuation books
// no Greek exposure and is logged.
func (e *SignalEngine) greeksAtFill(sec models.Security, spot, expiry, iv float64) models.Greeks {
	if !sec.IsOption() {
		return models.FutureGreeks
	}
	g, err := pricing.ComputeGreeks(sec.IsCall(), pricing.Inputs{
		Spot:   spot,
		Strike: sec.Strike,
		Expiry: expiry,
		Rate:   e.cfg.Rate,
		Vol:    iv,
	})
	if err != nil {
		e.metrics.RecordError("fill_greeks")
		e.log.Warn("greeks unavailable at fill, booking zero exposure",
			logger.String("ticker", sec.Ticker),
			logger.Error(err),
		)
		return models.Greeks{}
	}
	return g
}

// CancelStale cancels buys resting above the last price and sells resting
// below it. Orders on unknown tickers are skipped.
func (e *SignalEngine) CancelStale(orders []models.OpenOrder) []models.OrderAction {
	var out []models.OrderAction
	for _, o := range orders {
		st, err := e.store.Snapshot(o.Ticker)
		if err != nil {
			e.log.Warn("open order on unknown security", logger.String("ticker", o.Ticker), logger.String("order_id", o.OrderID))
			continue
		}
		if len(st.PriceHistory) == 0 {
			continue
		}
		last := st.LastPrice
		if (o.IsBuy && o.Price > last) || (!o.IsBuy && o.Price < last) {
			out = append(out, models.OrderAction{
				Kind:      models.ActionCancel,
				Ticker:    o.Ticker,
				OrderID:   o.OrderID,
				Price:     o.Price,
				Rule:      models.RuleStaleCancel,
				Reason:    fmt.Sprintf("resting at %.2f, last %.2f", o.Price, last),
				CreatedAt: e.now(),
			})
		}
	}
	return out
}

func round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

func greekValue(s models.LimitStatus, greek string) float64 {
	if greek == "vega" {
		return s.Vega
	}
	return s.Delta
}

func greekLimit(s models.LimitStatus, greek string) float64 {
	if greek == "vega" {
		return s.VegaMax
	}
	return s.DeltaMax
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
