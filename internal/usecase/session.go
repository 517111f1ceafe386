package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/services/pricing"
	"OptEdge/pkg/logger"
)

// SessionConfig holds the session-level switches.
type SessionConfig struct {
	CancelStale bool
	// WindDown stops new signals in the final part of the session.
	WindDown time.Duration
}

// remainingClock is implemented by clocks that know the session length.
type remainingClock interface {
	Remaining() time.Duration
}

// Session is the single serialization point: it applies events to the
// store, runs decision cycles and routes the result. Each handler is
// all-or-nothing with respect to the store and the tracker.
type Session struct {
	mu sync.Mutex
	// evaluated holds the price history length already seen by the engine.
	evaluated  map[string]int
	lastLimits models.LimitStatus

	cfg        SessionConfig
	store      *MarketStore
	tracker    *PortfolioTracker
	engine     *SignalEngine
	dispatcher *OrderDispatcher
	alerts     alertRaiser
	clock      pricing.Clock
	metrics    domrepo.Metrics
	log        *logger.Logger
}

func NewSession(
	cfg SessionConfig,
	store *MarketStore,
	tracker *PortfolioTracker,
	engine *SignalEngine,
	dispatcher *OrderDispatcher,
	alerts alertRaiser,
	clock pricing.Clock,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *Session {
	return &Session{
		evaluated:  make(map[string]int),
		cfg:        cfg,
		store:      store,
		tracker:    tracker,
		engine:     engine,
		dispatcher: dispatcher,
		alerts:     alerts,
		clock:      clock,
		metrics:    metrics,
		log:        log,
	}
}

// Handle applies one event. Only contract violations are returned: unknown
// tickers and malformed events. Pricing failures stay inside the store and
// a panic is recovered and reported as an error.
func (s *Session) Handle(ctx context.Context, ev models.Event) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("panic")
			s.log.Error("session handler panic",
				logger.String("event", string(ev.Type)),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%s handler panic: %v", ev.Type, r)
		}
		if err != nil {
			s.metrics.RecordError(classify(err))
		}
		s.metrics.RecordLatency("event_"+string(ev.Type), time.Since(start).Seconds())
	}()

	if err := ev.Validate(); err != nil {
		return err
	}
	s.metrics.RecordEvent(string(ev.Type))

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case models.EventRegistration:
		return s.onRegistration(ev.Registration)
	case models.EventQuoteUpdate:
		q := ev.Quote
		if err := s.store.OnQuoteUpdate(q.Ticker, q.LastPrice, q.Bids, q.Asks); err != nil {
			return err
		}
		return s.cycle(ctx, []string{q.Ticker})
	case models.EventTrade:
		return s.onTrades(ctx, ev.Trades)
	case models.EventPortfolioUpdate:
		return s.onPortfolio(ctx, ev.Portfolio)
	}
	return nil
}

func (s *Session) onRegistration(r *models.Registration) error {
	secs, err := s.store.RegisterAll(r.Securities)
	s.log.Info("registration applied", logger.Int("registered", len(secs)), logger.Int("requested", len(r.Securities)))
	if restarter, ok := s.clock.(interface{ Restart() }); ok && len(secs) > 0 && len(secs) == len(r.Securities) {
		restarter.Restart()
	}
	return err
}

// onTrades applies the prints of one event together or not at all.
func (s *Session) onTrades(ctx context.Context, prints []models.TradePrint) error {
	touched, err := s.store.OnTrades(prints)
	if err != nil {
		return err
	}
	return s.cycle(ctx, touched)
}

func (s *Session) onPortfolio(ctx context.Context, u *models.PortfolioUpdate) error {
	for _, a := range s.tracker.Reconcile(u.Positions) {
		s.alerts.Raise(a)
	}
	if s.cfg.CancelStale && len(u.OpenOrders) > 0 {
		s.dispatcher.Dispatch(ctx, s.engine.CancelStale(u.OpenOrders))
	}
	return s.cycle(ctx, s.store.Tickers())
}

// cycle evaluates the tickers that gained samples since their last
// evaluation, so each sample triggers at most one decision.
func (s *Session) cycle(ctx context.Context, tickers []string) error {
	if s.windingDown() {
		return nil
	}

	due := make([]string, 0, len(tickers))
	for _, tk := range tickers {
		n, err := s.store.HistoryLen(tk)
		if err != nil {
			return err
		}
		if n > s.evaluated[tk] {
			s.evaluated[tk] = n
			due = append(due, tk)
		}
	}
	if len(due) == 0 {
		return nil
	}

	res, err := s.engine.Cycle(ctx, due)
	// booked fills are routed even when the cycle stopped early
	s.dispatcher.Dispatch(ctx, res.Actions)
	if err != nil {
		return err
	}
	s.reportLimits(res.Limits)
	return nil
}

// reportLimits alerts when a Greek enters breach. Staying breached is not
// re-alerted.
func (s *Session) reportLimits(cur models.LimitStatus) {
	if cur.DeltaBreached && !s.lastLimits.DeltaBreached {
		s.alerts.Raise(models.Alert{
			Kind:    models.AlertLimitBreached,
			Greek:   "delta",
			Value:   cur.Delta,
			Limit:   cur.DeltaMax,
			Message: fmt.Sprintf("delta %.2f exceeds %.2f", cur.Delta, cur.DeltaMax),
		})
	}
	if cur.VegaBreached && !s.lastLimits.VegaBreached {
		s.alerts.Raise(models.Alert{
			Kind:    models.AlertLimitBreached,
			Greek:   "vega",
			Value:   cur.Vega,
			Limit:   cur.VegaMax,
			Message: fmt.Sprintf("vega %.2f exceeds %.2f", cur.Vega, cur.VegaMax),
		})
	}
	s.lastLimits = cur
}

func (s *Session) windingDown() bool {
	if s.cfg.WindDown <= 0 {
		return false
	}
	rc, ok := s.clock.(remainingClock)
	return ok && rc.Remaining() <= s.cfg.WindDown
}

// classify maps an error onto a metrics label.
func classify(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownSecurity):
		return "unknown_security"
	case errors.Is(err, models.ErrDuplicateSecurity):
		return "duplicate_security"
	case errors.Is(err, models.ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, models.ErrInvalidFill):
		return "invalid_fill"
	default:
		return "session"
	}
}
