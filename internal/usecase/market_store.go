package usecase

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/services/features"
	"OptEdge/internal/services/pricing"
	"OptEdge/pkg/logger"
)

// StoreConfig fixes the pricing context used by the market store.
type StoreConfig struct {
	ReferenceSpot float64
	// UnderlyingSpot prices options off the future's last price once it has one.
	UnderlyingSpot bool
	Rate           float64
	// ContractTerm is the time to expiry used for the registration IV solve.
	ContractTerm float64
}

// MarketStore owns the rolling state of every registered security.
type MarketStore struct {
	mu     sync.RWMutex
	states map[string]*models.SecurityState

	cfg     StoreConfig
	clock   pricing.Clock
	alerts  alertRaiser
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewMarketStore(cfg StoreConfig, clock pricing.Clock, alerts alertRaiser, metrics domrepo.Metrics, log *logger.Logger) *MarketStore {
	return &MarketStore{
		states:  make(map[string]*models.SecurityState),
		cfg:     cfg,
		clock:   clock,
		alerts:  alerts,
		metrics: metrics,
		log:     log,
	}
}

// Register creates the state for one security. Options get an initial IV
// solved at the reference spot and one contract term; a solver failure
// stores the sentinel 0 and raises an alert instead of failing.
func (s *MarketStore) Register(spec models.SecuritySpec) (models.Security, error) {
	kind, strike, err := spec.Resolve()
	if err != nil {
		return models.Security{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[spec.Ticker]; ok {
		return models.Security{}, fmt.Errorf("%w: %s", models.ErrDuplicateSecurity, spec.Ticker)
	}

	sec := models.Security{
		Ticker:         spec.Ticker,
		Kind:           kind,
		Strike:         strike,
		ReferencePrice: s.cfg.ReferenceSpot,
		StartingPrice:  spec.StartingPrice,
		Tradeable:      spec.Tradeable,
	}
	st := &models.SecurityState{
		Security:      sec,
		LastPrice:     spec.StartingPrice,
		PriceHistory:  []float64{},
		SpreadHistory: []float64{},
		Intrinsic:     pricing.Intrinsic(kind, s.cfg.ReferenceSpot, strike),
	}
	if sec.IsOption() {
		st.IVHistory = []float64{}
		iv, err := pricing.ImpliedVolatility(spec.StartingPrice, s.cfg.ReferenceSpot, strike, s.cfg.ContractTerm, s.cfg.Rate, sec.IsCall())
		if err != nil {
			s.pricingFailure(sec.Ticker, "initial implied vol", err)
			iv = 0
		}
		st.ImpliedVol = iv
		s.metrics.RecordImpliedVol(sec.Ticker, iv)
	}
	s.states[sec.Ticker] = st

	s.log.Info("security registered",
		logger.String("ticker", sec.Ticker),
		logger.String("kind", string(sec.Kind)),
		logger.Float64("strike", sec.Strike),
		logger.Float64("implied_vol", st.ImpliedVol),
	)
	return sec, nil
}

// RegisterAll registers every spec. One bad entry never stops the others;
// the failures are joined into the returned error.
func (s *MarketStore) RegisterAll(specs []models.SecuritySpec) ([]models.Security, error) {
	var (
		out  []models.Security
		errs []error
	)
	for _, spec := range specs {
		sec, err := s.Register(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, sec)
	}
	return out, errors.Join(errs...)
}

// OnQuoteUpdate appends the last price, the book spread when both sides are
// quoted and, for options, a freshly solved IV. The ticker is resolved first,
// then inputs are validated before anything is mutated.
func (s *MarketStore) OnQuoteUpdate(ticker string, lastPrice float64, bids, asks map[float64]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.stateLocked(ticker)
	if err != nil {
		return err
	}
	if !validPrice(lastPrice) {
		return fmt.Errorf("%w: last price %v for %s", models.ErrInvalidEvent, lastPrice, ticker)
	}
	if err := validateLevels(bids); err != nil {
		return fmt.Errorf("bids for %s: %w", ticker, err)
	}
	if err := validateLevels(asks); err != nil {
		return fmt.Errorf("asks for %s: %w", ticker, err)
	}

	book := features.SummarizeBook(bids, asks)
	st.Book = book
	if spread, ok := book.Spread(); ok {
		st.SpreadHistory = append(st.SpreadHistory, spread)
	}
	s.recordLocked(st, lastPrice)
	return nil
}

// OnTrade does the price and IV bookkeeping of a quote with the trade price.
func (s *MarketStore) OnTrade(ticker string, price float64) error {
	_, err := s.OnTrades([]models.TradePrint{{Ticker: ticker, Price: price}})
	return err
}

// OnTrades books a batch of prints. Every print is checked before the first
// one is applied, so a bad print leaves the whole store untouched. It
// returns the distinct tickers that were updated, in print order.
func (s *MarketStore) OnTrades(prints []models.TradePrint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make([]*models.SecurityState, len(prints))
	for i, p := range prints {
		st, err := s.stateLocked(p.Ticker)
		if err != nil {
			return nil, err
		}
		if !validPrice(p.Price) {
			return nil, fmt.Errorf("%w: trade price %v for %s", models.ErrInvalidEvent, p.Price, p.Ticker)
		}
		states[i] = st
	}

	touched := make([]string, 0, len(prints))
	for i, p := range prints {
		s.recordLocked(states[i], p.Price)
		if !slices.Contains(touched, p.Ticker) {
			touched = append(touched, p.Ticker)
		}
	}
	return touched, nil
}

func (s *MarketStore) recordLocked(st *models.SecurityState, price float64) {
	st.LastPrice = price
	st.PriceHistory = append(st.PriceHistory, price)
	s.metrics.RecordLastPrice(st.Security.Ticker, price)

	if !st.Security.IsOption() {
		return
	}
	sec := st.Security
	expiry := s.clock.TimeToExpiry()
	iv, err := pricing.ImpliedVolatility(price, s.spotLocked(), sec.Strike, expiry, s.cfg.Rate, sec.IsCall())
	if err != nil {
		if expiry <= 0 {
			// past expiry every option fails; counted, not alerted
			s.metrics.RecordError("iv_expired")
			s.log.Debug("implied vol skipped after expiry", logger.String("ticker", sec.Ticker))
		} else {
			s.pricingFailure(sec.Ticker, "implied vol", err)
		}
		iv = 0
	}
	st.ImpliedVol = iv
	st.IVHistory = append(st.IVHistory, iv)
	s.metrics.RecordImpliedVol(sec.Ticker, iv)
}

func (s *MarketStore) pricingFailure(ticker, what string, err error) {
	s.metrics.RecordError("pricing")
	s.alerts.Raise(models.Alert{
		Kind:    models.AlertPricingFailure,
		Ticker:  ticker,
		Message: fmt.Sprintf("%s: %v", what, err),
	})
}

// RollingStats computes moving average, sample std and bands over the whole
// price history, one value per sample.
func (s *MarketStore) RollingStats(ticker string, window int, k float64) (models.RollingStats, error) {
	s.mu.RLock()
	st, err := s.stateLocked(ticker)
	if err != nil {
		s.mu.RUnlock()
		return models.RollingStats{}, err
	}
	prices := slices.Clone(st.PriceHistory)
	s.mu.RUnlock()

	return features.Bollinger(prices, window, k), nil
}

// Snapshot returns a deep copy of the state of ticker.
func (s *MarketStore) Snapshot(ticker string) (models.SecurityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateLocked(ticker)
	if err != nil {
		return models.SecurityState{}, err
	}
	out := *st
	out.PriceHistory = slices.Clone(st.PriceHistory)
	out.SpreadHistory = slices.Clone(st.SpreadHistory)
	out.IVHistory = slices.Clone(st.IVHistory)
	return out, nil
}

// HistoryLen is the number of price samples recorded for ticker.
func (s *MarketStore) HistoryLen(ticker string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateLocked(ticker)
	if err != nil {
		return 0, err
	}
	return len(st.PriceHistory), nil
}

// Tickers returns the registered tickers in sorted order.
func (s *MarketStore) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.states))
	for t := range s.states {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Securities returns every registered security sorted by ticker.
func (s *MarketStore) Securities() []models.Security {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Security, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.Security)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func (s *MarketStore) Security(ticker string) (models.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateLocked(ticker)
	if err != nil {
		return models.Security{}, err
	}
	return st.Security, nil
}

// Spot is the underlying price options are valued against.
func (s *MarketStore) Spot() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spotLocked()
}

// MeanIV averages the IV history of ticker ignoring sentinel entries. ok is
// false when no entry is usable.
func (s *MarketStore) MeanIV(ticker string) (mean float64, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := s.stateLocked(ticker)
	if err != nil {
		return 0, false, err
	}
	mean, ok = features.MeanExcluding(st.IVHistory, 0)
	return mean, ok, nil
}

func (s *MarketStore) spotLocked() float64 {
	if s.cfg.UnderlyingSpot {
		for _, st := range s.states {
			if st.Security.Kind == models.KindFuture && st.LastPrice > 0 {
				return st.LastPrice
			}
		}
	}
	return s.cfg.ReferenceSpot
}

func (s *MarketStore) stateLocked(ticker string) (*models.SecurityState, error) {
	st, ok := s.states[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownSecurity, ticker)
	}
	return st, nil
}

var _ domrepo.SecurityLookup = (*MarketStore)(nil)

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

func validateLevels(levels map[float64]float64) error {
	for price, size := range levels {
		if !validPrice(price) {
			return fmt.Errorf("%w: price level %v", models.ErrInvalidEvent, price)
		}
		if size < 0 || math.IsNaN(size) || math.IsInf(size, 0) {
			return fmt.Errorf("%w: size %v at %v", models.ErrInvalidEvent, size, price)
		}
	}
	return nil
}
