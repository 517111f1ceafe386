package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"OptEdge/internal/domain/models"
	icache "OptEdge/internal/service/cache"
	"OptEdge/internal/service/metrics"
	"OptEdge/internal/service/ratelimit"
	"OptEdge/internal/services/features"
	"OptEdge/internal/services/pricing"
	xhttp "OptEdge/pkg/http"
	applogger "OptEdge/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketReader is the read side of the market state store.
type MarketReader interface {
	Securities() []models.Security
	Snapshot(ticker string) (models.SecurityState, error)
	RollingStats(ticker string, window int, k float64) (models.RollingStats, error)
	Spot() float64
}

// PortfolioReader is the read side of the portfolio tracker.
type PortfolioReader interface {
	Risk() models.PortfolioRisk
	Positions() []models.Position
	CheckLimits() models.LimitStatus
}

type AlertReader interface {
	Recent(n int) []models.Alert
}

// Config tunes caching and rate limiting of the ops API.
type Config struct {
	CacheTTL time.Duration
	Rate     float64
}

// Handler serves the read-only ops API. It never mutates engine state.
type Handler struct {
	market    MarketReader
	portfolio PortfolioReader
	alerts    AlertReader
	clock     pricing.Clock

	cache    icache.BytesCache
	cacheTTL time.Duration
	rl       *ratelimit.Limiter
	l        *applogger.Logger
}

func NewHandler(
	market MarketReader,
	portfolio PortfolioReader,
	alerts AlertReader,
	clock pricing.Clock,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
	cacheTTL time.Duration,
	l *applogger.Logger,
) *Handler {
	metrics.Register()
	return &Handler{
		market:    market,
		portfolio: portfolio,
		alerts:    alerts,
		clock:     clock,
		cache:     cache,
		cacheTTL:  cacheTTL,
		rl:        rl,
		l:         l,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.rateLimit)
	g.GET("/securities", h.Securities)
	g.GET("/securities/:ticker", h.Security)
	g.GET("/securities/:ticker/stats", h.Stats)
	g.GET("/portfolio", h.Portfolio)
	g.GET("/limits", h.Limits)
	g.GET("/alerts", h.Alerts)
	g.GET("/pricing/iv", h.ImpliedVol)
	g.GET("/pricing/greeks", h.Greeks)
}

type securityView struct {
	models.Security
	LastPrice  float64 `json:"last_price"`
	ImpliedVol float64 `json:"implied_vol"`
	Intrinsic  float64 `json:"intrinsic"`
	Samples    int     `json:"samples"`
}

type statsView struct {
	Ticker      string              `json:"ticker"`
	Stats       models.RollingStats `json:"stats"`
	RealizedVol float64             `json:"realized_vol"`
}

type portfolioView struct {
	Spot      float64              `json:"spot"`
	Risk      models.PortfolioRisk `json:"risk"`
	Positions []models.Position    `json:"positions"`
}

type ivView struct {
	ImpliedVol float64 `json:"implied_vol"`
	Expiry     float64 `json:"expiry"`
}

type greeksView struct {
	Price     float64       `json:"price"`
	Greeks    models.Greeks `json:"greeks"`
	Intrinsic float64       `json:"intrinsic"`
	Expiry    float64       `json:"expiry"`
}

func (h *Handler) Securities(c echo.Context) error {
	defer observe("securities", time.Now())
	return h.cached(c, "securities", "securities", func() (interface{}, error) {
		secs := h.market.Securities()
		out := make([]securityView, 0, len(secs))
		for _, sec := range secs {
			st, err := h.market.Snapshot(sec.Ticker)
			if err != nil {
				return nil, err
			}
			out = append(out, securityView{
				Security:   sec,
				LastPrice:  st.LastPrice,
				ImpliedVol: st.ImpliedVol,
				Intrinsic:  st.Intrinsic,
				Samples:    len(st.PriceHistory),
			})
		}
		return &xhttp.ListDataResponse{Rows: out, Total: int64(len(out))}, nil
	})
}

func (h *Handler) Security(c echo.Context) error {
	defer observe("security", time.Now())
	st, err := h.market.Snapshot(c.Param("ticker"))
	if err != nil {
		return h.fail(c, "security", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *Handler) Stats(c echo.Context) error {
	defer observe("stats", time.Now())
	req := &StatsRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, err := h.market.RollingStats(req.Ticker, req.Window, req.K)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	st, err := h.market.Snapshot(req.Ticker)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	returns := features.LogReturns(st.PriceHistory)
	return xhttp.SuccessResponse(c, statsView{
		Ticker:      req.Ticker,
		Stats:       stats,
		RealizedVol: features.RealizedVolatility(returns, min(req.Window, len(returns)), req.PeriodsPerYear),
	})
}

func (h *Handler) Portfolio(c echo.Context) error {
	defer observe("portfolio", time.Now())
	return h.cached(c, "portfolio", "portfolio", func() (interface{}, error) {
		return portfolioView{
			Spot:      h.market.Spot(),
			Risk:      h.portfolio.Risk(),
			Positions: h.portfolio.Positions(),
		}, nil
	})
}

func (h *Handler) Limits(c echo.Context) error {
	defer observe("limits", time.Now())
	return xhttp.SuccessResponse(c, h.portfolio.CheckLimits())
}

func (h *Handler) Alerts(c echo.Context) error {
	defer observe("alerts", time.Now())
	req := &AlertsRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.alerts.Recent(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) ImpliedVol(c echo.Context) error {
	defer observe("pricing_iv", time.Now())
	req := &IVRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	expiry := h.expiry(req.Expiry)
	iv, err := pricing.ImpliedVolatility(req.Price, req.Spot, req.Strike, expiry, req.Rate, req.Kind == string(models.KindCall))
	if err != nil {
		return h.fail(c, "pricing_iv", err)
	}
	return xhttp.SuccessResponse(c, ivView{ImpliedVol: iv, Expiry: expiry})
}

func (h *Handler) Greeks(c echo.Context) error {
	defer observe("pricing_greeks", time.Now())
	req := &GreeksRequest{}
	if verr := xhttp.BindQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	isCall := req.Kind == string(models.KindCall)
	in := pricing.Inputs{Spot: req.Spot, Strike: req.Strike, Expiry: h.expiry(req.Expiry), Rate: req.Rate, Vol: req.Vol}
	price, err := pricing.Price(isCall, in)
	if err != nil {
		return h.fail(c, "pricing_greeks", err)
	}
	g, err := pricing.ComputeGreeks(isCall, in)
	if err != nil {
		return h.fail(c, "pricing_greeks", err)
	}
	return xhttp.SuccessResponse(c, greeksView{
		Price:     price,
		Greeks:    g,
		Intrinsic: pricing.Intrinsic(models.Kind(req.Kind), req.Spot, req.Strike),
		Expiry:    in.Expiry,
	})
}

func (h *Handler) expiry(requested float64) float64 {
	if requested > 0 || h.clock == nil {
		return requested
	}
	return h.clock.TimeToExpiry()
}

// cached serves the enveloped response from the snapshot cache, building
// and storing it on a miss. Cache errors degrade to an uncached response.
func (h *Handler) cached(c echo.Context, endpoint, key string, build func() (interface{}, error)) error {
	ctx := c.Request().Context()
	if h.cache != nil {
		b, ok, err := h.cache.GetBytes(ctx, key)
		switch {
		case err != nil:
			h.l.Warn("api cache_get_error", applogger.String("key", key), applogger.Error(err))
		case ok:
			metrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
			return c.JSONBlob(http.StatusOK, b)
		}
		metrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()
	}

	data, err := build()
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	b, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: data})
	if err != nil {
		h.l.Error("api marshal_error", applogger.String("endpoint", endpoint), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil && h.cacheTTL > 0 {
		if err := h.cache.SetBytes(context.WithoutCancel(ctx), key, b, h.cacheTTL); err != nil {
			h.l.Warn("api cache_set_error", applogger.String("key", key), applogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrUnknownSecurity):
		appErr = xhttp.NotFoundError(err.Error())
	case errors.Is(err, pricing.ErrInvalidInput):
		appErr = xhttp.BadRequestError(err.Error())
	case errors.Is(err, pricing.ErrNonConvergent), errors.Is(err, pricing.ErrZeroVega):
		appErr = xhttp.UnprocessableError(err.Error())
	default:
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.l.Error("api error", applogger.String("endpoint", endpoint), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

func (h *Handler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()) {
			h.l.Warn("api rate_limited", applogger.String("remote", c.RealIP()), applogger.String("route", c.Path()))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
		}
		return next(c)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
