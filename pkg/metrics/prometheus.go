package metrics

import (
	"OptEdge/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	signalsTotal *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	impliedVol   *prometheus.GaugeVec
	greeks       *prometheus.GaugeVec
	cash         prometheus.Gauge
	trades       prometheus.Gauge
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_events_total",
				Help: "Session events applied, by type",
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_signals_total",
				Help: "Order actions emitted, by rule and action",
			},
			[]string{"rule", "action"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optedge_last_price",
				Help: "Last recorded price for a security",
			},
			[]string{"ticker"},
		),
		impliedVol: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optedge_implied_vol",
				Help: "Current implied volatility, 0 when the solver failed",
			},
			[]string{"ticker"},
		),
		greeks: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "optedge_portfolio_greek",
				Help: "Aggregate portfolio Greeks",
			},
			[]string{"greek"},
		),
		cash: f.NewGauge(prometheus.GaugeOpts{
			Name: "optedge_portfolio_cash",
			Help: "Tracked cash balance",
		}),
		trades: f.NewGauge(prometheus.GaugeOpts{
			Name: "optedge_portfolio_trades",
			Help: "Fills applied to the portfolio",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optedge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEvent(kind string) {
	r.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a security.
func (r *Recorder) RecordLastPrice(ticker string, price float64) {
	r.lastPrice.WithLabelValues(ticker).Set(price)
}

func (r *Recorder) RecordImpliedVol(ticker string, iv float64) {
	r.impliedVol.WithLabelValues(ticker).Set(iv)
}

func (r *Recorder) RecordPortfolio(risk models.PortfolioRisk) {
	r.greeks.WithLabelValues("delta").Set(risk.Greeks.Delta)
	r.greeks.WithLabelValues("gamma").Set(risk.Greeks.Gamma)
	r.greeks.WithLabelValues("vega").Set(risk.Greeks.Vega)
	r.cash.Set(risk.Cash)
	r.trades.Set(float64(risk.TradeCount))
}

func (r *Recorder) RecordSignal(rule, action string) {
	r.signalsTotal.WithLabelValues(rule, action).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordEvent(string)                   {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordLastPrice(string, float64)      {}
func (Nop) RecordImpliedVol(string, float64)     {}
func (Nop) RecordPortfolio(models.PortfolioRisk) {}
func (Nop) RecordSignal(string, string)          {}
func (Nop) RecordLatency(string, float64)        {}
