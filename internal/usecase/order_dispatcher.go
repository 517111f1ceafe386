package usecase

import (
	"context"
	"fmt"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/pkg/logger"
)

// OrderDispatcher routes emitted actions to the exchange adapter and the
// journal. Routing failures are alerted, never retried: the fill has
// already been booked.
type OrderDispatcher struct {
	router  domrepo.OrderRouter
	journal domrepo.Journal
	alerts  alertRaiser
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewOrderDispatcher(router domrepo.OrderRouter, journal domrepo.Journal, alerts alertRaiser, metrics domrepo.Metrics, log *logger.Logger) *OrderDispatcher {
	return &OrderDispatcher{router: router, journal: journal, alerts: alerts, metrics: metrics, log: log}
}

// Dispatch submits each action in order and returns how many were routed.
func (d *OrderDispatcher) Dispatch(ctx context.Context, actions []models.OrderAction) int {
	if len(actions) == 0 {
		return 0
	}

	start := time.Now()
	routed := 0
	for _, a := range actions {
		d.metrics.RecordSignal(string(a.Rule), string(a.Kind))
		if err := d.router.Submit(ctx, a); err != nil {
			d.metrics.RecordError("route")
			d.alerts.Raise(models.Alert{
				Kind:    models.AlertRoutingFailure,
				Ticker:  a.Ticker,
				Message: fmt.Sprintf("route %s: %v", a, err),
			})
			continue
		}
		routed++
		d.log.Info("order routed",
			logger.String("action", string(a.Kind)),
			logger.String("ticker", a.Ticker),
			logger.Int64("quantity", a.Quantity),
			logger.Float64("price", a.Price),
			logger.String("rule", string(a.Rule)),
			logger.String("reason", a.Reason),
		)
	}
	d.metrics.RecordLatency("dispatch", time.Since(start).Seconds())

	if d.journal != nil {
		if err := d.journal.RecordOrders(ctx, actions); err != nil {
			d.metrics.RecordError("journal_orders")
			d.log.Warn("order journal failed", logger.Error(err))
		}
	}
	return routed
}

// Close closes the router and the journal.
func (d *OrderDispatcher) Close() {
	if d.router != nil {
		_ = d.router.Close()
	}
	if d.journal != nil {
		_ = d.journal.Close()
	}
}
