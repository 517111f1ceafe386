package repository

import (
	"context"

	"OptEdge/internal/domain/models"
)

// OrderRouter carries emitted actions out to the exchange adapter.
type OrderRouter interface {
	Submit(ctx context.Context, a models.OrderAction) error
	Close() error
}

// Journal is an append-only record of emitted actions and alerts. It is
// never read back by the engine.
type Journal interface {
	RecordOrders(ctx context.Context, actions []models.OrderAction) error
	RecordAlert(ctx context.Context, a models.Alert) error
	Close() error
}

// AlertSink receives entries of the observability stream.
type AlertSink interface {
	PublishAlert(ctx context.Context, a models.Alert) error
}

// SecurityLookup resolves registered securities.
type SecurityLookup interface {
	Security(ticker string) (models.Security, error)
}

type Metrics interface {
	RecordEvent(kind string)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordImpliedVol(ticker string, iv float64)
	RecordPortfolio(risk models.PortfolioRisk)
	RecordSignal(rule, action string)
	RecordLatency(op string, seconds float64)
}
