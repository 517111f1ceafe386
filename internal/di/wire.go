//go:build wireinject
// +build wireinject

package di

import (
	"OptEdge/internal/domain/repository"
	"OptEdge/pkg/config"
	"OptEdge/pkg/metrics"
	"OptEdge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),
		ProvideClickHouseClient,
		ProvideJournal,
		ProvideCache,
		ProvideRateLimiter,
		ProvideSessionClock,

		// Engine
		ProvideHub,
		ProvideAlertStream,
		ProvideMarketStore,
		ProvidePortfolioTracker,
		ProvideSignalEngine,
		ProvideOrderRouter,
		ProvideOrderDispatcher,
		ProvideSession,

		// Adapters
		ProvideEventPipeline,
		ProvideKafkaEventsHandler,
		ProvideKafkaConsumer,
		ProvideAPIHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
