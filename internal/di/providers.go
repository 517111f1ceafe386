package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
	"OptEdge/internal/handler/api"
	"OptEdge/internal/handler/stream"
	"OptEdge/internal/middleware"
	internalrepo "OptEdge/internal/repository"
	icache "OptEdge/internal/service/cache"
	"OptEdge/internal/service/ratelimit"
	"OptEdge/internal/services/pricing"
	"OptEdge/internal/usecase"
	pkgch "OptEdge/pkg/clickhouse"
	"OptEdge/pkg/config"
	xhttp "OptEdge/pkg/http"
	pkgkafka "OptEdge/pkg/kafka"
	applogger "OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"
	"OptEdge/pkg/server"
)

// ProvideKafkaProducer creates the shared producer for orders, alerts and logs.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithDelivery(k.RequiredAcks, k.Producer.MaxAttempts, k.Compression),
		pkgkafka.WithBatching(k.Producer.BatchSize, k.Producer.BatchBytes, k.Producer.Linger, k.Producer.Async),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithKeyedPartitioning(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the structured logger. With log.collect set, repeated
// warnings and errors are aggregated onto the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Interval,
			CountThreshold: cfg.Log.Threshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideClickHouseClient returns nil when the journal is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		l.Info("clickhouse journal disabled")
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Migrate(ctx, internalrepo.JournalSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse journal ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

func ProvideJournal(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.Journal {
	if ch == nil {
		return internalrepo.NopJournal{}
	}
	return internalrepo.NewClickHouseJournal(ch.DB(), cfg.ClickHouse.Database, l)
}

// ProvideCache prefers Redis and falls back to the in-process TTL cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) icache.BytesCache {
	if !cfg.Cache.Redis.Enabled {
		return icache.NewTTLCache()
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		l.Warn("redis unavailable, using in-process cache", applogger.Error(err))
		_ = rc.Close()
		return icache.NewTTLCache()
	}
	return rc
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
}

func ProvideSessionClock(cfg *config.Config) *pricing.SessionClock {
	return pricing.NewSessionClock(cfg.Engine.SessionLength, cfg.Engine.ContractTerm)
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *stream.Hub {
	return stream.NewHub(cfg.Engine.AlertHistory, l)
}

// ProvideAlertStream fans alerts out to Kafka, the websocket hub and the journal.
func ProvideAlertStream(
	cfg *config.Config,
	journal repository.Journal,
	producer *pkgkafka.Producer,
	hub *stream.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertStream {
	return usecase.NewAlertStream(cfg.Engine.AlertHistory, journal, l, m,
		internalrepo.NewKafkaAlertSink(producer, cfg.Kafka.AlertsTopic),
		hub,
	)
}

func ProvideMarketStore(cfg *config.Config, clock *pricing.SessionClock, alerts *usecase.AlertStream, m repository.Metrics, l *applogger.Logger) *usecase.MarketStore {
	return usecase.NewMarketStore(usecase.StoreConfig{
		ReferenceSpot:  cfg.Engine.ReferenceSpot,
		UnderlyingSpot: cfg.Engine.UnderlyingSpot,
		Rate:           cfg.Engine.Rate,
		ContractTerm:   cfg.Engine.ContractTerm,
	}, clock, alerts, m, l)
}

func ProvidePortfolioTracker(cfg *config.Config, store *usecase.MarketStore, m repository.Metrics, l *applogger.Logger) *usecase.PortfolioTracker {
	return usecase.NewPortfolioTracker(usecase.TrackerConfig{
		DeltaMax:     cfg.Engine.DeltaMax,
		VegaMax:      cfg.Engine.VegaMax,
		OptionsLimit: cfg.Engine.OptionsLimit,
		FuturesLimit: cfg.Engine.FuturesLimit,
		TradeFee:     cfg.Engine.TradeFee,
		StartingCash: cfg.Engine.StartingCash,
	}, store, m, l)
}

func ProvideSignalEngine(
	cfg *config.Config,
	store *usecase.MarketStore,
	tracker *usecase.PortfolioTracker,
	clock *pricing.SessionClock,
	alerts *usecase.AlertStream,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalEngine {
	e := cfg.Engine
	return usecase.NewSignalEngine(usecase.EngineConfig{
		Mode:             cfg.Strategy.Mode,
		Window:           e.Window,
		BandK:            e.BandK,
		IVBuyMultiplier:  e.IVBuyMultiplier,
		IVSellMultiplier: e.IVSellMultiplier,
		SpreadMultiplier: e.SpreadMultiplier,
		Clip:             e.Clip,
		Skew:             e.Skew,
		TimeValueEdge:    e.TimeValueEdge,
		MinEdge:          e.MinEdge,
		EdgeFraction:     e.EdgeFraction,
		HardStop:         e.HardStop,
		Rate:             e.Rate,
		Workers:          e.Workers,
	}, store, tracker, clock, alerts, m, l)
}

func ProvideOrderRouter(cfg *config.Config, producer *pkgkafka.Producer) repository.OrderRouter {
	return internalrepo.NewKafkaOrderRouter(producer, cfg.Kafka.OrdersTopic)
}

func ProvideOrderDispatcher(router repository.OrderRouter, journal repository.Journal, alerts *usecase.AlertStream, m repository.Metrics, l *applogger.Logger) *usecase.OrderDispatcher {
	return usecase.NewOrderDispatcher(router, journal, alerts, m, l)
}

func ProvideSession(
	cfg *config.Config,
	store *usecase.MarketStore,
	tracker *usecase.PortfolioTracker,
	engine *usecase.SignalEngine,
	dispatcher *usecase.OrderDispatcher,
	alerts *usecase.AlertStream,
	clock *pricing.SessionClock,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Session {
	return usecase.NewSession(usecase.SessionConfig{
		CancelStale: cfg.Engine.CancelStale,
		WindDown:    cfg.Engine.WindDown,
	}, store, tracker, engine, dispatcher, alerts, clock, m, l)
}

func ProvideEventPipeline(cfg *config.Config, session *usecase.Session, m repository.Metrics, l *applogger.Logger) *middleware.EventPipeline {
	return middleware.NewEventPipeline(session, m, l,
		middleware.WithBufferSize(cfg.Pipeline.BufferSize),
		middleware.WithMaxRPS(cfg.Pipeline.MaxRPS),
	)
}

func ProvideKafkaEventsHandler(cfg *config.Config, pipeline *middleware.EventPipeline, m repository.Metrics) *usecase.KafkaEventsHandler {
	return usecase.NewKafkaEventsHandler(cfg.Kafka.EventsTopic, pipeline, m)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
// Malformed events skip retries and go straight to the dead-letter topic.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerPermanent(func(err error) bool {
			return errors.Is(err, models.ErrInvalidEvent)
		}),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

func ProvideAPIHandler(
	cfg *config.Config,
	store *usecase.MarketStore,
	tracker *usecase.PortfolioTracker,
	alerts *usecase.AlertStream,
	clock *pricing.SessionClock,
	cache icache.BytesCache,
	rl *ratelimit.Limiter,
	l *applogger.Logger,
) *api.Handler {
	return api.NewHandler(store, tracker, alerts, clock, cache, rl, cfg.Cache.TTL, l)
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, hub *stream.Hub, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h, hub},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	consumer *pkgkafka.Consumer,
	events *usecase.KafkaEventsHandler,
	pipeline *middleware.EventPipeline,
	alerts *usecase.AlertStream,
	hub *stream.Hub,
	httpServer *xhttp.Server,
	dispatcher *usecase.OrderDispatcher,
	ch *pkgch.Client,
	cache icache.BytesCache,
) *server.App {
	var closers []io.Closer
	if ch != nil {
		closers = append(closers, ch)
	}
	if c, ok := cache.(io.Closer); ok {
		closers = append(closers, c)
	}
	return server.New(cfg, l, consumer, events, pipeline, alerts, hub, httpServer, dispatcher, closers...)
}
