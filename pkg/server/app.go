package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"OptEdge/internal/handler/stream"
	"OptEdge/internal/middleware"
	"OptEdge/internal/usecase"
	"OptEdge/pkg/config"
	xhttp "OptEdge/pkg/http"
	pkgkafka "OptEdge/pkg/kafka"
	applogger "OptEdge/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// App owns the lifecycle of the engine: the inbound consumer, the event
// pipeline feeding the session, the alert fan-out and the ops HTTP server.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	consumer   *pkgkafka.Consumer
	events     pkgkafka.MessageHandler
	pipeline   *middleware.EventPipeline
	alerts     *usecase.AlertStream
	hub        *stream.Hub
	httpServer *xhttp.Server
	dispatcher *usecase.OrderDispatcher
	closers    []io.Closer
}

// New creates a new App. closers are closed last, in order; nil entries are skipped.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	consumer *pkgkafka.Consumer,
	events pkgkafka.MessageHandler,
	pipeline *middleware.EventPipeline,
	alerts *usecase.AlertStream,
	hub *stream.Hub,
	httpServer *xhttp.Server,
	dispatcher *usecase.OrderDispatcher,
	closers ...io.Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		consumer:   consumer,
		events:     events,
		pipeline:   pipeline,
		alerts:     alerts,
		hub:        hub,
		httpServer: httpServer,
		dispatcher: dispatcher,
		closers:    closers,
	}
}

// Run starts every component and blocks until SIGINT/SIGTERM, ctx
// cancellation or an HTTP listener failure, then shuts down.
func (a *App) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// background workers outlive sigCtx so they can drain during shutdown
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { a.alerts.Run(gctx); return nil })
	g.Go(func() error { a.hub.Run(gctx); return nil })

	a.pipeline.Start(runCtx)
	a.log.Info("event pipeline started", applogger.String("strategy", a.cfg.Strategy.Mode))

	if a.consumer != nil && a.events != nil {
		a.consumer.RegisterHandler(a.events)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			cancelRun()
			_ = g.Wait()
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.events.Topic()))
	}

	httpErr := a.httpServer.Start()

	var runErr error
	select {
	case <-sigCtx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-httpErr:
		if ok && err != nil {
			runErr = err
		}
	}

	a.shutdown(cancelRun)
	_ = g.Wait()
	a.closeAll()
	a.log.Info("shutdown complete")
	return runErr
}

// shutdown stops intake before draining: consumer, then pipeline, then HTTP.
func (a *App) shutdown(cancelRun context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.pipeline.Stop()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	cancelRun()
}

func (a *App) closeAll() {
	// flush aggregated logs while the producer is still open
	a.log.RemoveCollector()
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	for _, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}
}
