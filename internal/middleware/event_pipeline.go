package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/pkg/logger"
)

// ErrPipelineStopped is returned by Submit once Stop has been called.
var ErrPipelineStopped = errors.New("event pipeline stopped")

// EventHandler is the session side of the pipeline.
type EventHandler interface {
	Handle(ctx context.Context, ev models.Event) error
}

// EventPipeline sits between the event consumer and the session. It
// validates, optionally throttles quote updates, and feeds a single
// goroutine so events reach the session strictly one at a time.
type EventPipeline struct {
	handler EventHandler
	metrics domrepo.Metrics
	log     *logger.Logger
	maxRPS  int
	bufSize int
	bufCh   chan models.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
	// per-ticker last accepted quote
	lastSeen map[string]time.Time
}

type PipelineOption func(*EventPipeline)

// WithMaxRPS throttles quote updates per ticker. 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the queue size between consumer and session.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewEventPipeline creates a new pipeline.
func NewEventPipeline(handler EventHandler, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		handler:  handler,
		metrics:  metrics,
		log:      log,
		bufSize:  1024,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Event, p.bufSize)
	return p
}

// Start launches the goroutine that drains the queue into the session.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		for {
			// cancellation is only observed between events
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case ev := <-p.bufCh:
				p.handle(ctx, ev)
			}
		}
	}()
}

// Stop halts the drain loop after the current event and waits for it.
// Events still queued are dropped and counted.
func (p *EventPipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
	if n := len(p.bufCh); n > 0 {
		p.log.Warn("event pipeline stopped with queued events", logger.Int("dropped", n))
	}
}

// Submit validates and enqueues an event, blocking while the queue is full.
func (p *EventPipeline) Submit(ctx context.Context, ev models.Event) error {
	select {
	case <-p.stopCh:
		return ErrPipelineStopped
	default:
	}
	if err := ev.Validate(); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	if ev.Type == models.EventQuoteUpdate && !p.allow(ev.Quote.Ticker, ev.ReceivedAt) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	select {
	case p.bufCh <- ev:
		return nil
	case <-p.stopCh:
		return ErrPipelineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the number of queued events.
func (p *EventPipeline) Depth() int { return len(p.bufCh) }

func (p *EventPipeline) handle(ctx context.Context, ev models.Event) {
	start := time.Now()
	if err := p.handler.Handle(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_event")
		p.log.Warn("event rejected",
			logger.String("type", string(ev.Type)),
			logger.Error(err),
		)
	}
	p.metrics.RecordLatency("pipeline_queue", start.Sub(ev.ReceivedAt).Seconds())
}

func (p *EventPipeline) allow(ticker string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last := p.lastSeen[ticker]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[ticker] = now
	return true
}
