package usecase

import (
	"context"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/pkg/logger"
)

// alertRaiser is what the store, tracker and engine need from the stream.
type alertRaiser interface {
	Raise(a models.Alert)
}

// AlertStream keeps the most recent alerts in a bounded ring and fans them
// out to sinks from a single background goroutine, so raising never blocks
// event handling.
type AlertStream struct {
	mu    sync.RWMutex
	ring  []models.Alert
	next  int
	count int

	queue   chan models.Alert
	sinks   []domrepo.AlertSink
	journal domrepo.Journal
	timeout time.Duration

	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

// NewAlertStream keeps up to history alerts. journal may be nil.
func NewAlertStream(history int, journal domrepo.Journal, log *logger.Logger, metrics domrepo.Metrics, sinks ...domrepo.AlertSink) *AlertStream {
	if history <= 0 {
		history = 256
	}
	return &AlertStream{
		ring:    make([]models.Alert, history),
		queue:   make(chan models.Alert, history),
		sinks:   sinks,
		journal: journal,
		timeout: 2 * time.Second,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// AddSink registers a sink before Run starts.
func (s *AlertStream) AddSink(sink domrepo.AlertSink) {
	s.sinks = append(s.sinks, sink)
}

// Raise records the alert and schedules delivery. A full delivery queue
// drops the delivery but the alert stays in the ring.
func (s *AlertStream) Raise(a models.Alert) {
	if a.At.IsZero() {
		a.At = s.now()
	}
	if a.Level == "" {
		a.Level = levelFor(a.Kind)
	}

	s.mu.Lock()
	s.ring[s.next] = a
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.mu.Unlock()

	fields := []logger.Field{
		logger.String("kind", string(a.Kind)),
		logger.String("ticker", a.Ticker),
	}
	if a.Greek != "" {
		fields = append(fields, logger.String("greek", a.Greek), logger.Float64("value", a.Value), logger.Float64("limit", a.Limit))
	}
	if a.Level == "error" {
		s.log.Error(a.Message, fields...)
	} else {
		s.log.Warn(a.Message, fields...)
	}

	select {
	case s.queue <- a:
	default:
		s.metrics.RecordError("alert_queue_full")
	}
}

// Recent returns up to n alerts, oldest first. n <= 0 returns all retained.
func (s *AlertStream) Recent(n int) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]models.Alert, 0, n)
	start := (s.next - n + len(s.ring)) % len(s.ring)
	for i := 0; i < n; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

// Run delivers queued alerts until ctx is done.
func (s *AlertStream) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-s.queue:
			s.deliver(ctx, a)
		}
	}
}

func (s *AlertStream) deliver(ctx context.Context, a models.Alert) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.PublishAlert(ctx, a); err != nil {
			s.metrics.RecordError("alert_publish")
			s.log.Debug("alert delivery failed", logger.Error(err))
		}
	}
	if s.journal != nil {
		if err := s.journal.RecordAlert(ctx, a); err != nil {
			s.metrics.RecordError("journal_alert")
			s.log.Debug("alert journal failed", logger.Error(err))
		}
	}
}

func levelFor(k models.AlertKind) string {
	switch k {
	case models.AlertRoutingFailure:
		return "error"
	default:
		return "warn"
	}
}
