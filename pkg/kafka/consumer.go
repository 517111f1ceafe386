package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"OptEdge/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Reader is the subset of *kafka.Reader the consumer relies on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads each registered topic on its own goroutine and hands
// messages to the handler one at a time, so a topic's events reach the
// handler in partition order. Offsets are committed only after a message is
// handled or dead-lettered.
type Consumer struct {
	cfg       ConsumerConfig
	handlers  map[string]MessageHandler
	readers   map[string]Reader
	newReader func(topic string) Reader
	dlq       Writer
	hook      ConsumerHook
	log       *logger.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]Reader),
		hook:     NoopHook{},
		log:      cfg.Logger,
	}
	c.newReader = func(topic string) Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	initConsumerMetricsOnce()
	return c, nil
}

// RegisterHandler registers the handler for its topic. A second handler for
// the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic, handler := range c.handlers {
		r := c.newReader(topic)
		c.readers[topic] = r
		c.wg.Add(1)
		go c.consume(ctx, handler, r)
		c.log.Info("kafka consumer: started",
			logger.String("topic", topic),
			logger.String("group", c.cfg.GroupID),
			logger.String("dlq", c.cfg.DLQTopic),
		)
	}
	return nil
}

// Stop cancels in-flight fetches and retries, waits for the readers to
// return, then closes them. A message interrupted mid-retry stays
// uncommitted.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("kafka consumer: close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka consumer: close dlq writer", logger.Error(err))
			}
		}
		c.log.Info("kafka consumer: stopped")
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, h MessageHandler, r Reader) {
	defer c.wg.Done()
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", logger.String("topic", h.Topic()), logger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}
		c.process(ctx, h, r, km)
	}
}

// process handles one message and decides whether its offset may advance.
func (c *Consumer) process(ctx context.Context, h MessageHandler, r Reader, km kafka.Message) {
	start := time.Now()
	topic := h.Topic()
	attempts, err := c.handle(ctx, h, km)
	defer func() {
		consumerHandleLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	}()

	if err == nil {
		consumerMessages.WithLabelValues(topic, "ok").Inc()
		c.commit(r, km)
		return
	}

	permanent := c.cfg.Permanent(err)
	if !permanent && ctx.Err() != nil {
		// shutting down; leave the offset for the next run
		return
	}
	c.hook.OnError(ctx, topic, km, km.Value, err)
	c.log.Error("kafka consumer: handle message",
		logger.String("topic", topic),
		logger.Int64("offset", km.Offset),
		logger.Int("attempts", attempts),
		logger.Bool("permanent", permanent),
		logger.Error(err),
	)
	if c.dlq == nil {
		consumerMessages.WithLabelValues(topic, "failed").Inc()
		return
	}
	if dlqErr := c.deadLetter(topic, km, attempts, err); dlqErr != nil {
		consumerMessages.WithLabelValues(topic, "failed").Inc()
		c.log.Error("kafka consumer: write dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(dlqErr))
		return
	}
	consumerMessages.WithLabelValues(topic, "dead_lettered").Inc()
	c.commit(r, km)
}

// handle runs the handler, retrying transient failures with backoff.
// Permanent failures return after the first attempt.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) (int, error) {
	topic := h.Topic()
	for attempt := 1; ; attempt++ {
		hctx, hmsg, hdata, err := c.hook.BeforeHandle(ctx, topic, km, km.Value)
		if err != nil {
			return attempt, err
		}
		err = safeHandle(hctx, h, hdata)
		c.hook.AfterHandle(hctx, topic, hmsg, hdata, err)
		if err == nil {
			return attempt, nil
		}
		if c.cfg.Permanent(err) || attempt > c.cfg.RetryMax {
			return attempt, err
		}
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return attempt, err
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(topic string, km kafka.Message, attempts int, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   km.Key,
		Value: km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(topic)},
			{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
			{Key: "attempts", Value: []byte(strconv.Itoa(attempts))},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
}

// commit retries a few times; the offset is lost only if the group
// rebalances, in which case the message is redelivered.
func (c *Consumer) commit(r Reader, km kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka consumer: commit offset", logger.Int64("offset", km.Offset), logger.Error(err))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}

var (
	consumerMessages      *prometheus.CounterVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		consumerMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optedge_kafka_consumer_messages_total",
				Help: "Consumed messages by outcome",
			},
			[]string{"topic", "result"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optedge_kafka_consumer_handle_seconds",
				Help:    "Handling time per message, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
	})
}
