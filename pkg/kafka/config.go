package kafka

import (
	"time"

	"OptEdge/pkg/logger"
)

// ProducerConfig is the writer setup shared by the order router, the alert
// sink and the log collector.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	Async        bool
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	// KeyedPartitioning hashes the message key so every action for one
	// ticker lands on the same partition in submission order.
	KeyedPartitioning bool
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		Linger:       5 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// WithBrokers sets the bootstrap brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets acknowledgements (-1 waits for all replicas), writer
// retries and the compression codec.
func WithDelivery(acks, maxAttempts int, compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
		if maxAttempts > 0 {
			c.MaxAttempts = maxAttempts
		}
		if compression != "" {
			c.Compression = compression
		}
	}
}

// WithBatching bounds a batch by count, bytes and linger time. Async writes
// return before the broker acknowledges.
func WithBatching(size, bytes int, linger time.Duration, async bool) ProducerOption {
	return func(c *ProducerConfig) {
		if size > 0 {
			c.BatchSize = size
		}
		if bytes > 0 {
			c.BatchBytes = bytes
		}
		if linger > 0 {
			c.Linger = linger
		}
		c.Async = async
	}
}

// WithTimeouts sets the writer's write and read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		if write > 0 {
			c.WriteTimeout = write
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithKeyedPartitioning routes by message key instead of least-bytes.
func WithKeyedPartitioning() ProducerOption {
	return func(c *ProducerConfig) { c.KeyedPartitioning = true }
}

// ConsumerConfig is the reader setup for the session events topic.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	MinBytes int
	MaxBytes int
	// RetryMax is the number of extra attempts for transient failures.
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	// Permanent reports errors that retrying cannot fix. Such messages go
	// to the dead-letter topic on the first failure.
	Permanent func(error) bool
	Logger    *logger.Logger
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		GroupID:    "optedge",
		MinBytes:   1,
		MaxBytes:   10e6,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		Permanent:  func(error) bool { return false },
		Logger:     logger.Nop(),
	}
}

// WithConsumerBrokers sets the bootstrap brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID sets the consumer group that owns committed offsets.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

// WithConsumerFetch sets fetch min/max bytes. A min of 1 hands each event
// over as soon as it arrives.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if minBytes > 0 {
			c.MinBytes = minBytes
		}
		if maxBytes > 0 {
			c.MaxBytes = maxBytes
		}
	}
}

// WithConsumerRetry configures retries of transient failures.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		if backoffMin > 0 {
			c.BackoffMin = backoffMin
		}
		if backoffMax > 0 {
			c.BackoffMax = backoffMax
		}
	}
}

// WithConsumerDLQ sets the dead-letter topic. Without one, a failed message
// is left uncommitted and is redelivered after a restart.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerPermanent sets the classifier for errors that skip retries.
func WithConsumerPermanent(permanent func(error) bool) ConsumerOption {
	return func(c *ConsumerConfig) {
		if permanent != nil {
			c.Permanent = permanent
		}
	}
}

// WithConsumerLogger sets the logger for consumer lifecycle and failures.
func WithConsumerLogger(l *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}
