package repository

import (
	"context"

	"OptEdge/internal/domain/models"
	"OptEdge/internal/domain/repository"
)

// publisher is the part of pkg/kafka.Producer the adapters use.
type publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaOrderRouter publishes order actions keyed by ticker so actions on one
// security stay ordered within a partition.
type KafkaOrderRouter struct {
	producer publisher
	topic    string
}

// NewKafkaOrderRouter creates the outbound order adapter.
func NewKafkaOrderRouter(producer publisher, topic string) *KafkaOrderRouter {
	return &KafkaOrderRouter{producer: producer, topic: topic}
}

func (r *KafkaOrderRouter) Submit(ctx context.Context, a models.OrderAction) error {
	return r.producer.Publish(ctx, r.topic, []byte(a.Ticker), a)
}

func (r *KafkaOrderRouter) Close() error {
	if r.producer != nil {
		return r.producer.Close()
	}
	return nil
}

// KafkaAlertSink publishes the observability stream.
type KafkaAlertSink struct {
	producer publisher
	topic    string
}

func NewKafkaAlertSink(producer publisher, topic string) *KafkaAlertSink {
	return &KafkaAlertSink{producer: producer, topic: topic}
}

func (s *KafkaAlertSink) PublishAlert(ctx context.Context, a models.Alert) error {
	return s.producer.Publish(ctx, s.topic, []byte(a.Kind), a)
}

var (
	_ repository.OrderRouter = (*KafkaOrderRouter)(nil)
	_ repository.AlertSink   = (*KafkaAlertSink)(nil)
)
