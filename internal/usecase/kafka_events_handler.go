package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	pkgkafka "OptEdge/pkg/kafka"
	"OptEdge/pkg/util"
)

// EventSubmitter accepts decoded events, normally the event pipeline.
type EventSubmitter interface {
	Submit(ctx context.Context, ev models.Event) error
}

// KafkaEventsHandler decodes session events from the events topic.
type KafkaEventsHandler struct {
	topic   string
	sink    EventSubmitter
	metrics domrepo.Metrics
}

func NewKafkaEventsHandler(topic string, sink EventSubmitter, metrics domrepo.Metrics) *KafkaEventsHandler {
	return &KafkaEventsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaEventsHandler) Topic() string { return h.topic }

// Handle decodes one message and hands it to the pipeline. Decode failures
// are returned so the consumer can dead-letter the message.
func (h *KafkaEventsHandler) Handle(ctx context.Context, b []byte) error {
	ev, err := DecodeEvent(b)
	if err != nil {
		h.metrics.RecordError("consumer_decode")
		return err
	}
	if !ev.ReceivedAt.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ev.ReceivedAt).Seconds())
	}
	return h.sink.Submit(ctx, ev)
}

// envelope schema: {"type": "...", "ts": "...", "payload": {...}}
type envelope struct {
	Type    models.EventType `json:"type"`
	TS      string           `json:"ts"`
	Payload json.RawMessage  `json:"payload"`
}

type securityMsg struct {
	Ticker        string   `json:"ticker"`
	Tradeable     bool     `json:"tradeable"`
	Kind          string   `json:"kind"`
	Strike        *float64 `json:"strike"`
	StartingPrice float64  `json:"starting_price"`
}

type registrationMsg struct {
	Securities []securityMsg `json:"securities"`
}

type quoteMsg struct {
	Ticker    string             `json:"ticker"`
	LastPrice float64            `json:"last_price"`
	Bids      map[string]float64 `json:"bids"`
	Asks      map[string]float64 `json:"asks"`
}

type tradeMsg struct {
	Trades []models.TradePrint `json:"trades"`
}

type portfolioMsg struct {
	Positions  map[string]int64   `json:"positions"`
	OpenOrders []models.OpenOrder `json:"open_orders"`
}

// DecodeEvent parses the JSON envelope into a validated event.
func DecodeEvent(b []byte) (models.Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}
	if len(env.Payload) == 0 {
		return models.Event{}, fmt.Errorf("%w: %s without payload", models.ErrInvalidEvent, env.Type)
	}

	ev := models.Event{Type: env.Type}
	if t, ok := util.ParseTime(env.TS); ok {
		ev.ReceivedAt = t
	}

	var err error
	switch env.Type {
	case models.EventRegistration:
		var m registrationMsg
		if err = json.Unmarshal(env.Payload, &m); err == nil {
			ev.Registration, err = m.toModel()
		}
	case models.EventQuoteUpdate:
		var m quoteMsg
		if err = json.Unmarshal(env.Payload, &m); err == nil {
			ev.Quote, err = m.toModel()
		}
	case models.EventTrade:
		var m tradeMsg
		if err = json.Unmarshal(env.Payload, &m); err == nil {
			ev.Trades = m.Trades
		}
	case models.EventPortfolioUpdate:
		var m portfolioMsg
		if err = json.Unmarshal(env.Payload, &m); err == nil {
			ev.Portfolio = &models.PortfolioUpdate{Positions: m.Positions, OpenOrders: m.OpenOrders}
		}
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: %s: %v", models.ErrInvalidEvent, env.Type, err)
	}
	if err := ev.Validate(); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func (m registrationMsg) toModel() (*models.Registration, error) {
	r := &models.Registration{Securities: make([]models.SecuritySpec, 0, len(m.Securities))}
	for _, s := range m.Securities {
		spec := models.SecuritySpec{
			Ticker:        s.Ticker,
			Tradeable:     s.Tradeable,
			Strike:        s.Strike,
			StartingPrice: s.StartingPrice,
		}
		if s.Kind != "" {
			k, err := models.ParseKind(s.Kind)
			if err != nil {
				return nil, err
			}
			spec.Kind = k
		}
		r.Securities = append(r.Securities, spec)
	}
	return r, nil
}

func (m quoteMsg) toModel() (*models.QuoteUpdate, error) {
	bids, err := util.ParseLevels(m.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := util.ParseLevels(m.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &models.QuoteUpdate{Ticker: m.Ticker, LastPrice: m.LastPrice, Bids: bids, Asks: asks}, nil
}

var _ pkgkafka.MessageHandler = (*KafkaEventsHandler)(nil)
