package models

import (
	"fmt"
	"time"
)

type AlertKind string

const (
	AlertLimitBreached  AlertKind = "limit_breached"
	AlertPricingFailure AlertKind = "pricing_failure"
	AlertPositionDrift  AlertKind = "position_drift"
	AlertRoutingFailure AlertKind = "routing_failure"
	AlertOrderBlocked   AlertKind = "order_blocked"
)

// Alert is an entry of the observability stream.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Level   string    `json:"level"`
	Ticker  string    `json:"ticker,omitempty"`
	Greek   string    `json:"greek,omitempty"`
	Value   float64   `json:"value,omitempty"`
	Limit   float64   `json:"limit,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func errMissing(t EventType) error {
	return fmt.Errorf("%w: %s without payload", ErrInvalidEvent, t)
}

func wrapInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, msg)
}
