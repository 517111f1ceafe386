package models

import "time"

// EventType discriminates inbound session events.
type EventType string

const (
	EventRegistration    EventType = "registration"
	EventQuoteUpdate     EventType = "quote_update"
	EventTrade           EventType = "trade"
	EventPortfolioUpdate EventType = "portfolio_update"
)

// Event is one inbound session event. Exactly one payload is set.
type Event struct {
	Type       EventType
	ReceivedAt time.Time

	Registration *Registration
	Quote        *QuoteUpdate
	Trades       []TradePrint
	Portfolio    *PortfolioUpdate
}

type Registration struct {
	Securities []SecuritySpec
}

// QuoteUpdate carries book levels keyed by price with size values.
type QuoteUpdate struct {
	Ticker    string
	LastPrice float64
	Bids      map[float64]float64
	Asks      map[float64]float64
}

type TradePrint struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
}

type PortfolioUpdate struct {
	Positions  map[string]int64
	OpenOrders []OpenOrder
}

// Validate checks the structural shape only; ticker membership is checked by
// the market store.
func (e Event) Validate() error {
	switch e.Type {
	case EventRegistration:
		if e.Registration == nil {
			return errMissing(e.Type)
		}
	case EventQuoteUpdate:
		if e.Quote == nil {
			return errMissing(e.Type)
		}
		if e.Quote.Ticker == "" {
			return wrapInvalid("quote without ticker")
		}
	case EventTrade:
		if len(e.Trades) == 0 {
			return errMissing(e.Type)
		}
	case EventPortfolioUpdate:
		if e.Portfolio == nil {
			return errMissing(e.Type)
		}
	default:
		return wrapInvalid("unknown event type " + string(e.Type))
	}
	return nil
}
