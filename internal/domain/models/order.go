package models

import (
	"fmt"
	"time"
)

// ActionKind is the outbound action type sent to the exchange adapter.
type ActionKind string

const (
	ActionSubmitBuy  ActionKind = "submit_buy"
	ActionSubmitSell ActionKind = "submit_sell"
	ActionCancel     ActionKind = "cancel"
)

// Rule names the strategy rule that produced an action.
type Rule string

const (
	RuleBollinger   Rule = "bollinger"
	RuleMarketMake  Rule = "market_making"
	RuleStaleCancel Rule = "stale_cancel"
)

// OrderAction is an intended trade or cancel emitted by the signal engine.
type OrderAction struct {
	Kind      ActionKind `json:"action"`
	Ticker    string     `json:"ticker"`
	Quantity  int64      `json:"quantity,omitempty"`
	Price     float64    `json:"price,omitempty"`
	OrderID   string     `json:"order_id,omitempty"`
	Rule      Rule       `json:"rule"`
	Reason    string     `json:"reason,omitempty"`
	Greeks    Greeks     `json:"greeks"`
	CreatedAt time.Time  `json:"created_at"`
}

func (a OrderAction) IsBuy() bool { return a.Kind == ActionSubmitBuy }

func (a OrderAction) String() string {
	if a.Kind == ActionCancel {
		return fmt.Sprintf("%s %s #%s", a.Kind, a.Ticker, a.OrderID)
	}
	return fmt.Sprintf("%s %s %d@%.2f (%s)", a.Kind, a.Ticker, a.Quantity, a.Price, a.Rule)
}

// OpenOrder is a resting order reported by the exchange.
type OpenOrder struct {
	OrderID  string  `json:"order_id"`
	Ticker   string  `json:"ticker"`
	IsBuy    bool    `json:"buy"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}
