package models

import "time"

// Position is the tracked holding of one security. It is never removed; a
// zero quantity leaves it dormant.
type Position struct {
	Ticker     string    `json:"ticker"`
	Kind       Kind      `json:"kind"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	Greeks     Greeks    `json:"greeks"`
	CashFlow   float64   `json:"cash_flow"`
	Fills      int64     `json:"fills"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p Position) Dormant() bool { return p.Quantity == 0 }

// PortfolioRisk is a read view of the aggregate exposure.
type PortfolioRisk struct {
	Greeks     Greeks  `json:"greeks"`
	Cash       float64 `json:"cash"`
	// TradeCount only grows; reversing a fill does not restore it.
	TradeCount int64   `json:"trade_count"`
	Options    int64   `json:"options_exposure"`
	Futures    int64   `json:"futures_exposure"`
}

// LimitStatus is the result of comparing aggregate exposure with maxima.
type LimitStatus struct {
	DeltaBreached bool    `json:"delta_breached"`
	VegaBreached  bool    `json:"vega_breached"`
	Delta         float64 `json:"delta"`
	Vega          float64 `json:"vega"`
	DeltaMax      float64 `json:"delta_max"`
	VegaMax       float64 `json:"vega_max"`
}

func (s LimitStatus) Any() bool { return s.DeltaBreached || s.VegaBreached }
