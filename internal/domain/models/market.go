package models

// Greeks holds first and second order sensitivities. Per-unit or scaled by a
// quantity depending on context.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
}

// Scale returns the Greeks multiplied by q.
func (g Greeks) Scale(q float64) Greeks {
	return Greeks{Delta: g.Delta * q, Gamma: g.Gamma * q, Vega: g.Vega * q}
}

// FutureGreeks are the per-unit Greeks of the underlying future.
var FutureGreeks = Greeks{Delta: 1}

// BookSummary condenses one side-pair of an order book snapshot.
type BookSummary struct {
	MeanBid float64 `json:"mean_bid"`
	MinBid  float64 `json:"min_bid"`
	MaxBid  float64 `json:"max_bid"`
	MeanAsk float64 `json:"mean_ask"`
	MinAsk  float64 `json:"min_ask"`
	MaxAsk  float64 `json:"max_ask"`
	HasBids bool    `json:"has_bids"`
	HasAsks bool    `json:"has_asks"`
}

// Spread is mean ask minus mean bid. ok is false when either side is empty.
func (b BookSummary) Spread() (spread float64, ok bool) {
	if !b.HasBids || !b.HasAsks {
		return 0, false
	}
	return b.MeanAsk - b.MeanBid, true
}

// SecurityState is a point-in-time copy of the rolling state of one security.
type SecurityState struct {
	Security      Security    `json:"security"`
	LastPrice     float64     `json:"last_price"`
	PriceHistory  []float64   `json:"price_history"`
	SpreadHistory []float64   `json:"spread_history"`
	ImpliedVol    float64     `json:"implied_vol"`
	IVHistory     []float64   `json:"iv_history"`
	Book          BookSummary `json:"book"`
	Intrinsic     float64     `json:"intrinsic"`
}

// RollingStats carries one value per available price sample.
type RollingStats struct {
	Window        int       `json:"window"`
	K             float64   `json:"k"`
	MovingAverage []float64 `json:"moving_average"`
	Std           []float64 `json:"std"`
	UpperBand     []float64 `json:"upper_band"`
	LowerBand     []float64 `json:"lower_band"`
}
