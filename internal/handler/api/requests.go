package api

// StatsRequest selects the rolling window of /api/securities/:ticker/stats.
type StatsRequest struct {
	Ticker         string  `param:"ticker" validate:"required"`
	Window         int     `query:"window" default:"10" validate:"gte=2,lte=1000"`
	K              float64 `query:"k" default:"2" validate:"gt=0,lte=10"`
	PeriodsPerYear float64 `query:"periods_per_year" default:"1" validate:"gt=0"`
}

type AlertsRequest struct {
	Limit int `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

// IVRequest solves implied volatility for an observed option price. A zero
// expiry means the live session time to expiry.
type IVRequest struct {
	Price  float64 `query:"price" validate:"required,gt=0"`
	Spot   float64 `query:"spot" default:"100" validate:"gt=0"`
	Strike float64 `query:"strike" validate:"required,gt=0"`
	Expiry float64 `query:"expiry" validate:"gte=0"`
	Rate   float64 `query:"rate"`
	Kind   string  `query:"kind" default:"call" validate:"oneof=call put"`
}

// GreeksRequest prices one option unit. A zero expiry means the live
// session time to expiry.
type GreeksRequest struct {
	Spot   float64 `query:"spot" default:"100" validate:"gt=0"`
	Strike float64 `query:"strike" validate:"required,gt=0"`
	Expiry float64 `query:"expiry" validate:"gte=0"`
	Rate   float64 `query:"rate"`
	Vol    float64 `query:"vol" validate:"required,gt=0,lte=10"`
	Kind   string  `query:"kind" default:"call" validate:"oneof=call put"`
}
