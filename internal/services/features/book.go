package features

import (
	"maps"
	"slices"

	"OptEdge/internal/domain/models"
)

// SummarizeBook reduces price->size maps to mean/min/max prices per side.
// Sizes are ignored; only the quoted price levels matter.
func SummarizeBook(bids, asks map[float64]float64) models.BookSummary {
	var b models.BookSummary
	b.MeanBid, b.MinBid, b.MaxBid, b.HasBids = levelStats(bids)
	b.MeanAsk, b.MinAsk, b.MaxAsk, b.HasAsks = levelStats(asks)
	return b
}

func levelStats(levels map[float64]float64) (mean, lowest, highest float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, 0, false
	}
	prices := slices.Sorted(maps.Keys(levels))
	return Mean(prices), prices[0], prices[len(prices)-1], true
}
