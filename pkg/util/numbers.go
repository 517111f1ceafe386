package util

import (
	"fmt"
	"math"
	"strconv"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseFloatDefault parses a finite float or returns def.
func ParseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// ParseLevels converts a JSON price->size object, whose keys arrive as
// strings, into a float keyed map.
func ParseLevels(in map[string]float64) (map[float64]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[float64]float64, len(in))
	for k, size := range in {
		price, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return nil, fmt.Errorf("price level %q: %w", k, err)
		}
		out[price] += size
	}
	return out, nil
}
