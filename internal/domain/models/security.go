package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a tradeable instrument.
type Kind string

const (
	KindCall   Kind = "call"
	KindPut    Kind = "put"
	KindFuture Kind = "future"
)

// FutureTicker is the conventional ticker of the underlying future.
const FutureTicker = "TMXFUT"

// ParseKind accepts the long names plus the single-letter suffixes used in tickers.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return KindCall, nil
	case "put", "p":
		return KindPut, nil
	case "future", "underlying-future", "underlying", "fut", "f":
		return KindFuture, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, s)
}

// IsOption reports whether the kind is a call or a put.
func (k Kind) IsOption() bool { return k == KindCall || k == KindPut }

// Security is the immutable description of an instrument, fixed at registration.
type Security struct {
	Ticker         string  `json:"ticker"`
	Kind           Kind    `json:"kind"`
	Strike         float64 `json:"strike,omitempty"`
	ReferencePrice float64 `json:"reference_price"`
	StartingPrice  float64 `json:"starting_price"`
	Tradeable      bool    `json:"tradeable"`
}

func (s Security) IsOption() bool { return s.Kind.IsOption() }
func (s Security) IsCall() bool   { return s.Kind == KindCall }

// SecuritySpec is one entry of a registration event.
type SecuritySpec struct {
	Ticker        string
	Tradeable     bool
	Kind          Kind
	Strike        *float64
	StartingPrice float64
}

// ParseTicker derives kind and strike from exchange tickers such as "T100C",
// "T95P" or "TMXFUT".
func ParseTicker(ticker string) (Kind, float64, error) {
	if ticker == FutureTicker || strings.HasSuffix(ticker, "FUT") {
		return KindFuture, 0, nil
	}
	if len(ticker) < 3 {
		return "", 0, fmt.Errorf("%w: ticker %q too short", ErrInvalidEvent, ticker)
	}
	kind, err := ParseKind(ticker[len(ticker)-1:])
	if err != nil || !kind.IsOption() {
		return "", 0, fmt.Errorf("%w: ticker %q has no option suffix", ErrInvalidEvent, ticker)
	}
	strike, err := strconv.ParseFloat(ticker[1:len(ticker)-1], 64)
	if err != nil || strike <= 0 {
		return "", 0, fmt.Errorf("%w: ticker %q has no strike", ErrInvalidEvent, ticker)
	}
	return kind, strike, nil
}

// Resolve fills kind and strike from the ticker when the event omitted them
// and checks that options carry a positive strike.
func (s SecuritySpec) Resolve() (Kind, float64, error) {
	if s.Ticker == "" {
		return "", 0, fmt.Errorf("%w: empty ticker", ErrInvalidEvent)
	}
	if s.StartingPrice < 0 {
		return "", 0, fmt.Errorf("%w: negative starting price for %s", ErrInvalidEvent, s.Ticker)
	}
	kind := s.Kind
	if kind == "" {
		k, strike, err := ParseTicker(s.Ticker)
		if err != nil {
			return "", 0, err
		}
		if s.Strike != nil && k.IsOption() {
			strike = *s.Strike
		}
		return k, strike, nil
	}
	if !kind.IsOption() {
		return KindFuture, 0, nil
	}
	if s.Strike != nil {
		if *s.Strike <= 0 {
			return "", 0, fmt.Errorf("%w: non-positive strike for %s", ErrInvalidEvent, s.Ticker)
		}
		return kind, *s.Strike, nil
	}
	_, strike, err := ParseTicker(s.Ticker)
	if err != nil {
		return "", 0, fmt.Errorf("%w: option %s needs a strike", ErrInvalidEvent, s.Ticker)
	}
	return kind, strike, nil
}
