package domain

import "fmt"

// Direction is the trade direction emitted by an analyst for a ticker.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Sign maps bullish/bearish/neutral to +1/-1/0 for weighted fusion.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBullish:
		return 1
	case DirectionBearish:
		return -1
	default:
		return 0
	}
}

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionBullish, DirectionBearish, DirectionNeutral:
		return true
	}
	return false
}

// Signal is an analyst's view on a single ticker.
//
// Extra carries per-analyst metadata (rank, percentile, regime label). It is
// informational only: downstream agents must never let it affect weighting.
type Signal struct {
	Direction  Direction          `json:"direction"`
	Confidence int                `json:"confidence"` // 0..100
	Reasoning  string             `json:"reasoning"`
	Extra      map[string]float64 `json:"extra,omitempty"`
}

// Validate enforces the signal schema: known direction, confidence in [0, 100],
// non-empty reasoning.
func (s Signal) Validate() error {
	if !s.Direction.Valid() {
		return fmt.Errorf("invalid direction %q", s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range [0, 100]", s.Confidence)
	}
	if s.Reasoning == "" {
		return fmt.Errorf("empty reasoning")
	}
	return nil
}

// NeutralSignal builds the canonical data-gap fallback: neutral at confidence 50
// with a reasoning describing the gap.
func NeutralSignal(reason string) Signal {
	if reason == "" {
		reason = "insufficient data"
	}
	return Signal{
		Direction:  DirectionNeutral,
		Confidence: 50,
		Reasoning:  reason,
	}
}

// TickerSignals maps ticker -> Signal for one analyst.
type TickerSignals map[string]Signal

// AnalystSignals maps analyst identifier -> ticker -> Signal. The structure is
// additive: each analyst appends exactly one nested map under its own
// identifier and never touches another analyst's entry.
type AnalystSignals map[string]TickerSignals
