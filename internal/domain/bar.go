// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV price bar. Bars may be daily or intraday;
// intraday bars carry a full timestamp.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the OHLC invariants for a single bar:
// high >= max(open, close, low), low <= min(open, close, high),
// all prices positive, volume non-negative.
func (b Bar) Validate() error {
	if b.Date.IsZero() {
		return fmt.Errorf("bar has zero date")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s has non-positive price (o=%.4f h=%.4f l=%.4f c=%.4f)",
			b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s has negative volume %.2f", b.Date.Format("2006-01-02"), b.Volume)
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return fmt.Errorf("bar %s violates high >= max(open, close, low)", b.Date.Format("2006-01-02"))
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("bar %s violates low <= min(open, close)", b.Date.Format("2006-01-02"))
	}
	return nil
}

// ValidateBarSeries checks an ordered bar sequence for a single ticker:
// per-bar OHLC invariants, strictly monotonic timestamps, no duplicates.
func ValidateBarSeries(ticker string, bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("ticker %s bar %d: %w", ticker, i, err)
		}
		if i > 0 {
			prev := bars[i-1]
			if !b.Date.After(prev.Date) {
				if b.Date.Equal(prev.Date) {
					return fmt.Errorf("ticker %s: duplicate timestamp %s", ticker, b.Date.Format(time.RFC3339))
				}
				return fmt.Errorf("ticker %s: non-monotonic dates at index %d (%s after %s)",
					ticker, i, b.Date.Format(time.RFC3339), prev.Date.Format(time.RFC3339))
			}
		}
	}
	return nil
}

// Closes extracts the close series from a bar sequence.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// HighsLowsCloses extracts the high, low and close series from a bar sequence.
func HighsLowsCloses(bars []Bar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return highs, lows, closes
}
