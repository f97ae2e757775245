package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateADX calculates the Average Directional Index, a measure of trend
// strength regardless of direction. Values above 25 indicate a strong trend.
//
// Requires high/low/close series of equal length with at least 2*length+1 bars.
// Returns the current ADX value or nil if insufficient data.
func CalculateADX(highs, lows, closes []float64, length int) *float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return nil
	}
	if len(closes) < 2*length+1 {
		return nil
	}

	adx := talib.Adx(highs, lows, closes, length)

	if len(adx) > 0 && !isNaN(adx[len(adx)-1]) {
		result := adx[len(adx)-1]
		return &result
	}

	return nil
}

// CalculateATR calculates the Average True Range, the standard volatility
// measure used for position sizing.
//
// Returns the current ATR value or nil if insufficient data.
func CalculateATR(highs, lows, closes []float64, length int) *float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return nil
	}
	if len(closes) < length+1 {
		return nil
	}

	atr := talib.Atr(highs, lows, closes, length)

	if len(atr) > 0 && !isNaN(atr[len(atr)-1]) {
		result := atr[len(atr)-1]
		return &result
	}

	return nil
}
