package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI calculates the Relative Strength Index
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Average Gain / Average Loss over N periods
//
// Returns the current RSI value (0-100) or nil if insufficient data.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

// CalculateRSISeries calculates the full RSI series for the given closes.
// Leading values that cannot be computed are NaN, matching talib semantics.
func CalculateRSISeries(closes []float64, length int) []float64 {
	if len(closes) < length+1 {
		return nil
	}
	return talib.Rsi(closes, length)
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
