package testing

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/database"
	"github.com/quantsmith/backcast/internal/domain"
)

// DisabledLogger returns a logger that discards everything.
func DisabledLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// Day parses a YYYY-MM-DD date in UTC, failing the test on bad input.
func Day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		t.Fatalf("Invalid fixture date %q: %v", s, err)
	}
	return d
}

// Bars builds a valid daily bar series from a close sequence, one bar per
// business day starting at start. Open/high/low are derived so every OHLC
// invariant holds.
func Bars(start time.Time, closes []float64) []domain.Bar {
	bars := make([]domain.Bar, 0, len(closes))
	date := start
	for _, c := range closes {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
		open := c * 0.998
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   open,
			High:   math.Max(open, c) * 1.005,
			Low:    math.Min(open, c) * 0.995,
			Close:  c,
			Volume: 10000,
		})
		date = date.AddDate(0, 0, 1)
	}
	return bars
}

// TrendingCloses generates n closes compounding at dailyGain per bar.
func TrendingCloses(n int, start, dailyGain float64) []float64 {
	closes := make([]float64, n)
	v := start
	for i := range closes {
		closes[i] = v
		v *= 1 + dailyGain
	}
	return closes
}

// OscillatingCloses generates n closes swinging around base with the given
// amplitude and period in bars.
func OscillatingCloses(n int, base, amplitude float64, period int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return closes
}

// FlatCloses generates n identical closes.
func FlatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

// InsertBars writes a bar series straight into the store's bars table,
// bypassing CSV import. The schema must already be applied.
func InsertBars(t *testing.T, db *database.DB, ticker string, bars []domain.Bar) {
	t.Helper()
	for _, b := range bars {
		_, err := db.Conn().Exec(`
			INSERT INTO bars (ticker, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ticker, b.Date.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			t.Fatalf("Failed to insert fixture bar %s/%s: %v", ticker, b.Date, err)
		}
	}
}
