package marketdata

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
)

// ErrDataUnavailable is returned when no bar exists on or before the
// requested date. Callers treat this as per-ticker data unavailability, never
// as an engine failure.
var ErrDataUnavailable = errors.New("no price data available")

// PriceCache is the deterministic OHLCV lookup layer. Bars load lazily per
// ticker from the store on first access and are immutable afterwards, so the
// cache is free for concurrent reads across analyst goroutines.
type PriceCache struct {
	store *BarStore
	log   zerolog.Logger

	mu   sync.RWMutex
	bars map[string][]domain.Bar
}

// NewPriceCache creates a cache over the given store.
func NewPriceCache(store *BarStore, log zerolog.Logger) *PriceCache {
	return &PriceCache{
		store: store,
		log:   log.With().Str("component", "price_cache").Logger(),
		bars:  make(map[string][]domain.Bar),
	}
}

// Bar returns the bar for ticker on the exact date, or the nearest previous
// bar when the date falls on a weekend or holiday. Returns ErrDataUnavailable
// only when no bar on or before the date exists.
func (c *PriceCache) Bar(ticker string, date time.Time) (domain.Bar, error) {
	bars, err := c.load(ticker)
	if err != nil {
		return domain.Bar{}, err
	}

	// A date with no clock component covers the whole day, so intraday data
	// resolves to the last bar of that day.
	cutoff := endOfDay(date)

	idx := sort.Search(len(bars), func(i int) bool {
		return bars[i].Date.After(cutoff)
	})
	if idx == 0 {
		return domain.Bar{}, fmt.Errorf("%w: ticker %s on or before %s",
			ErrDataUnavailable, ticker, date.Format("2006-01-02"))
	}
	return bars[idx-1], nil
}

// Range returns all bars with start <= timestamp <= end in order. A midnight
// end boundary includes the whole final day for intraday data.
func (c *PriceCache) Range(ticker string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := c.load(ticker)
	if err != nil {
		return nil, err
	}

	cutoff := endOfDay(end)

	lo := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(start)
	})
	hi := sort.Search(len(bars), func(i int) bool {
		return bars[i].Date.After(cutoff)
	})
	if lo >= hi {
		return nil, nil
	}

	out := make([]domain.Bar, hi-lo)
	copy(out, bars[lo:hi])
	return out, nil
}

// HasData reports whether any bar exists for the ticker on or before date.
func (c *PriceCache) HasData(ticker string, date time.Time) bool {
	_, err := c.Bar(ticker, date)
	return err == nil
}

// load fetches a ticker's bars from the store on first access.
func (c *PriceCache) load(ticker string) ([]domain.Bar, error) {
	c.mu.RLock()
	bars, ok := c.bars[ticker]
	c.mu.RUnlock()
	if ok {
		return bars, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bars, ok := c.bars[ticker]; ok {
		return bars, nil
	}

	bars, err := c.store.LoadTicker(ticker)
	if err != nil {
		return nil, err
	}

	// The store only holds validated rows, but a cheap re-check at the trust
	// boundary keeps a corrupted database from reaching the analysts.
	if err := domain.ValidateBarSeries(ticker, bars); err != nil {
		return nil, fmt.Errorf("corrupt bar store: %w", err)
	}

	c.bars[ticker] = bars
	c.log.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("Loaded ticker into cache")
	return bars, nil
}

// endOfDay extends a midnight boundary to the last instant of that day.
// Timestamps with a clock component pass through unchanged.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}
