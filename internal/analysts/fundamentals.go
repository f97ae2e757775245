// Package analysts implements the five core signal producers and the
// deterministic fundamentals proxy they fall back to when external data
// sources are unplugged.
package analysts

import (
	"fmt"
	"math"
	"time"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/marketdata"
	"github.com/quantsmith/backcast/pkg/formulas"
)

// Metrics is the reduced fundamentals view the composite analysts score.
// Values are either genuine reported figures (from an external provider) or
// price-derived proxies in deterministic mode.
type Metrics struct {
	GrowthRate      float64 // annualized revenue/price growth, fraction
	EarningsGrowth  float64 // annualized earnings/price growth, fraction
	Quality         float64 // [0, 1] return stability / profitability proxy
	BalanceSheet    float64 // [0, 1] leverage / drawdown-resilience proxy
	EarningsQuality float64 // [0, 1] consistency of positive periods
	ValuationMargin float64 // (intrinsic - price) / price
	MarketCapProxy  float64 // price * volume scale, ordering only
	PEGProxy        float64 // valuation-to-growth sanity ratio
}

// FundamentalsProvider supplies metrics for a ticker as of a date. External
// network-backed providers implement this interface; the engine only ships
// the deterministic price proxy.
type FundamentalsProvider interface {
	Metrics(ticker string, date time.Time) (Metrics, error)
}

// PriceProxyProvider derives every metric from cached bars alone. It is the
// canonical fallback in deterministic mode and the module-boundary guard the
// composites use when external sources are unavailable.
type PriceProxyProvider struct {
	cache        *marketdata.PriceCache
	lookbackDays int
}

// NewPriceProxyProvider creates a proxy provider over the price cache.
func NewPriceProxyProvider(cache *marketdata.PriceCache) *PriceProxyProvider {
	return &PriceProxyProvider{
		cache:        cache,
		lookbackDays: 400, // calendar days, targets ~252 trading bars
	}
}

// Metrics computes price-derived proxies. Requires at least 60 bars of
// history; fewer is a data gap the caller turns into a neutral signal.
func (p *PriceProxyProvider) Metrics(ticker string, date time.Time) (Metrics, error) {
	start := date.AddDate(0, 0, -p.lookbackDays)
	bars, err := p.cache.Range(ticker, start, date)
	if err != nil {
		return Metrics{}, err
	}
	if len(bars) < 60 {
		return Metrics{}, fmt.Errorf("ticker %s: %d bars on or before %s, need 60 for fundamentals proxy",
			ticker, len(bars), date.Format("2006-01-02"))
	}

	closes := domain.Closes(bars)
	returns := formulas.CalculateReturns(closes)
	last := closes[len(closes)-1]

	// Annualized price growth stands in for revenue growth.
	n := float64(len(closes))
	growth := math.Pow(last/closes[0], 252.0/n) - 1
	growth = clampFloat(growth, -0.75, 2.0)

	// Earnings growth proxy: growth over the most recent half-window,
	// annualized. More reactive than the full-window figure.
	half := closes[len(closes)/2:]
	earningsGrowth := math.Pow(last/half[0], 252.0/float64(len(half))) - 1
	earningsGrowth = clampFloat(earningsGrowth, -0.75, 2.0)

	// Quality: inverse annualized volatility. A stock with 60%+ vol scores 0.
	vol := formulas.AnnualizedVolatility(returns)
	quality := clampFloat(1-vol/0.60, 0, 1)

	// Balance-sheet resilience: inverse max drawdown. A 50% drawdown scores 0.
	dd := formulas.MaxDrawdown(closes)
	balance := clampFloat(1+dd/0.50, 0, 1)

	// Earnings quality: fraction of positive 20-bar rolling returns.
	earningsQuality := positiveWindowFraction(closes, 20)

	// Intrinsic value proxy: long moving average drifted by conservative
	// growth. Margin is how far price sits below it.
	maLen := 200
	if len(closes) < maLen {
		maLen = len(closes)
	}
	ma := formulas.Mean(closes[len(closes)-maLen:])
	intrinsic := ma * (1 + clampFloat(growth, -0.20, 0.20))
	margin := intrinsic/last - 1

	// PEG-style sanity: price premium over the long average per unit of growth.
	premium := last/ma - 1
	peg := 0.0
	if growth > 0.01 {
		peg = premium / growth
	}

	avgVolume := 0.0
	for _, b := range bars {
		avgVolume += b.Volume
	}
	avgVolume /= float64(len(bars))

	return Metrics{
		GrowthRate:      growth,
		EarningsGrowth:  earningsGrowth,
		Quality:         quality,
		BalanceSheet:    balance,
		EarningsQuality: earningsQuality,
		ValuationMargin: margin,
		MarketCapProxy:  last * avgVolume,
		PEGProxy:        peg,
	}, nil
}

// positiveWindowFraction returns the share of rolling `window`-bar returns
// that are positive.
func positiveWindowFraction(closes []float64, window int) float64 {
	if len(closes) <= window {
		return 0.5
	}
	positive := 0
	total := 0
	for i := window; i < len(closes); i++ {
		if closes[i-window] > 0 {
			total++
			if closes[i] > closes[i-window] {
				positive++
			}
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(positive) / float64(total)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
