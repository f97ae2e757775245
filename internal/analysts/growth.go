package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// GrowthAnalyst scores tickers on four weighted sub-factors: revenue growth,
// earnings growth, PEG-style valuation sanity, and business simplicity.
// Signals come from the same 0.7/0.4 composite-ratio thresholds as the value
// composite.
type GrowthAnalyst struct {
	provider FundamentalsProvider
	proxy    *PriceProxyProvider
	log      zerolog.Logger
}

// NewGrowthAnalyst creates the growth composite.
func NewGrowthAnalyst(provider FundamentalsProvider, proxy *PriceProxyProvider, log zerolog.Logger) *GrowthAnalyst {
	return &GrowthAnalyst{
		provider: provider,
		proxy:    proxy,
		log:      log.With().Str("analyst", params.AnalystGrowth).Logger(),
	}
}

func (a *GrowthAnalyst) Name() string     { return params.AnalystGrowth }
func (a *GrowthAnalyst) Kind() graph.Kind { return graph.KindCore }
func (a *GrowthAnalyst) Deps() []string   { return nil }

// Run produces one signal per requested ticker, falling back to neutral-50 on
// any data gap.
func (a *GrowthAnalyst) Run(ctx context.Context, st *graph.State) error {
	signals := make(domain.TickerSignals, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := resolveMetrics(a.provider, a.proxy, st, ticker, st.Date)
		if err != nil {
			signals[ticker] = domain.NeutralSignal(fmt.Sprintf("no growth data for %s: %v", ticker, err))
			continue
		}
		signals[ticker] = a.score(m)
	}

	return st.PublishSignals(a.Name(), signals)
}

func (a *GrowthAnalyst) score(m Metrics) domain.Signal {
	// PEG sanity: cheap growth scores high. A PEG proxy above 3 means the
	// price already carries the growth.
	pegScore := 10.0
	if m.PEGProxy > 0 {
		pegScore = clampFloat(10-3*m.PEGProxy, 0, 10)
	} else if m.GrowthRate <= 0.01 {
		pegScore = 2 // no growth to pay for
	}

	// Business simplicity proxy: stable, consistent return streams read as
	// understandable businesses.
	simplicity := clampFloat(0.6*m.Quality+0.4*m.EarningsQuality, 0, 1)

	factors := []subFactor{
		{name: "revenue growth", weight: 0.30, score: clampFloat(5+20*m.GrowthRate, 0, 10), maxScore: 10},
		{name: "earnings growth", weight: 0.25, score: clampFloat(5+20*m.EarningsGrowth, 0, 10), maxScore: 10},
		{name: "peg sanity", weight: 0.25, score: pegScore, maxScore: 10},
		{name: "simplicity", weight: 0.20, score: 10 * simplicity, maxScore: 10},
	}

	ratio := weightedRatio(factors)

	direction := domain.DirectionNeutral
	switch {
	case ratio > 0.7:
		direction = domain.DirectionBullish
	case ratio < 0.4:
		direction = domain.DirectionBearish
	}

	confidence := clampInt(int(20+60*(ratio-0.5)), 20, 85)
	confidence += consistencyBonus(factors, ratio)
	confidence = clampInt(confidence, 0, 100)

	return domain.Signal{
		Direction:  direction,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("growth composite ratio %.2f (%s)",
			ratio, factorSummary(factors)),
		Extra: map[string]float64{
			"ratio":     ratio,
			"peg_proxy": m.PEGProxy,
		},
	}
}
