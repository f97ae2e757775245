package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// ValueAnalyst scores tickers on five weighted sub-factors: valuation margin,
// quality, balance-sheet strength, earnings quality, and conservative growth.
//
// Bullish when the composite ratio exceeds 0.7 with a margin of safety above
// 0.2; bearish when the ratio falls under 0.4 or the margin under -0.2.
type ValueAnalyst struct {
	provider FundamentalsProvider
	proxy    *PriceProxyProvider
	log      zerolog.Logger
}

// NewValueAnalyst creates the value composite. provider may be nil, in which
// case the price proxy serves every request.
func NewValueAnalyst(provider FundamentalsProvider, proxy *PriceProxyProvider, log zerolog.Logger) *ValueAnalyst {
	return &ValueAnalyst{
		provider: provider,
		proxy:    proxy,
		log:      log.With().Str("analyst", params.AnalystValue).Logger(),
	}
}

func (a *ValueAnalyst) Name() string     { return params.AnalystValue }
func (a *ValueAnalyst) Kind() graph.Kind { return graph.KindCore }
func (a *ValueAnalyst) Deps() []string   { return nil }

// Run produces one signal per requested ticker, falling back to neutral-50 on
// any data gap.
func (a *ValueAnalyst) Run(ctx context.Context, st *graph.State) error {
	signals := make(domain.TickerSignals, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := resolveMetrics(a.provider, a.proxy, st, ticker, st.Date)
		if err != nil {
			signals[ticker] = domain.NeutralSignal(fmt.Sprintf("no fundamentals for %s: %v", ticker, err))
			continue
		}
		signals[ticker] = a.score(m)
	}

	return st.PublishSignals(a.Name(), signals)
}

func (a *ValueAnalyst) score(m Metrics) domain.Signal {
	factors := []subFactor{
		{name: "valuation margin", weight: 0.30, score: clampFloat(5+25*m.ValuationMargin, 0, 10), maxScore: 10},
		{name: "quality", weight: 0.25, score: 10 * m.Quality, maxScore: 10},
		{name: "balance sheet", weight: 0.20, score: 10 * m.BalanceSheet, maxScore: 10},
		{name: "earnings quality", weight: 0.15, score: 10 * m.EarningsQuality, maxScore: 10},
		// Conservative growth peaks for steady single-digit expansion and
		// penalizes both shrinkage and speculative spikes.
		{name: "conservative growth", weight: 0.10, score: clampFloat(10-40*absFloat(m.GrowthRate-0.08), 0, 10), maxScore: 10},
	}

	ratio := weightedRatio(factors)
	margin := m.ValuationMargin

	direction := domain.DirectionNeutral
	switch {
	case ratio > 0.7 && margin > 0.2:
		direction = domain.DirectionBullish
	case ratio < 0.4 || margin < -0.2:
		direction = domain.DirectionBearish
	}

	confidence := clampInt(int(20+60*(ratio-0.5)), 20, 85)
	confidence += consistencyBonus(factors, ratio)
	confidence = clampInt(confidence, 0, 100)

	return domain.Signal{
		Direction:  direction,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("composite ratio %.2f, margin of safety %.2f (%s)",
			ratio, margin, factorSummary(factors)),
		Extra: map[string]float64{
			"ratio":            ratio,
			"margin_of_safety": margin,
		},
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
