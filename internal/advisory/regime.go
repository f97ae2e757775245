// Package advisory implements the context-publishing agents: the market
// regime classifier and the performance auditor. Advisory agents never emit
// trade direction; their outputs occupy dedicated state slots.
package advisory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
	"github.com/quantsmith/backcast/pkg/formulas"
)

// RegimeAgentName is the regime classifier's node identifier.
const RegimeAgentName = "market_regime"

const regimeMinBars = 50

// regimeWeightTable is the fixed per-regime weight and risk-multiplier table.
var regimeWeightTable = map[domain.Regime]domain.RegimeEntry{
	domain.RegimeTrending: {
		Regime:         domain.RegimeTrending,
		Weights:        domain.RegimeWeights{Momentum: 1.5, MeanReversion: 0.5},
		RiskMultiplier: 1.0,
	},
	domain.RegimeMeanReverting: {
		Regime:         domain.RegimeMeanReverting,
		Weights:        domain.RegimeWeights{Momentum: 0.5, MeanReversion: 1.5},
		RiskMultiplier: 0.9,
	},
	domain.RegimeVolatile: {
		Regime:         domain.RegimeVolatile,
		Weights:        domain.RegimeWeights{Momentum: 0.7, MeanReversion: 0.7},
		RiskMultiplier: 0.8,
	},
	domain.RegimeCalm: {
		Regime:         domain.RegimeCalm,
		Weights:        domain.RegimeWeights{Momentum: 1.0, MeanReversion: 1.0},
		RiskMultiplier: 1.0,
	},
}

// RegimeClassifier classifies each ticker's market regime from trend strength
// (ADX), volatility, RSI oscillation, and directional consistency, and
// publishes the per-regime weight adjustments the portfolio manager applies
// to the momentum and mean-reversion lanes.
type RegimeClassifier struct {
	log zerolog.Logger
}

// NewRegimeClassifier creates the regime classifier.
func NewRegimeClassifier(log zerolog.Logger) *RegimeClassifier {
	return &RegimeClassifier{
		log: log.With().Str("component", "regime_classifier").Logger(),
	}
}

func (r *RegimeClassifier) Name() string     { return RegimeAgentName }
func (r *RegimeClassifier) Kind() graph.Kind { return graph.KindAdvisory }

// Deps orders the classifier after the technical analysts so the tier
// boundary matches the published pipeline: the regime entry must exist before
// the portfolio manager reads it, and the technicals must not see it.
func (r *RegimeClassifier) Deps() []string {
	return []string{params.AnalystMomentum, params.AnalystMeanReversion}
}

// Run classifies every ticker and writes state.MarketRegime. Tickers without
// enough history fall back to calm with unit weights.
func (r *RegimeClassifier) Run(ctx context.Context, st *graph.State) error {
	out := make(map[string]domain.RegimeEntry, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := st.Date.AddDate(0, 0, -3*regimeMinBars)
		bars, err := st.Cache.Range(ticker, start, st.Date)
		if err != nil || len(bars) < regimeMinBars {
			out[ticker] = domain.NeutralRegimeEntry(fmt.Sprintf(
				"%s: need %d bars for regime classification, have %d", ticker, regimeMinBars, len(bars)))
			continue
		}

		out[ticker] = r.classify(bars)
	}

	st.MarketRegime = out
	return nil
}

func (r *RegimeClassifier) classify(bars []domain.Bar) domain.RegimeEntry {
	highs, lows, closes := domain.HighsLowsCloses(bars)

	adx := 0.0
	if v := formulas.CalculateADX(highs, lows, closes, 14); v != nil {
		adx = *v
	}

	// 20-day annualized volatility as a fraction of price.
	recent := closes
	if len(recent) > 21 {
		recent = recent[len(recent)-21:]
	}
	vol := formulas.AnnualizedVolatility(formulas.CalculateReturns(recent))

	// RSI oscillation: how widely RSI(14) swings over the window.
	rsiOsc := 0.0
	if series := formulas.CalculateRSISeries(closes, 14); series != nil {
		valid := series[14:]
		rsiOsc = formulas.StdDev(valid)
	}

	consistency := directionalConsistency(closes, 20)

	regime := domain.RegimeCalm
	switch {
	case adx > 25 && consistency > 0.6:
		regime = domain.RegimeTrending
	case vol > 0.15:
		regime = domain.RegimeVolatile
	case adx < 20 && rsiOsc > 10:
		regime = domain.RegimeMeanReverting
	case vol < 0.05:
		regime = domain.RegimeCalm
	}

	entry := regimeWeightTable[regime]
	entry.Reasoning = fmt.Sprintf("%s: ADX14 %.1f, vol %.1f%%, RSI osc %.1f, consistency %.2f",
		regime, adx, vol*100, rsiOsc, consistency)
	return entry
}

// directionalConsistency measures how one-sided the last `window` daily moves
// were: 1.0 means every day moved the same direction, 0 means an even split.
func directionalConsistency(closes []float64, window int) float64 {
	if len(closes) < window+1 {
		return 0
	}
	tail := closes[len(closes)-window-1:]
	ups := 0
	downs := 0
	for i := 1; i < len(tail); i++ {
		if tail[i] > tail[i-1] {
			ups++
		} else if tail[i] < tail[i-1] {
			downs++
		}
	}
	total := ups + downs
	if total == 0 {
		return 0
	}
	major := ups
	if downs > major {
		major = downs
	}
	// Scale so an even split is 0 and total one-sidedness is 1.
	return 2*float64(major)/float64(total) - 1
}
