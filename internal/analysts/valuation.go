package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// ValuationAnalyst compares price to a discounted intrinsic-value estimate.
// The full DCF path is an external collaborator; under the engine's signal
// contract it reduces to the gap between the metrics' intrinsic value proxy
// and the current price.
type ValuationAnalyst struct {
	provider FundamentalsProvider
	proxy    *PriceProxyProvider
	log      zerolog.Logger
}

// NewValuationAnalyst creates the valuation analyst.
func NewValuationAnalyst(provider FundamentalsProvider, proxy *PriceProxyProvider, log zerolog.Logger) *ValuationAnalyst {
	return &ValuationAnalyst{
		provider: provider,
		proxy:    proxy,
		log:      log.With().Str("analyst", params.AnalystValuation).Logger(),
	}
}

func (a *ValuationAnalyst) Name() string     { return params.AnalystValuation }
func (a *ValuationAnalyst) Kind() graph.Kind { return graph.KindCore }
func (a *ValuationAnalyst) Deps() []string   { return nil }

// Run produces one signal per requested ticker, falling back to neutral-50 on
// any data gap.
func (a *ValuationAnalyst) Run(ctx context.Context, st *graph.State) error {
	signals := make(domain.TickerSignals, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := resolveMetrics(a.provider, a.proxy, st, ticker, st.Date)
		if err != nil {
			signals[ticker] = domain.NeutralSignal(fmt.Sprintf("no valuation inputs for %s: %v", ticker, err))
			continue
		}
		signals[ticker] = a.score(m)
	}

	return st.PublishSignals(a.Name(), signals)
}

func (a *ValuationAnalyst) score(m Metrics) domain.Signal {
	// Growth-adjusted gap: quality discounts the raw margin so a volatile
	// name needs a wider gap to read as mispriced.
	gap := m.ValuationMargin * (0.5 + 0.5*m.Quality)

	direction := domain.DirectionNeutral
	switch {
	case gap > 0.15:
		direction = domain.DirectionBullish
	case gap < -0.15:
		direction = domain.DirectionBearish
	}

	confidence := clampInt(50+int(150*absFloat(gap)), 35, 85)
	if direction == domain.DirectionNeutral {
		confidence = clampInt(confidence, 35, 60)
	}

	return domain.Signal{
		Direction:  direction,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("intrinsic gap %.1f%% (raw margin %.1f%%, quality %.2f)",
			gap*100, m.ValuationMargin*100, m.Quality),
		Extra: map[string]float64{
			"gap": gap,
		},
	}
}
