package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// momentumLookback is the return window in bars.
const momentumLookback = 20

// MomentumAnalyst signals on the 20-day price return: bullish above +2%,
// bearish below -2%, strong beyond ±5%.
type MomentumAnalyst struct {
	log zerolog.Logger
}

// NewMomentumAnalyst creates the momentum analyst.
func NewMomentumAnalyst(log zerolog.Logger) *MomentumAnalyst {
	return &MomentumAnalyst{
		log: log.With().Str("analyst", params.AnalystMomentum).Logger(),
	}
}

func (a *MomentumAnalyst) Name() string     { return params.AnalystMomentum }
func (a *MomentumAnalyst) Kind() graph.Kind { return graph.KindCore }
func (a *MomentumAnalyst) Deps() []string   { return nil }

// Run produces one signal per requested ticker. Fewer than 21 bars of history
// is a data gap and falls back to neutral-50.
func (a *MomentumAnalyst) Run(ctx context.Context, st *graph.State) error {
	signals := make(domain.TickerSignals, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := st.Date.AddDate(0, 0, -3*momentumLookback)
		bars, err := st.Cache.Range(ticker, start, st.Date)
		if err != nil || len(bars) < momentumLookback+1 {
			signals[ticker] = domain.NeutralSignal(fmt.Sprintf(
				"%s: need %d bars for momentum, have %d", ticker, momentumLookback+1, len(bars)))
			continue
		}

		closes := domain.Closes(bars)
		now := closes[len(closes)-1]
		then := closes[len(closes)-1-momentumLookback]
		r := (now - then) / then

		signals[ticker] = a.score(r)
	}

	return st.PublishSignals(a.Name(), signals)
}

func (a *MomentumAnalyst) score(r float64) domain.Signal {
	direction := domain.DirectionNeutral
	strength := ""
	switch {
	case r > 0.05:
		direction = domain.DirectionBullish
		strength = "strong "
	case r > 0.02:
		direction = domain.DirectionBullish
	case r < -0.05:
		direction = domain.DirectionBearish
		strength = "strong "
	case r < -0.02:
		direction = domain.DirectionBearish
	}

	confidence := clampInt(50+int(500*absFloat(r)), 50, 85)

	return domain.Signal{
		Direction:  direction,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("%s%d-day return %.2f%%", strength, momentumLookback, r*100),
		Extra: map[string]float64{
			"return_20d": r,
		},
	}
}
