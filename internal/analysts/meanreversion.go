package analysts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
	"github.com/quantsmith/backcast/pkg/formulas"
)

// meanRevMinBars is the minimum close history for the composite score.
const meanRevMinBars = 50

// MeanReversionAnalyst builds a composite stretch score from RSI(14) and the
// deviations against the 20- and 50-bar moving averages. Each component
// contributes -3..+3 points; the composite fires at |score| >= 4.
type MeanReversionAnalyst struct {
	log zerolog.Logger
}

// NewMeanReversionAnalyst creates the mean-reversion analyst.
func NewMeanReversionAnalyst(log zerolog.Logger) *MeanReversionAnalyst {
	return &MeanReversionAnalyst{
		log: log.With().Str("analyst", params.AnalystMeanReversion).Logger(),
	}
}

func (a *MeanReversionAnalyst) Name() string     { return params.AnalystMeanReversion }
func (a *MeanReversionAnalyst) Kind() graph.Kind { return graph.KindCore }
func (a *MeanReversionAnalyst) Deps() []string   { return nil }

// Run produces one signal per requested ticker. Fewer than 50 bars is a data
// gap and falls back to neutral-50.
func (a *MeanReversionAnalyst) Run(ctx context.Context, st *graph.State) error {
	signals := make(domain.TickerSignals, len(st.Tickers))

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := st.Date.AddDate(0, 0, -3*meanRevMinBars)
		bars, err := st.Cache.Range(ticker, start, st.Date)
		if err != nil || len(bars) < meanRevMinBars {
			signals[ticker] = domain.NeutralSignal(fmt.Sprintf(
				"%s: need %d bars for mean reversion, have %d", ticker, meanRevMinBars, len(bars)))
			continue
		}

		signals[ticker] = a.score(domain.Closes(bars))
	}

	return st.PublishSignals(a.Name(), signals)
}

func (a *MeanReversionAnalyst) score(closes []float64) domain.Signal {
	price := closes[len(closes)-1]
	score := 0

	// RSI stretch: oversold adds bullish points, overbought bearish.
	rsiPts := 0
	rsiVal := 50.0
	if rsi := formulas.CalculateRSI(closes, 14); rsi != nil {
		rsiVal = *rsi
		switch {
		case rsiVal < 20:
			rsiPts = 3
		case rsiVal < 30:
			rsiPts = 2
		case rsiVal < 40:
			rsiPts = 1
		case rsiVal > 80:
			rsiPts = -3
		case rsiVal > 70:
			rsiPts = -2
		case rsiVal > 60:
			rsiPts = -1
		}
	}
	score += rsiPts

	// Deviation vs MA20: short-horizon stretch.
	ma20Pts := 0
	dev20 := 0.0
	if ma := formulas.CalculateSMA(closes, 20); ma != nil && *ma > 0 {
		dev20 = (price - *ma) / *ma
		ma20Pts = -deviationPoints(dev20, 0.02, 0.05, 0.10)
	}
	score += ma20Pts

	// Deviation vs MA50: wider bands for the slower average.
	ma50Pts := 0
	dev50 := 0.0
	if ma := formulas.CalculateSMA(closes, 50); ma != nil && *ma > 0 {
		dev50 = (price - *ma) / *ma
		ma50Pts = -deviationPoints(dev50, 0.03, 0.08, 0.15)
	}
	score += ma50Pts

	direction := domain.DirectionNeutral
	switch {
	case score >= 4:
		direction = domain.DirectionBullish
	case score <= -4:
		direction = domain.DirectionBearish
	}

	confidence := clampInt(50+8*absInt(score), 0, 85)

	return domain.Signal{
		Direction:  direction,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("reversion score %+d (RSI14 %.1f -> %+d, dev MA20 %.1f%% -> %+d, dev MA50 %.1f%% -> %+d)",
			score, rsiVal, rsiPts, dev20*100, ma20Pts, dev50*100, ma50Pts),
		Extra: map[string]float64{
			"score": float64(score),
			"rsi":   rsiVal,
		},
	}
}

// deviationPoints grades a fractional deviation into 0..±3 points using the
// three band widths. Positive deviation yields positive points; the caller
// negates for contrarian scoring.
func deviationPoints(dev, b1, b2, b3 float64) int {
	abs := absFloat(dev)
	pts := 0
	switch {
	case abs >= b3:
		pts = 3
	case abs >= b2:
		pts = 2
	case abs >= b1:
		pts = 1
	}
	if dev < 0 {
		pts = -pts
	}
	return pts
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
