// Package manager implements the portfolio manager: the first system agent,
// which fuses the core analysts' signals into one sized trade decision per
// ticker using the configured weights, the regime weight adjustments, and the
// audited credibility scores.
package manager

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/advisory"
	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// AgentName is the portfolio manager's node identifier.
const AgentName = "portfolio_manager"

// PortfolioManager fuses analyst signals into provisional trade decisions.
// Output quantities are sized at the maximum risk budget; the risk budget
// agent resizes them down to the final per-trade risk.
type PortfolioManager struct {
	params *params.Params
	log    zerolog.Logger
}

// New creates the portfolio manager.
func New(p *params.Params, log zerolog.Logger) *PortfolioManager {
	return &PortfolioManager{
		params: p,
		log:    log.With().Str("component", "portfolio_manager").Logger(),
	}
}

func (m *PortfolioManager) Name() string     { return AgentName }
func (m *PortfolioManager) Kind() graph.Kind { return graph.KindSystem }

// Deps lists every upstream producer: the five core analysts plus both
// advisory agents. The manager is the pipeline's first fan-in point.
func (m *PortfolioManager) Deps() []string {
	return append(params.CoreAnalysts(), advisory.RegimeAgentName, advisory.AuditorAgentName)
}

// Run decides one action per ticker and writes state.Decisions.
func (m *PortfolioManager) Run(ctx context.Context, st *graph.State) error {
	decisions := make(map[string]domain.TradeDecision, len(st.Tickers))
	nav := st.Portfolio.NAV(st.Prices)

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		decisions[ticker] = m.decide(st, ticker, nav)
	}

	st.Decisions = decisions
	return nil
}

// fusion is the weighted aggregate of one ticker's signals.
type fusion struct {
	net        float64 // weighted direction sum in [-1, 1]
	confidence float64 // weight-averaged confidence
	bulls      int
	bears      int
	neutrals   int
	momMult    float64
	mrMult     float64
}

func (m *PortfolioManager) decide(st *graph.State, ticker string, nav float64) domain.TradeDecision {
	price, hasPrice := st.Prices[ticker]
	if !hasPrice || price <= 0 {
		return domain.HoldDecision(100, fmt.Sprintf("%s: no price for today, only hold is possible", ticker))
	}

	f := m.fuse(st, ticker)
	pos := st.Portfolio.Position(ticker)
	threshold := m.params.Manager.NetThreshold

	switch {
	case f.net > threshold && f.bulls > 0:
		return m.bullishDecision(st, ticker, pos, price, nav, f)
	case f.net < -threshold && f.bears > 0:
		return m.bearishDecision(st, ticker, pos, price, nav, f)
	default:
		return domain.HoldDecision(confidenceInt(f.confidence),
			fmt.Sprintf("net score %.3f inside ±%.2f band (%s)", f.net, threshold, f.summary()))
	}
}

// fuse computes the weighted net direction and confidence for one ticker.
// Weights start from the configured table, the momentum and mean-reversion
// lanes scale by the regime entry, and every lane scales by floored
// credibility before renormalizing.
func (m *PortfolioManager) fuse(st *graph.State, ticker string) fusion {
	f := fusion{momMult: 1.0, mrMult: 1.0}

	if entry, ok := st.MarketRegime[ticker]; ok {
		f.momMult = entry.Weights.Momentum
		f.mrMult = entry.Weights.MeanReversion
	}

	totalWeight := 0.0
	weightedSign := 0.0
	weightedConf := 0.0

	for _, analyst := range params.CoreAnalysts() {
		signals := st.SignalsFor(analyst)
		if signals == nil {
			continue // strategy failure left this slot empty
		}
		sig, ok := signals[ticker]
		if !ok {
			continue
		}

		w := m.params.AnalystWeights[analyst]
		switch analyst {
		case params.AnalystMomentum:
			w *= f.momMult
		case params.AnalystMeanReversion:
			w *= f.mrMult
		}
		if m.params.Manager.UseCredibility {
			cred, ok := st.AgentCredibility[analyst]
			if !ok {
				cred = 0.5
			}
			w *= math.Max(cred, m.params.Manager.CredibilityFloor)
		}
		if w <= 0 {
			continue
		}

		totalWeight += w
		weightedSign += w * sig.Direction.Sign()
		weightedConf += w * float64(sig.Confidence)

		switch sig.Direction {
		case domain.DirectionBullish:
			f.bulls++
		case domain.DirectionBearish:
			f.bears++
		default:
			f.neutrals++
		}
	}

	if totalWeight > 0 {
		f.net = weightedSign / totalWeight
		f.confidence = weightedConf / totalWeight
	} else {
		f.confidence = 50
	}
	return f
}

func (m *PortfolioManager) bullishDecision(st *graph.State, ticker string, pos *domain.Position,
	price, nav float64, f fusion) domain.TradeDecision {
	// Close the short book before opening longs.
	if pos.ShortShares > 0 {
		return domain.TradeDecision{
			Action:     domain.ActionCover,
			Quantity:   pos.ShortShares,
			Confidence: confidenceInt(f.confidence),
			Reasoning:  fmt.Sprintf("bullish net %.3f against open short, covering (%s)", f.net, f.summary()),
		}
	}

	qty := m.provisionalQty(nav, price)
	if cashCap := int(st.Portfolio.Cash / price); cashCap < qty {
		qty = cashCap
	}
	if qty <= 0 {
		// Hold is the only permitted action, so the decision is certain.
		return domain.HoldDecision(100,
			fmt.Sprintf("bullish net %.3f but no buying capacity (%s)", f.net, f.summary()))
	}
	return domain.TradeDecision{
		Action:     domain.ActionBuy,
		Quantity:   qty,
		Confidence: confidenceInt(f.confidence),
		Reasoning:  fmt.Sprintf("bullish net %.3f (%s)", f.net, f.summary()),
	}
}

func (m *PortfolioManager) bearishDecision(st *graph.State, ticker string, pos *domain.Position,
	price, nav float64, f fusion) domain.TradeDecision {
	// Close the long book before opening shorts.
	if pos.LongShares > 0 {
		return domain.TradeDecision{
			Action:     domain.ActionSell,
			Quantity:   pos.LongShares,
			Confidence: confidenceInt(f.confidence),
			Reasoning:  fmt.Sprintf("bearish net %.3f against open long, selling (%s)", f.net, f.summary()),
		}
	}

	qty := m.provisionalQty(nav, price)
	if st.Portfolio.MarginRequirement > 0 {
		marginCap := int(st.Portfolio.AvailableMargin() / (st.Portfolio.MarginRequirement * price))
		if marginCap < qty {
			qty = marginCap
		}
	}
	if qty <= 0 {
		// Hold is the only permitted action, so the decision is certain.
		return domain.HoldDecision(100,
			fmt.Sprintf("bearish net %.3f but no shorting capacity (%s)", f.net, f.summary()))
	}
	return domain.TradeDecision{
		Action:     domain.ActionShort,
		Quantity:   qty,
		Confidence: confidenceInt(f.confidence),
		Reasoning:  fmt.Sprintf("bearish net %.3f (%s)", f.net, f.summary()),
	}
}

// provisionalQty sizes an open at the maximum risk budget. The risk budget
// agent shrinks it to the final per-trade risk afterwards.
func (m *PortfolioManager) provisionalQty(nav, price float64) int {
	if nav <= 0 || price <= 0 {
		return 0
	}
	return int(math.Floor(m.params.Risk.MaxRiskPct * nav / price))
}

func (f fusion) summary() string {
	return fmt.Sprintf("%d bull / %d bear / %d neutral, regime mult mom %.1fx mr %.1fx",
		f.bulls, f.bears, f.neutrals, f.momMult, f.mrMult)
}

func confidenceInt(c float64) int {
	v := int(math.Round(c))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
