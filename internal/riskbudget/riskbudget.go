// Package riskbudget implements the risk budget agent: the second system
// agent, which converts the portfolio manager's confidence into a per-trade
// risk fraction and resizes every opening decision to it.
package riskbudget

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/manager"
	"github.com/quantsmith/backcast/internal/params"
	"github.com/quantsmith/backcast/pkg/formulas"
)

// AgentName is the risk budget agent's node identifier.
const AgentName = "risk_budget"

const atrPeriod = 14

// Budgeter computes final_risk_pct = clamp(base * vol_adj * regime_mult) per
// ticker and shrinks buy/short quantities to floor(final * NAV / price).
// Closing actions pass through untouched.
type Budgeter struct {
	params *params.Params
	log    zerolog.Logger
}

// New creates the risk budget agent.
func New(p *params.Params, log zerolog.Logger) *Budgeter {
	return &Budgeter{
		params: p,
		log:    log.With().Str("component", "risk_budget").Logger(),
	}
}

func (b *Budgeter) Name() string     { return AgentName }
func (b *Budgeter) Kind() graph.Kind { return graph.KindSystem }
func (b *Budgeter) Deps() []string   { return []string{manager.AgentName} }

// Run computes the per-ticker risk budget and resizes opening decisions in
// place. A missing decisions slot is a pipeline contract violation.
func (b *Budgeter) Run(ctx context.Context, st *graph.State) error {
	if st.Decisions == nil {
		return fmt.Errorf("risk budget ran without portfolio manager decisions")
	}

	budgets := make(map[string]domain.RiskBudgetEntry, len(st.Tickers))
	nav := st.Portfolio.NAV(st.Prices)

	for _, ticker := range st.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}

		decision, ok := st.Decisions[ticker]
		if !ok || decision.Action == domain.ActionHold {
			budgets[ticker] = domain.RiskBudgetEntry{
				Reasoning: "hold decision, zero risk budget",
			}
			continue
		}

		entry := b.budget(st, ticker, decision)
		budgets[ticker] = entry

		// Only opens are resized; sells and covers close existing exposure.
		if decision.Action == domain.ActionBuy || decision.Action == domain.ActionShort {
			price := st.Prices[ticker]
			resized := 0
			if price > 0 && nav > 0 {
				resized = int(math.Floor(entry.FinalRiskPct * nav / price))
			}
			if resized < decision.Quantity {
				decision.Quantity = resized
			}
			if decision.Quantity <= 0 {
				decision = domain.HoldDecision(decision.Confidence,
					fmt.Sprintf("risk budget %.2f%% sizes to zero shares", entry.FinalRiskPct*100))
			}
			st.Decisions[ticker] = decision
		}
	}

	st.RiskBudgets = budgets
	return nil
}

func (b *Budgeter) budget(st *graph.State, ticker string, decision domain.TradeDecision) domain.RiskBudgetEntry {
	base := b.params.Risk.BaseRiskFactor * float64(decision.Confidence) / 100

	volAdj := b.volatilityAdjustment(st, ticker)

	regimeMult := 1.0
	if entry, ok := st.MarketRegime[ticker]; ok && entry.RiskMultiplier > 0 {
		regimeMult = entry.RiskMultiplier
	}

	final := base * volAdj * regimeMult
	final = math.Max(b.params.Risk.MinRiskPct, math.Min(b.params.Risk.MaxRiskPct, final))

	return domain.RiskBudgetEntry{
		BaseRiskPct:          base,
		VolatilityAdjustment: volAdj,
		RegimeMultiplier:     regimeMult,
		FinalRiskPct:         final,
		Reasoning: fmt.Sprintf("base %.2f%% x vol adj %.2f x regime %.2f -> %.2f%%",
			base*100, volAdj, regimeMult, final*100),
	}
}

// volatilityAdjustment maps ATR(14) as a fraction of price onto a sizing
// multiplier: quiet names (<1%) size up to 1.25x, noisy names (>3%) size down
// to 0.5x, linear in between. Missing data leaves sizing unchanged.
func (b *Budgeter) volatilityAdjustment(st *graph.State, ticker string) float64 {
	price, ok := st.Prices[ticker]
	if !ok || price <= 0 {
		return 1.0
	}

	start := st.Date.AddDate(0, 0, -3*(atrPeriod+1))
	bars, err := st.Cache.Range(ticker, start, st.Date)
	if err != nil || len(bars) < atrPeriod+1 {
		return 1.0
	}

	highs, lows, closes := domain.HighsLowsCloses(bars)
	atr := formulas.CalculateATR(highs, lows, closes, atrPeriod)
	if atr == nil || *atr <= 0 {
		return 1.0
	}

	atrPct := *atr / price
	switch {
	case atrPct >= 0.03:
		return 0.5
	case atrPct <= 0.01:
		return 1.25
	default:
		return 1.25 - (atrPct-0.01)*(0.75/0.02)
	}
}
