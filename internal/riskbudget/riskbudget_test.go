package riskbudget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/marketdata"
	"github.com/quantsmith/backcast/internal/params"
	helpers "github.com/quantsmith/backcast/internal/testing"
)

func newBudgetState(t *testing.T, decisions map[string]domain.TradeDecision) *graph.State {
	t.Helper()
	st := graph.NewState(helpers.Day(t, "2024-03-04"), []string{"AAPL"},
		domain.NewPortfolio(100000, 0.5, []string{"AAPL"}),
		map[string]float64{"AAPL": 100}, nil, true)
	st.Decisions = decisions
	return st
}

func TestBudgeterRequiresDecisions(t *testing.T) {
	b := New(params.Default(), helpers.DisabledLogger())
	st := newBudgetState(t, nil)
	st.Decisions = nil

	err := b.Run(context.Background(), st)
	assert.ErrorContains(t, err, "without portfolio manager decisions")
}

func TestBudgeterResizesOpens(t *testing.T) {
	t.Run("buy shrinks to the final risk budget", func(t *testing.T) {
		b := New(params.Default(), helpers.DisabledLogger())
		st := newBudgetState(t, map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 50, Confidence: 100, Reasoning: "x"},
		})
		require.NoError(t, b.Run(context.Background(), st))

		// base = 0.02 * 100/100 = 2%, no bars so vol adj 1.0, no regime.
		// floor(0.02 * 100000 / 100) = 20 shares.
		entry := st.RiskBudgets["AAPL"]
		assert.InDelta(t, 0.02, entry.FinalRiskPct, 0.0001)
		assert.InDelta(t, 1.0, entry.VolatilityAdjustment, 0.0001)
		assert.Equal(t, 20, st.Decisions["AAPL"].Quantity)
	})

	t.Run("low confidence clamps to the risk floor", func(t *testing.T) {
		b := New(params.Default(), helpers.DisabledLogger())
		st := newBudgetState(t, map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionShort, Quantity: 50, Confidence: 10, Reasoning: "x"},
		})
		require.NoError(t, b.Run(context.Background(), st))

		// base = 0.02 * 0.10 = 0.2%, clamped up to the 0.5% floor.
		entry := st.RiskBudgets["AAPL"]
		assert.InDelta(t, 0.005, entry.FinalRiskPct, 0.0001)
		assert.Equal(t, 5, st.Decisions["AAPL"].Quantity)
	})

	t.Run("regime multiplier dampens sizing", func(t *testing.T) {
		b := New(params.Default(), helpers.DisabledLogger())
		st := newBudgetState(t, map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 50, Confidence: 100, Reasoning: "x"},
		})
		st.MarketRegime = map[string]domain.RegimeEntry{
			"AAPL": {Regime: domain.RegimeVolatile, RiskMultiplier: 0.8},
		}
		require.NoError(t, b.Run(context.Background(), st))

		entry := st.RiskBudgets["AAPL"]
		assert.InDelta(t, 0.016, entry.FinalRiskPct, 0.0001)
		assert.Equal(t, 16, st.Decisions["AAPL"].Quantity)
	})

	t.Run("never grows a smaller open", func(t *testing.T) {
		b := New(params.Default(), helpers.DisabledLogger())
		st := newBudgetState(t, map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 3, Confidence: 100, Reasoning: "x"},
		})
		require.NoError(t, b.Run(context.Background(), st))
		assert.Equal(t, 3, st.Decisions["AAPL"].Quantity)
	})

	t.Run("sizing to zero degrades to hold", func(t *testing.T) {
		b := New(params.Default(), helpers.DisabledLogger())
		st := newBudgetState(t, map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 50, Confidence: 100, Reasoning: "x"},
		})
		st.Prices["AAPL"] = 5000 // one share exceeds the whole budget
		require.NoError(t, b.Run(context.Background(), st))

		dec := st.Decisions["AAPL"]
		assert.Equal(t, domain.ActionHold, dec.Action)
		assert.Contains(t, dec.Reasoning, "sizes to zero shares")
	})
}

func TestBudgeterPassesClosesThrough(t *testing.T) {
	b := New(params.Default(), helpers.DisabledLogger())
	st := newBudgetState(t, map[string]domain.TradeDecision{
		"AAPL": {Action: domain.ActionSell, Quantity: 500, Confidence: 60, Reasoning: "x"},
	})
	require.NoError(t, b.Run(context.Background(), st))

	assert.Equal(t, 500, st.Decisions["AAPL"].Quantity, "closes are never resized")
	assert.NotZero(t, st.RiskBudgets["AAPL"].FinalRiskPct, "budget still recorded")
}

func TestBudgeterHoldGetsZeroBudget(t *testing.T) {
	b := New(params.Default(), helpers.DisabledLogger())
	st := newBudgetState(t, map[string]domain.TradeDecision{
		"AAPL": domain.HoldDecision(50, "no edge"),
	})
	require.NoError(t, b.Run(context.Background(), st))

	entry := st.RiskBudgets["AAPL"]
	assert.Zero(t, entry.FinalRiskPct)
	assert.Equal(t, "hold decision, zero risk budget", entry.Reasoning)
}

func TestVolatilityAdjustmentBands(t *testing.T) {
	db, cleanup := helpers.NewTestDB(t, "prices")
	t.Cleanup(cleanup)
	store, err := marketdata.NewBarStore(db, helpers.DisabledLogger())
	require.NoError(t, err)

	// Wild 4-bar oscillation: ATR far above 3% of price.
	noisy := helpers.Bars(helpers.Day(t, "2024-01-01"), helpers.OscillatingCloses(40, 100, 10, 4))
	helpers.InsertBars(t, db, "NOISY", noisy)
	// Flat tape: ATR well under 1% of price.
	quiet := helpers.Bars(helpers.Day(t, "2024-01-01"), helpers.FlatCloses(40, 100))
	helpers.InsertBars(t, db, "QUIET", quiet)

	cache := marketdata.NewPriceCache(store, helpers.DisabledLogger())
	b := New(params.Default(), helpers.DisabledLogger())

	st := graph.NewState(helpers.Day(t, "2024-02-23"), []string{"NOISY", "QUIET"},
		domain.NewPortfolio(100000, 0.5, []string{"NOISY", "QUIET"}),
		map[string]float64{"NOISY": 100, "QUIET": 100}, cache, true)

	assert.InDelta(t, 0.5, b.volatilityAdjustment(st, "NOISY"), 0.001, "noisy names size down hard")
	quietAdj := b.volatilityAdjustment(st, "QUIET")
	assert.Greater(t, quietAdj, 1.0, "quiet names size up")
	assert.LessOrEqual(t, quietAdj, 1.25)
}
