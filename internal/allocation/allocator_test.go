package allocation

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

func newAllocState(t *testing.T, prices map[string]float64,
	decisions map[string]domain.TradeDecision) *graph.State {
	t.Helper()
	tickers := make([]string, 0, len(prices))
	for ticker := range prices {
		tickers = append(tickers, ticker)
	}
	st := graph.NewState(helpers.Day(t, "2024-03-04"), tickers,
		domain.NewPortfolio(100000, 0.5, tickers), prices, nil, true)
	st.Decisions = decisions
	return st
}

// looseParams disables every cap except the one under test.
func looseParams() *params.Params {
	p := params.Default()
	p.Allocator.MaxGross = 100
	p.Allocator.MaxNet = 100
	p.Allocator.MaxSector = 100
	return p
}

func runAllocator(t *testing.T, p *params.Params, st *graph.State) {
	t.Helper()
	a := New(p, helpers.DisabledLogger())
	require.NoError(t, a.Run(context.Background(), st))
	require.NotNil(t, st.FinalDecisions)
	require.NotNil(t, st.Constraints)
}

func TestAllocatorRequiresDecisions(t *testing.T) {
	a := New(params.Default(), helpers.DisabledLogger())
	st := newAllocState(t, map[string]float64{"AAPL": 100}, nil)
	st.Decisions = nil
	assert.ErrorContains(t, a.Run(context.Background(), st), "without risk-sized decisions")
}

func TestAllocatorPassThrough(t *testing.T) {
	st := newAllocState(t, map[string]float64{"AAPL": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 20, Confidence: 70, Reasoning: "x"},
		})
	runAllocator(t, params.Default(), st)

	assert.Equal(t, 20, st.FinalDecisions["AAPL"].Quantity, "small open fits every cap")
	assert.InDelta(t, 1.0, st.Constraints.GrossScale, 0.001)
	assert.InDelta(t, 1.0, st.Constraints.NetScale, 0.001)
	assert.Empty(t, st.Constraints.SectorScales)
}

func TestAllocatorGrossCap(t *testing.T) {
	p := looseParams()
	p.Allocator.MaxGross = 0.5 // 50k on a 100k book

	st := newAllocState(t, map[string]float64{"AAPL": 100, "MSFT": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 400, Confidence: 70, Reasoning: "x"},
			"MSFT": {Action: domain.ActionBuy, Quantity: 400, Confidence: 70, Reasoning: "x"},
		})
	runAllocator(t, p, st)

	// 80k of opens against a 50k cap: every open scales by 0.625.
	assert.InDelta(t, 0.625, st.Constraints.GrossScale, 0.001)
	assert.Equal(t, 250, st.FinalDecisions["AAPL"].Quantity)
	assert.Equal(t, 250, st.FinalDecisions["MSFT"].Quantity)
	assert.Contains(t, st.FinalDecisions["AAPL"].Reasoning, "gross cap")
	assert.LessOrEqual(t, st.Constraints.GrossAfter, 0.5*100000+1)
}

func TestAllocatorGrossCapFullBook(t *testing.T) {
	// Existing exposure already at the cap: new opens degrade to hold.
	p := looseParams()
	p.Allocator.MaxGross = 0.5

	st := newAllocState(t, map[string]float64{"AAPL": 100, "MSFT": 100},
		map[string]domain.TradeDecision{
			"MSFT": {Action: domain.ActionBuy, Quantity: 100, Confidence: 70, Reasoning: "x"},
		})
	st.Portfolio.Position("AAPL").LongShares = 600 // 60k existing
	st.Portfolio.Cash = 40000                      // keep NAV at 100k

	runAllocator(t, p, st)

	dec := st.FinalDecisions["MSFT"]
	assert.Equal(t, domain.ActionHold, dec.Action)
	assert.Contains(t, dec.Reasoning, "scaled to zero")
}

func TestAllocatorNetCap(t *testing.T) {
	p := looseParams()
	p.Allocator.MaxNet = 0.2 // 20k on a 100k book

	st := newAllocState(t, map[string]float64{"AAPL": 100, "MSFT": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 400, Confidence: 70, Reasoning: "x"},
			"MSFT": {Action: domain.ActionShort, Quantity: 100, Confidence: 70, Reasoning: "x"},
		})
	runAllocator(t, p, st)

	// Net +30k against a 20k cap: the long side scales by 0.75, shorts stand.
	assert.InDelta(t, 0.75, st.Constraints.NetScale, 0.001)
	assert.Equal(t, 300, st.FinalDecisions["AAPL"].Quantity)
	assert.Equal(t, 100, st.FinalDecisions["MSFT"].Quantity)
	assert.Contains(t, st.FinalDecisions["AAPL"].Reasoning, "net cap")
}

func TestAllocatorSectorCap(t *testing.T) {
	p := looseParams()
	p.Allocator.MaxSector = 0.3 // 30k on a 100k book
	p.Sectors = map[string]string{"AAPL": "tech", "MSFT": "tech", "XOM": "energy"}

	st := newAllocState(t, map[string]float64{"AAPL": 100, "MSFT": 100, "XOM": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionBuy, Quantity: 250, Confidence: 70, Reasoning: "x"},
			"MSFT": {Action: domain.ActionBuy, Quantity: 250, Confidence: 70, Reasoning: "x"},
			"XOM":  {Action: domain.ActionBuy, Quantity: 100, Confidence: 70, Reasoning: "x"},
		})
	runAllocator(t, p, st)

	// Tech opens 50k against a 30k cap scale by 0.6; energy is untouched.
	assert.InDelta(t, 0.6, st.Constraints.SectorScales["tech"], 0.001)
	assert.Equal(t, 150, st.FinalDecisions["AAPL"].Quantity)
	assert.Equal(t, 150, st.FinalDecisions["MSFT"].Quantity)
	assert.Equal(t, 100, st.FinalDecisions["XOM"].Quantity)
	assert.NotContains(t, st.Constraints.SectorScales, "energy")
}

func TestAllocatorCorrelationCap(t *testing.T) {
	db, cleanup := helpers.NewTestDB(t, "prices")
	t.Cleanup(cleanup)
	store, err := marketdata.NewBarStore(db, helpers.DisabledLogger())
	require.NoError(t, err)

	// Two tickers on the exact same oscillation: correlation 1.0.
	closes := helpers.OscillatingCloses(80, 100, 5, 10)
	start := helpers.Day(t, "2024-01-01")
	helpers.InsertBars(t, db, "AAPL", helpers.Bars(start, closes))
	helpers.InsertBars(t, db, "MSFT", helpers.Bars(start, closes))
	cache := marketdata.NewPriceCache(store, helpers.DisabledLogger())

	st := graph.NewState(helpers.Day(t, "2024-06-03"), []string{"AAPL", "MSFT"},
		domain.NewPortfolio(100000, 0.5, []string{"AAPL", "MSFT"}),
		map[string]float64{"AAPL": 100, "MSFT": 100}, cache, true)
	st.Decisions = map[string]domain.TradeDecision{
		"AAPL": {Action: domain.ActionBuy, Quantity: 30, Confidence: 70, Reasoning: "x"},
		"MSFT": {Action: domain.ActionBuy, Quantity: 20, Confidence: 70, Reasoning: "x"},
	}

	runAllocator(t, looseParams(), st)

	// The smaller notional of the pair is halved.
	assert.Equal(t, 30, st.FinalDecisions["AAPL"].Quantity)
	assert.Equal(t, 10, st.FinalDecisions["MSFT"].Quantity)
	assert.Contains(t, st.FinalDecisions["MSFT"].Reasoning, "correlation")
	require.Len(t, st.Constraints.CorrelationCuts, 1)
	assert.Contains(t, st.Constraints.CorrelationCuts[0], "MSFT/AAPL")
}

func TestAllocatorClosesAlwaysPass(t *testing.T) {
	p := looseParams()
	p.Allocator.MaxGross = 0.1 // tighter than the existing book

	st := newAllocState(t, map[string]float64{"AAPL": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: domain.ActionSell, Quantity: 5000, Confidence: 70, Reasoning: "x"},
		})
	st.Portfolio.Position("AAPL").LongShares = 5000

	runAllocator(t, p, st)
	assert.Equal(t, 5000, st.FinalDecisions["AAPL"].Quantity, "closes are never scaled")
}

func TestAllocatorRejectsMalformedDecision(t *testing.T) {
	a := New(params.Default(), helpers.DisabledLogger())
	st := newAllocState(t, map[string]float64{"AAPL": 100},
		map[string]domain.TradeDecision{
			"AAPL": {Action: "yolo", Quantity: 10, Confidence: 70, Reasoning: "x"},
		})
	err := a.Run(context.Background(), st)
	assert.ErrorContains(t, err, "malformed decision")
}
