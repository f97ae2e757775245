package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolioNAV(t *testing.T) {
	t.Run("cash only", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, []string{"AAPL"})
		assert.InDelta(t, 100000, p.NAV(map[string]float64{"AAPL": 150}), 0.01)
	})

	t.Run("long positions mark to market", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, []string{"AAPL"})
		p.Cash = 85000
		p.Positions["AAPL"] = &Position{LongShares: 100, LongCostBasis: 150}

		// 85k cash + 100 * 160.
		assert.InDelta(t, 101000, p.NAV(map[string]float64{"AAPL": 160}), 0.01)
	})

	t.Run("short positions carry buy-back liability", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, []string{"TSLA"})
		// Short 10 @ 200: proceeds 2000 land in cash, margin 1000 reserved.
		p.Cash = 100000 + 2000 - 1000
		p.MarginUsed = 1000
		p.Positions["TSLA"] = &Position{ShortShares: 10, ShortCostBasis: 200, ShortMarginUsed: 1000}

		// Flat price: NAV unchanged.
		assert.InDelta(t, 100000, p.NAV(map[string]float64{"TSLA": 200}), 0.01)
		// Price drops 20: short gains 200.
		assert.InDelta(t, 100200, p.NAV(map[string]float64{"TSLA": 180}), 0.01)
	})

	t.Run("missing mark falls back to cost basis", func(t *testing.T) {
		p := NewPortfolio(50000, 0.5, []string{"MSFT"})
		p.Cash = 20000
		p.Positions["MSFT"] = &Position{LongShares: 100, LongCostBasis: 300}
		assert.InDelta(t, 50000, p.NAV(map[string]float64{}), 0.01)
	})
}

func TestPortfolioExposures(t *testing.T) {
	p := NewPortfolio(100000, 0.5, []string{"AAPL", "TSLA"})
	p.Positions["AAPL"] = &Position{LongShares: 100}
	p.Positions["TSLA"] = &Position{ShortShares: 50}
	prices := map[string]float64{"AAPL": 100, "TSLA": 200}

	assert.InDelta(t, 20000, p.GrossExposure(prices), 0.01)
	assert.InDelta(t, 0, p.NetExposure(prices), 0.01)
	assert.InDelta(t, 10000, p.TickerExposure("AAPL", 100), 0.01)
	assert.InDelta(t, -10000, p.TickerExposure("TSLA", 200), 0.01)
}

func TestPortfolioClone(t *testing.T) {
	p := NewPortfolio(100000, 0.5, []string{"AAPL"})
	p.Positions["AAPL"] = &Position{LongShares: 10, LongCostBasis: 100}

	c := p.Clone()
	c.Cash = 1
	c.Positions["AAPL"].LongShares = 99

	assert.InDelta(t, 100000, p.Cash, 0.01)
	assert.Equal(t, 10, p.Positions["AAPL"].LongShares)
}

func TestPortfolioCheckInvariants(t *testing.T) {
	t.Run("fresh portfolio passes", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, []string{"AAPL"})
		assert.NoError(t, p.CheckInvariants())
	})

	t.Run("negative shares fail", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, nil)
		p.Positions["AAPL"] = &Position{LongShares: -1}
		assert.Error(t, p.CheckInvariants())
	})

	t.Run("basis without shares fails", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, nil)
		p.Positions["AAPL"] = &Position{LongCostBasis: 50}
		assert.Error(t, p.CheckInvariants())
	})

	t.Run("negative margin fails", func(t *testing.T) {
		p := NewPortfolio(100000, 0.5, nil)
		p.MarginUsed = -1
		assert.Error(t, p.CheckInvariants())
	})
}
