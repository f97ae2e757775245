package domain

import "fmt"

// Position holds the long and short books for a single ticker.
// When LongShares is zero, LongCostBasis is zero; same for the short side.
type Position struct {
	LongShares      int     `json:"long_shares"`
	LongCostBasis   float64 `json:"long_cost_basis"`
	ShortShares     int     `json:"short_shares"`
	ShortCostBasis  float64 `json:"short_cost_basis"`
	ShortMarginUsed float64 `json:"short_margin_used"`
}

// IsFlat reports whether the position has no open shares on either side.
func (p Position) IsFlat() bool {
	return p.LongShares == 0 && p.ShortShares == 0
}

// RealizedGains tracks realized P&L per ticker, split by side.
type RealizedGains struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
}

// Portfolio is the accounting state mutated by the trade executor.
// It is owned by the backtest driver and is single-writer.
type Portfolio struct {
	Cash              float64                  `json:"cash"`
	MarginRequirement float64                  `json:"margin_requirement"` // [0, 1]
	MarginUsed        float64                  `json:"margin_used"`
	Positions         map[string]*Position     `json:"positions"`
	RealizedGains     map[string]RealizedGains `json:"realized_gains"`
}

// NewPortfolio creates a portfolio with the given starting cash and margin
// requirement, with empty position maps for the given tickers.
func NewPortfolio(initialCash, marginRequirement float64, tickers []string) *Portfolio {
	p := &Portfolio{
		Cash:              initialCash,
		MarginRequirement: marginRequirement,
		Positions:         make(map[string]*Position, len(tickers)),
		RealizedGains:     make(map[string]RealizedGains, len(tickers)),
	}
	for _, t := range tickers {
		p.Positions[t] = &Position{}
		p.RealizedGains[t] = RealizedGains{}
	}
	return p
}

// Position returns the position for a ticker, creating an empty one on first use.
func (p *Portfolio) Position(ticker string) *Position {
	pos, ok := p.Positions[ticker]
	if !ok {
		pos = &Position{}
		p.Positions[ticker] = pos
	}
	return pos
}

// NAV computes net asset value against a price snapshot: cash plus reserved
// margin, plus marked-to-market long value, minus the marked-to-market short
// liability. Short proceeds sit in cash, so the open short is carried as a
// buy-back liability at the current price.
func (p *Portfolio) NAV(prices map[string]float64) float64 {
	nav := p.Cash + p.MarginUsed
	for ticker, pos := range p.Positions {
		price, ok := prices[ticker]
		if !ok {
			// No mark available: fall back to cost basis.
			nav += float64(pos.LongShares) * pos.LongCostBasis
			nav -= float64(pos.ShortShares) * pos.ShortCostBasis
			continue
		}
		nav += float64(pos.LongShares) * price
		nav -= float64(pos.ShortShares) * price
	}
	return nav
}

// GrossExposure computes the sum of absolute long and short notionals.
func (p *Portfolio) GrossExposure(prices map[string]float64) float64 {
	gross := 0.0
	for ticker, pos := range p.Positions {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		gross += float64(pos.LongShares) * price
		gross += float64(pos.ShortShares) * price
	}
	return gross
}

// NetExposure computes long notional minus short notional.
func (p *Portfolio) NetExposure(prices map[string]float64) float64 {
	net := 0.0
	for ticker, pos := range p.Positions {
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		net += float64(pos.LongShares) * price
		net -= float64(pos.ShortShares) * price
	}
	return net
}

// TickerExposure computes the signed notional exposure for one ticker.
func (p *Portfolio) TickerExposure(ticker string, price float64) float64 {
	pos, ok := p.Positions[ticker]
	if !ok {
		return 0
	}
	return float64(pos.LongShares)*price - float64(pos.ShortShares)*price
}

// AvailableMargin returns the cash available for new short margin.
func (p *Portfolio) AvailableMargin() float64 {
	return p.Cash
}

// Clone makes a deep copy, used for projected-state computations.
func (p *Portfolio) Clone() *Portfolio {
	out := &Portfolio{
		Cash:              p.Cash,
		MarginRequirement: p.MarginRequirement,
		MarginUsed:        p.MarginUsed,
		Positions:         make(map[string]*Position, len(p.Positions)),
		RealizedGains:     make(map[string]RealizedGains, len(p.RealizedGains)),
	}
	for t, pos := range p.Positions {
		cp := *pos
		out.Positions[t] = &cp
	}
	for t, rg := range p.RealizedGains {
		out.RealizedGains[t] = rg
	}
	return out
}

// CheckInvariants verifies the accounting invariants that must hold between
// trades: non-negative share counts, zeroed cost basis on flat sides,
// non-negative margin.
func (p *Portfolio) CheckInvariants() error {
	if p.MarginRequirement < 0 || p.MarginRequirement > 1 {
		return fmt.Errorf("margin requirement %.4f out of [0, 1]", p.MarginRequirement)
	}
	if p.MarginUsed < 0 {
		return fmt.Errorf("negative margin used %.2f", p.MarginUsed)
	}
	for ticker, pos := range p.Positions {
		if pos.LongShares < 0 || pos.ShortShares < 0 {
			return fmt.Errorf("ticker %s has negative share count", ticker)
		}
		if pos.LongShares == 0 && pos.LongCostBasis != 0 {
			return fmt.Errorf("ticker %s has cost basis %.2f with zero long shares", ticker, pos.LongCostBasis)
		}
		if pos.ShortShares == 0 && pos.ShortCostBasis != 0 {
			return fmt.Errorf("ticker %s has cost basis %.2f with zero short shares", ticker, pos.ShortCostBasis)
		}
		if pos.ShortMarginUsed < 0 {
			return fmt.Errorf("ticker %s has negative short margin", ticker)
		}
	}
	return nil
}
