package domain

import "time"

// PerformanceSnapshot is the rolling metrics block attached to each daily row.
type PerformanceSnapshot struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	Sharpe         float64 `json:"sharpe"`
	Sortino        float64 `json:"sortino"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	GrossExposure  float64 `json:"gross_exposure"`
	NetExposure    float64 `json:"net_exposure"`
}

// DailyRow is one day's valuation snapshot, recorded by the driver after the
// execution phase. Rows are append-only: past rows are never edited.
type DailyRow struct {
	Date           time.Time                `json:"date"`
	PortfolioValue float64                  `json:"portfolio_value"`
	Cash           float64                  `json:"cash"`
	Exposures      map[string]float64       `json:"exposures"` // ticker -> signed notional
	Decisions      map[string]TradeDecision `json:"decisions"`
	ExecutedTrades []ExecutedTrade          `json:"executed_trades"`
	Performance    PerformanceSnapshot      `json:"performance"`
}
