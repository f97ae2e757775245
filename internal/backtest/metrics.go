package backtest

import (
	"math"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/pkg/formulas"
)

const tradingDaysPerYear = 252

// Metrics is the run-level performance block of the summary.
type Metrics struct {
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	Sharpe              float64 `json:"sharpe"`
	Sortino             float64 `json:"sortino"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	WinRatePct          float64 `json:"win_rate_pct"`
	WinLossRatio        float64 `json:"win_loss_ratio"`
}

// ComputeMetrics builds the run metrics from the daily value series and the
// realized per-ticker round trips.
func ComputeMetrics(values []float64, riskFreeRate float64, realized map[string]domain.RealizedGains) Metrics {
	m := Metrics{}
	if len(values) == 0 {
		return m
	}

	first, last := values[0], values[len(values)-1]
	if first > 0 {
		m.TotalReturnPct = (last - first) / first * 100
	}
	if first > 0 && len(values) > 1 {
		years := float64(len(values)) / tradingDaysPerYear
		if years > 0 && last > 0 {
			m.AnnualizedReturnPct = (math.Pow(last/first, 1/years) - 1) * 100
		}
	}

	returns := formulas.CalculateReturns(values)
	m.Sharpe = sharpe(returns, riskFreeRate)
	m.Sortino = sortino(returns, riskFreeRate)
	m.MaxDrawdownPct = formulas.MaxDrawdown(values) * 100

	wins, losses, winSum, lossSum := 0, 0, 0.0, 0.0
	for _, rg := range realized {
		for _, pnl := range []float64{rg.Long, rg.Short} {
			if pnl > 0 {
				wins++
				winSum += pnl
			} else if pnl < 0 {
				losses++
				lossSum += -pnl
			}
		}
	}
	if wins+losses > 0 {
		m.WinRatePct = float64(wins) / float64(wins+losses) * 100
	}
	if lossSum > 0 {
		m.WinLossRatio = winSum / lossSum
	} else if winSum > 0 {
		m.WinLossRatio = math.Inf(1)
	}

	return m
}

// Snapshot builds the per-day rolling performance block for a daily row.
func Snapshot(values []float64, riskFreeRate, gross, net float64) domain.PerformanceSnapshot {
	snap := domain.PerformanceSnapshot{
		GrossExposure: gross,
		NetExposure:   net,
	}
	if len(values) == 0 {
		return snap
	}
	if values[0] > 0 {
		snap.TotalReturnPct = (values[len(values)-1] - values[0]) / values[0] * 100
	}
	returns := formulas.CalculateReturns(values)
	snap.Sharpe = sharpe(returns, riskFreeRate)
	snap.Sortino = sortino(returns, riskFreeRate)
	snap.MaxDrawdownPct = formulas.MaxDrawdown(values) * 100
	return snap
}

func sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFreeRate)
	sd := formulas.StdDev(excess)
	if sd == 0 {
		return 0
	}
	return formulas.Mean(excess) / sd * math.Sqrt(tradingDaysPerYear)
}

func sortino(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFreeRate)

	downside := 0.0
	for _, r := range excess {
		if r < 0 {
			downside += r * r
		}
	}
	downside = math.Sqrt(downside / float64(len(excess)))
	if downside == 0 {
		return 0
	}
	return formulas.Mean(excess) / downside * math.Sqrt(tradingDaysPerYear)
}

func excessReturns(returns []float64, riskFreeRate float64) []float64 {
	daily := riskFreeRate / tradingDaysPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - daily
	}
	return out
}
