package domain

import "time"

// Regime is the market regime classification for a ticker.
type Regime string

const (
	RegimeTrending      Regime = "trending"
	RegimeMeanReverting Regime = "mean_reverting"
	RegimeVolatile      Regime = "volatile"
	RegimeCalm          Regime = "calm"
)

// RegimeWeights scale the momentum and mean-reversion analyst weights inside
// the portfolio manager.
type RegimeWeights struct {
	Momentum      float64 `json:"momentum"`
	MeanReversion float64 `json:"mean_reversion"`
}

// RegimeEntry is the Market Regime classifier's per-ticker output. Advisory
// only: it never carries a trade direction.
type RegimeEntry struct {
	Regime         Regime        `json:"regime"`
	Weights        RegimeWeights `json:"weights"`
	RiskMultiplier float64       `json:"risk_multiplier"`
	Reasoning      string        `json:"reasoning"`
}

// NeutralRegimeEntry is the fallback when classification has insufficient data:
// calm regime with unit weights.
func NeutralRegimeEntry(reason string) RegimeEntry {
	return RegimeEntry{
		Regime:         RegimeCalm,
		Weights:        RegimeWeights{Momentum: 1.0, MeanReversion: 1.0},
		RiskMultiplier: 1.0,
		Reasoning:      reason,
	}
}

// CredibilityRecord is the Performance Auditor's persistent per-analyst track
// record. Credibility stays in [0, 1] and starts at 0.5.
type CredibilityRecord struct {
	Credibility      float64   `json:"credibility"`
	CorrectSignals   int       `json:"correct_signals"`
	IncorrectSignals int       `json:"incorrect_signals"`
	NeutralSignals   int       `json:"neutral_signals"`
	TotalEvaluated   int       `json:"total_evaluated"`
	LastUpdated      time.Time `json:"last_updated"`
}

// RiskBudgetEntry is the Risk Budget agent's per-ticker output: the fraction
// of NAV allocated as maximum loss on the trade.
type RiskBudgetEntry struct {
	BaseRiskPct          float64 `json:"base_risk_pct"`
	VolatilityAdjustment float64 `json:"volatility_adjustment"`
	RegimeMultiplier     float64 `json:"regime_multiplier"`
	FinalRiskPct         float64 `json:"final_risk_pct"`
	Reasoning            string  `json:"reasoning"`
}
