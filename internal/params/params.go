// Package params holds the engine parameter set: analyst weights, risk and
// exposure limits, the transaction cost model, and the sector map.
//
// Parameters load from an optional YAML file layered over compiled-in
// defaults. The loaded set is immutable for the lifetime of a run; the driver
// stamps its fingerprint into the summary so two runs are comparable.
package params

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Analyst identifiers. These are the keys each analyst writes under in the
// signals map and the keys of the weight table.
const (
	AnalystValue         = "value_composite"
	AnalystGrowth        = "growth_composite"
	AnalystValuation     = "valuation"
	AnalystMomentum      = "momentum"
	AnalystMeanReversion = "mean_reversion"
)

// CoreAnalysts returns the five core analyst identifiers in pipeline order.
func CoreAnalysts() []string {
	return []string{AnalystValue, AnalystGrowth, AnalystValuation, AnalystMomentum, AnalystMeanReversion}
}

// ManagerParams configures the portfolio manager's signal fusion.
type ManagerParams struct {
	NetThreshold     float64 `yaml:"net_threshold"`     // |N| above which a directional decision fires
	UseCredibility   bool    `yaml:"use_credibility"`   // weight analysts by audited credibility
	CredibilityFloor float64 `yaml:"credibility_floor"` // floor applied before renormalizing
}

// RiskParams configures the risk budget agent.
type RiskParams struct {
	BaseRiskFactor float64 `yaml:"base_risk_factor"` // base = factor * confidence/100
	MinRiskPct     float64 `yaml:"min_risk_pct"`
	MaxRiskPct     float64 `yaml:"max_risk_pct"`
}

// AllocatorParams configures the portfolio-level constraint enforcement.
type AllocatorParams struct {
	MaxGross             float64 `yaml:"max_gross"`             // gross exposure cap as multiple of NAV
	MaxNet               float64 `yaml:"max_net"`               // |net| exposure cap as multiple of NAV
	MaxSector            float64 `yaml:"max_sector"`            // per-sector cap as multiple of NAV
	CorrelationThreshold float64 `yaml:"correlation_threshold"` // |rho| above which the pair cap fires
	CorrelationWindow    int     `yaml:"correlation_window"`    // daily-return window in bars
}

// ExecutorParams configures the trade executor's hard gates.
type ExecutorParams struct {
	MaxPositionPct    float64 `yaml:"max_position_pct"`     // single-ticker cap as fraction of NAV
	MaxGrossPct       float64 `yaml:"max_gross_pct"`        // executor-level gross cap as fraction of NAV
	HaltOpensBelowPct float64 `yaml:"halt_opens_below_pct"` // NAV fraction of initial capital below which opens are blocked
}

// CostParams is the transaction cost model, applied to cash on open and close.
type CostParams struct {
	CommissionPerShare float64 `yaml:"commission_per_share"`
	SlippageBps        float64 `yaml:"slippage_bps"`
	SpreadBps          float64 `yaml:"spread_bps"`
}

// AuditorParams configures the performance auditor.
type AuditorParams struct {
	LookbackDays        int     `yaml:"lookback_days"`         // forward-return window in business days
	BufferDays          int     `yaml:"buffer_days"`           // extra calendar days allowed for non-trading gaps
	CorrectThresholdPct float64 `yaml:"correct_threshold_pct"` // |forward return| band for correctness
}

// Params is the full engine parameter set.
type Params struct {
	AnalystWeights map[string]float64 `yaml:"analyst_weights"`
	Manager        ManagerParams      `yaml:"manager"`
	Risk           RiskParams         `yaml:"risk"`
	Allocator      AllocatorParams    `yaml:"allocator"`
	Executor       ExecutorParams     `yaml:"executor"`
	Costs          CostParams         `yaml:"costs"`
	Auditor        AuditorParams      `yaml:"auditor"`
	RiskFreeRate   float64            `yaml:"risk_free_rate"`
	Sectors        map[string]string  `yaml:"sectors"` // ticker -> sector
}

// Default returns the compiled-in parameter set.
func Default() *Params {
	return &Params{
		AnalystWeights: map[string]float64{
			AnalystValue:         0.30,
			AnalystGrowth:        0.25,
			AnalystValuation:     0.20,
			AnalystMomentum:      0.15,
			AnalystMeanReversion: 0.10,
		},
		Manager: ManagerParams{
			NetThreshold:     0.1,
			UseCredibility:   true,
			CredibilityFloor: 0.2,
		},
		Risk: RiskParams{
			BaseRiskFactor: 0.02,
			MinRiskPct:     0.005,
			MaxRiskPct:     0.05,
		},
		Allocator: AllocatorParams{
			MaxGross:             2.0,
			MaxNet:               0.5,
			MaxSector:            0.30,
			CorrelationThreshold: 0.70,
			CorrelationWindow:    60,
		},
		Executor: ExecutorParams{
			MaxPositionPct:    0.20,
			MaxGrossPct:       1.0,
			HaltOpensBelowPct: 0.50,
		},
		Costs: CostParams{
			CommissionPerShare: 0.0,
			SlippageBps:        0.0,
			SpreadBps:          0.0,
		},
		Auditor: AuditorParams{
			LookbackDays:        5,
			BufferDays:          10,
			CorrectThresholdPct: 0.02,
		},
		RiskFreeRate: 0.02,
		Sectors:      map[string]string{},
	}
}

// Load reads a YAML parameter file layered over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse params file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params in %s: %w", path, err)
	}

	return p, nil
}

// Validate checks the parameter set for internally consistent values.
func (p *Params) Validate() error {
	if len(p.AnalystWeights) == 0 {
		return fmt.Errorf("no analyst weights configured")
	}
	for name, w := range p.AnalystWeights {
		if w < 0 {
			return fmt.Errorf("negative weight %.4f for analyst %s", w, name)
		}
	}
	if p.Risk.MinRiskPct <= 0 || p.Risk.MaxRiskPct < p.Risk.MinRiskPct {
		return fmt.Errorf("invalid risk bounds [%.4f, %.4f]", p.Risk.MinRiskPct, p.Risk.MaxRiskPct)
	}
	if p.Allocator.MaxGross <= 0 || p.Allocator.MaxNet <= 0 || p.Allocator.MaxSector <= 0 {
		return fmt.Errorf("allocator caps must be positive")
	}
	if p.Allocator.CorrelationThreshold <= 0 || p.Allocator.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation threshold %.2f out of (0, 1]", p.Allocator.CorrelationThreshold)
	}
	if p.Auditor.LookbackDays <= 0 {
		return fmt.Errorf("auditor lookback must be positive")
	}
	if p.Manager.CredibilityFloor < 0 || p.Manager.CredibilityFloor > 1 {
		return fmt.Errorf("credibility floor %.2f out of [0, 1]", p.Manager.CredibilityFloor)
	}
	return nil
}

// Sector returns the configured sector for a ticker, or "unclassified".
func (p *Params) Sector(ticker string) string {
	if s, ok := p.Sectors[ticker]; ok && s != "" {
		return s
	}
	return "unclassified"
}

// Fingerprint returns a stable hash of the parameter set, stamped into the
// run summary so two runs are known to share parameters.
func (p *Params) Fingerprint() string {
	names := make([]string, 0, len(p.AnalystWeights))
	for name := range p.AnalystWeights {
		names = append(names, name)
	}
	sort.Strings(names)

	s := ""
	for _, name := range names {
		s += fmt.Sprintf("%s=%.6f;", name, p.AnalystWeights[name])
	}
	s += fmt.Sprintf("pm=%.4f,%v,%.4f;", p.Manager.NetThreshold, p.Manager.UseCredibility, p.Manager.CredibilityFloor)
	s += fmt.Sprintf("risk=%.4f,%.4f,%.4f;", p.Risk.BaseRiskFactor, p.Risk.MinRiskPct, p.Risk.MaxRiskPct)
	s += fmt.Sprintf("alloc=%.4f,%.4f,%.4f,%.4f,%d;",
		p.Allocator.MaxGross, p.Allocator.MaxNet, p.Allocator.MaxSector,
		p.Allocator.CorrelationThreshold, p.Allocator.CorrelationWindow)
	s += fmt.Sprintf("exec=%.4f,%.4f,%.4f;", p.Executor.MaxPositionPct, p.Executor.MaxGrossPct, p.Executor.HaltOpensBelowPct)
	s += fmt.Sprintf("costs=%.6f,%.2f,%.2f;", p.Costs.CommissionPerShare, p.Costs.SlippageBps, p.Costs.SpreadBps)
	s += fmt.Sprintf("audit=%d,%d,%.4f;", p.Auditor.LookbackDays, p.Auditor.BufferDays, p.Auditor.CorrectThresholdPct)

	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
