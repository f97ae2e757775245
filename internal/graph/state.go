// Package graph implements the analyst DAG: a registry of agents with
// declared dependencies, deterministic tier layering, per-tier parallel
// fan-out, and the shared per-day state threaded from sources to sinks.
package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/marketdata"
)

// ConstraintReport is the allocator's published constraint-analysis block.
type ConstraintReport struct {
	GrossBefore     float64            `json:"gross_before"`
	GrossAfter      float64            `json:"gross_after"`
	NetBefore       float64            `json:"net_before"`
	NetAfter        float64            `json:"net_after"`
	GrossScale      float64            `json:"gross_scale"`
	NetScale        float64            `json:"net_scale"`
	SectorScales    map[string]float64 `json:"sector_scales"`
	CorrelationCuts []string           `json:"correlation_cuts"`
}

// State is the shared mutable object one day of the graph executes against.
//
// Concurrency contract: the signals map is append-only and partitioned by
// analyst identifier — no two agents write the same key, and a held mutex
// makes the map itself safe for concurrent appends. Every other slot has a
// single writing agent. The whole state is frozen once the day's execution
// phase ends.
type State struct {
	Date          time.Time
	Tickers       []string
	Portfolio     *domain.Portfolio      // read-only inside the graph
	Prices        map[string]float64     // today's close per ticker
	Cache         *marketdata.PriceCache // immutable after load, concurrent-read safe
	Deterministic bool                   // forces price-only data paths in analysts

	mu      sync.Mutex
	signals domain.AnalystSignals

	// Advisory slots. Separate from signals: advisory agents publish context,
	// never trade direction.
	MarketRegime     map[string]domain.RegimeEntry
	AgentCredibility map[string]float64

	// System-agent slots, filled in pipeline order.
	Decisions      map[string]domain.TradeDecision // portfolio manager output
	RiskBudgets    map[string]domain.RiskBudgetEntry
	FinalDecisions map[string]domain.TradeDecision // allocator output, authoritative
	Constraints    *ConstraintReport
}

// NewState creates the per-day state. The day-loop owns it exclusively and
// discards it at day-end aside from cross-day auditor state.
func NewState(date time.Time, tickers []string, portfolio *domain.Portfolio,
	prices map[string]float64, cache *marketdata.PriceCache, deterministic bool) *State {
	return &State{
		Date:          date,
		Tickers:       tickers,
		Portfolio:     portfolio,
		Prices:        prices,
		Cache:         cache,
		Deterministic: deterministic,
		signals:       make(domain.AnalystSignals),
	}
}

// PublishSignals appends one analyst's ticker signals under its own
// identifier. The map is additive: publishing twice under the same key or
// publishing an invalid signal is a contract violation.
func (s *State) PublishSignals(analyst string, signals domain.TickerSignals) error {
	for ticker, sig := range signals {
		if err := sig.Validate(); err != nil {
			return fmt.Errorf("analyst %s produced invalid signal for %s: %w", analyst, ticker, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.signals[analyst]; exists {
		return fmt.Errorf("analyst %s attempted to publish twice", analyst)
	}
	s.signals[analyst] = signals
	return nil
}

// Signals returns the analyst-signals map. Callers must treat it as read-only;
// it is safe to read once the producing tier has joined.
func (s *State) Signals() domain.AnalystSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals
}

// SignalsFor returns the per-ticker signals of one analyst, or nil when that
// analyst's slot is empty (strategy failure or not yet run).
func (s *State) SignalsFor(analyst string) domain.TickerSignals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signals[analyst]
}

// AttachSignalMeta adds metadata to an existing signal's extension map.
// Used by the auditor to attach credibility without touching direction.
func (s *State) AttachSignalMeta(analyst, ticker, key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickerSignals, ok := s.signals[analyst]
	if !ok {
		return
	}
	sig, ok := tickerSignals[ticker]
	if !ok {
		return
	}
	if sig.Extra == nil {
		sig.Extra = make(map[string]float64)
	}
	sig.Extra[key] = value
	tickerSignals[ticker] = sig
}
