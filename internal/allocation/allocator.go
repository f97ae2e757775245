// Package allocation implements the allocator: the third system agent, which
// enforces the portfolio-level exposure constraints on the risk-sized
// decisions and publishes the authoritative final decision set.
package allocation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
	"github.com/quantsmith/backcast/internal/riskbudget"
	"github.com/quantsmith/backcast/pkg/formulas"
)

// AgentName is the allocator's node identifier.
const AgentName = "allocator"

// Allocator scales opening decisions down until the projected portfolio fits
// the gross, net, sector, and pairwise-correlation caps. Closing decisions
// always pass through: reducing exposure never violates a cap.
type Allocator struct {
	params  *params.Params
	sectors SectorLookup
	log     zerolog.Logger
}

// New creates the allocator. The params file doubles as the sector lookup.
func New(p *params.Params, log zerolog.Logger) *Allocator {
	return &Allocator{
		params:  p,
		sectors: p,
		log:     log.With().Str("component", "allocator").Logger(),
	}
}

func (a *Allocator) Name() string     { return AgentName }
func (a *Allocator) Kind() graph.Kind { return graph.KindSystem }
func (a *Allocator) Deps() []string   { return []string{riskbudget.AgentName} }

// Run applies the constraint chain in order (gross, net, sector, correlation)
// and writes state.FinalDecisions plus the constraint report.
func (a *Allocator) Run(ctx context.Context, st *graph.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.Decisions == nil {
		return fmt.Errorf("allocator ran without risk-sized decisions")
	}

	final := make(map[string]domain.TradeDecision, len(st.Decisions))
	for ticker, d := range st.Decisions {
		final[ticker] = d
	}

	nav := st.Portfolio.NAV(st.Prices)
	report := &graph.ConstraintReport{
		GrossScale:   1.0,
		NetScale:     1.0,
		SectorScales: map[string]float64{},
	}
	report.GrossBefore = a.projectedGross(st, final)
	report.NetBefore = a.projectedNet(st, final)

	if nav > 0 {
		a.applyGrossCap(st, final, nav, report)
		a.applyNetCap(st, final, nav, report)
		a.applySectorCap(st, final, nav, report)
		a.applyCorrelationCap(st, final, report)
	}

	report.GrossAfter = a.projectedGross(st, final)
	report.NetAfter = a.projectedNet(st, final)

	for ticker, d := range final {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("allocator produced malformed decision for %s: %w", ticker, err)
		}
	}

	st.FinalDecisions = final
	st.Constraints = report
	return nil
}

// openNotional returns the signed notional the decision would add: positive
// for buys, negative for shorts, zero for everything else.
func (a *Allocator) openNotional(st *graph.State, ticker string, d domain.TradeDecision) float64 {
	price := st.Prices[ticker]
	switch d.Action {
	case domain.ActionBuy:
		return float64(d.Quantity) * price
	case domain.ActionShort:
		return -float64(d.Quantity) * price
	}
	return 0
}

// closeNotional returns the signed notional the decision removes.
func (a *Allocator) closeNotional(st *graph.State, ticker string, d domain.TradeDecision) float64 {
	price := st.Prices[ticker]
	switch d.Action {
	case domain.ActionSell:
		return -float64(d.Quantity) * price
	case domain.ActionCover:
		return float64(d.Quantity) * price
	}
	return 0
}

func (a *Allocator) projectedGross(st *graph.State, decisions map[string]domain.TradeDecision) float64 {
	gross := st.Portfolio.GrossExposure(st.Prices)
	for ticker, d := range decisions {
		gross += math.Abs(a.openNotional(st, ticker, d))
		gross -= math.Abs(a.closeNotional(st, ticker, d))
	}
	return math.Max(gross, 0)
}

func (a *Allocator) projectedNet(st *graph.State, decisions map[string]domain.TradeDecision) float64 {
	net := st.Portfolio.NetExposure(st.Prices)
	for ticker, d := range decisions {
		net += a.openNotional(st, ticker, d)
		net += a.closeNotional(st, ticker, d)
	}
	return net
}

// scaleOpen shrinks an opening decision's quantity by the factor, degrading
// to hold at zero shares.
func scaleOpen(decisions map[string]domain.TradeDecision, ticker string, factor float64, why string) {
	d := decisions[ticker]
	if d.Action != domain.ActionBuy && d.Action != domain.ActionShort {
		return
	}
	scaled := int(math.Floor(float64(d.Quantity) * factor))
	if scaled >= d.Quantity {
		return
	}
	d.Quantity = scaled
	d.Reasoning = d.Reasoning + "; " + why
	if d.Quantity <= 0 {
		d = domain.HoldDecision(d.Confidence, d.Reasoning+"; scaled to zero")
	}
	decisions[ticker] = d
}

func sortedTickers(decisions map[string]domain.TradeDecision) []string {
	tickers := make([]string, 0, len(decisions))
	for t := range decisions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (a *Allocator) applyGrossCap(st *graph.State, decisions map[string]domain.TradeDecision,
	nav float64, report *graph.ConstraintReport) {
	limit := a.params.Allocator.MaxGross * nav
	gross := a.projectedGross(st, decisions)
	if gross <= limit {
		return
	}

	existing := st.Portfolio.GrossExposure(st.Prices)
	opening := gross - existing
	if opening <= 0 {
		return
	}

	// Scale only the new exposure: factor so existing + f*opening = limit.
	factor := math.Max((limit-existing)/opening, 0)
	report.GrossScale = factor
	why := fmt.Sprintf("gross cap %.2fx NAV, opens scaled %.2f", a.params.Allocator.MaxGross, factor)
	for _, ticker := range sortedTickers(decisions) {
		scaleOpen(decisions, ticker, factor, why)
	}
}

func (a *Allocator) applyNetCap(st *graph.State, decisions map[string]domain.TradeDecision,
	nav float64, report *graph.ConstraintReport) {
	limit := a.params.Allocator.MaxNet * nav
	net := a.projectedNet(st, decisions)
	if math.Abs(net) <= limit {
		return
	}

	// Scale the opens on the dominant side until |net| fits.
	side := domain.ActionBuy
	if net < 0 {
		side = domain.ActionShort
	}

	sideOpen := 0.0
	for ticker, d := range decisions {
		if d.Action == side {
			sideOpen += math.Abs(a.openNotional(st, ticker, d))
		}
	}
	if sideOpen <= 0 {
		return // imbalance comes from existing positions, not today's opens
	}

	excess := math.Abs(net) - limit
	factor := math.Max(1-excess/sideOpen, 0)
	report.NetScale = factor
	why := fmt.Sprintf("net cap %.2fx NAV, %s opens scaled %.2f", a.params.Allocator.MaxNet, side, factor)
	for _, ticker := range sortedTickers(decisions) {
		if decisions[ticker].Action == side {
			scaleOpen(decisions, ticker, factor, why)
		}
	}
}

func (a *Allocator) applySectorCap(st *graph.State, decisions map[string]domain.TradeDecision,
	nav float64, report *graph.ConstraintReport) {
	limit := a.params.Allocator.MaxSector * nav

	// Projected absolute exposure per sector, existing plus today's deltas.
	sectorExisting := map[string]float64{}
	sectorOpen := map[string]float64{}
	for ticker := range st.Portfolio.Positions {
		price, ok := st.Prices[ticker]
		if !ok {
			continue
		}
		sectorExisting[a.sectors.Sector(ticker)] += math.Abs(st.Portfolio.TickerExposure(ticker, price))
	}
	for ticker, d := range decisions {
		sectorOpen[a.sectors.Sector(ticker)] += math.Abs(a.openNotional(st, ticker, d))
	}

	sectors := make([]string, 0, len(sectorOpen))
	for s := range sectorOpen {
		sectors = append(sectors, s)
	}
	sort.Strings(sectors)

	for _, sector := range sectors {
		total := sectorExisting[sector] + sectorOpen[sector]
		if total <= limit || sectorOpen[sector] <= 0 {
			continue
		}
		factor := math.Max((limit-sectorExisting[sector])/sectorOpen[sector], 0)
		report.SectorScales[sector] = factor
		why := fmt.Sprintf("sector %s cap %.0f%% NAV, opens scaled %.2f", sector, a.params.Allocator.MaxSector*100, factor)
		for _, ticker := range sortedTickers(decisions) {
			if a.sectors.Sector(ticker) == sector {
				scaleOpen(decisions, ticker, factor, why)
			}
		}
	}
}

// applyCorrelationCap halves the smaller of any pair of same-day opens whose
// daily returns correlate beyond the threshold over the configured window.
func (a *Allocator) applyCorrelationCap(st *graph.State, decisions map[string]domain.TradeDecision,
	report *graph.ConstraintReport) {
	window := a.params.Allocator.CorrelationWindow
	threshold := a.params.Allocator.CorrelationThreshold

	opens := []string{}
	for _, ticker := range sortedTickers(decisions) {
		d := decisions[ticker]
		if (d.Action == domain.ActionBuy || d.Action == domain.ActionShort) && d.Quantity > 0 {
			opens = append(opens, ticker)
		}
	}

	returns := map[string][]float64{}
	for _, ticker := range opens {
		start := st.Date.AddDate(0, 0, -3*window)
		bars, err := st.Cache.Range(ticker, start, st.Date)
		if err != nil || len(bars) < window+1 {
			continue
		}
		closes := domain.Closes(bars)
		returns[ticker] = formulas.CalculateReturns(closes[len(closes)-window-1:])
	}

	for i := 0; i < len(opens); i++ {
		for j := i + 1; j < len(opens); j++ {
			ra, rb := returns[opens[i]], returns[opens[j]]
			if ra == nil || rb == nil || len(ra) != len(rb) {
				continue
			}
			rho := formulas.Correlation(ra, rb)
			if math.Abs(rho) <= threshold {
				continue
			}

			// Halve the smaller projected notional of the pair.
			victim := opens[i]
			ni := math.Abs(a.openNotional(st, opens[i], decisions[opens[i]]))
			nj := math.Abs(a.openNotional(st, opens[j], decisions[opens[j]]))
			other := opens[j]
			if nj < ni {
				victim, other = opens[j], opens[i]
			}

			why := fmt.Sprintf("correlation %.2f with %s above %.2f, halved", rho, other, threshold)
			scaleOpen(decisions, victim, 0.5, why)
			report.CorrelationCuts = append(report.CorrelationCuts,
				fmt.Sprintf("%s/%s rho=%.2f", victim, other, rho))
		}
	}
}
