// Package backtest implements the day-by-day replay driver: the business-day
// calendar, the run state machine, the invariant log line, performance
// metrics, and the determinism output hash.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/advisory"
	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/execution"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/marketdata"
	"github.com/quantsmith/backcast/internal/params"
)

// RunState is the driver's lifecycle state.
type RunState string

const (
	StateInit         RunState = "INIT"
	StateLoading      RunState = "LOADING"
	StateRunning      RunState = "RUNNING"
	StateComplete     RunState = "COMPLETE"
	StateLiquidated   RunState = "LIQUIDATED"
	StateEngineFailed RunState = "ENGINE_FAILED"
)

// Config is the run configuration handed to the driver.
type Config struct {
	Tickers           []string
	Start             time.Time
	End               time.Time
	InitialCapital    float64
	MarginRequirement float64
	Deterministic     bool
	Seed              int64
}

// Driver owns the run: the portfolio, the processed-date ledger, the daily
// rows, and the state machine. One driver runs one backtest.
type Driver struct {
	cfg      Config
	params   *params.Params
	cache    *marketdata.PriceCache
	graph    *graph.Graph
	auditor  *advisory.Auditor
	executor *execution.Executor
	log      zerolog.Logger

	runID string
	rng   *rand.Rand

	// invariantOut receives the raw per-iteration line. Byte-stable aside from
	// the elapsed field; tests inject a buffer.
	invariantOut io.Writer

	state       RunState
	portfolio   *domain.Portfolio
	processed   map[string]bool
	rows        []domain.DailyRow
	dates       []time.Time
	values      []float64
	skipped     int
	trades      int
	stratFails  int
	lastFailure string
}

// NewDriver wires the run. The auditor instance must be the same one
// registered in the graph: it is the only cross-day stateful agent.
func NewDriver(cfg Config, p *params.Params, cache *marketdata.PriceCache, g *graph.Graph,
	auditor *advisory.Auditor, executor *execution.Executor, log zerolog.Logger) *Driver {
	return &Driver{
		cfg:          cfg,
		params:       p,
		cache:        cache,
		graph:        g,
		auditor:      auditor,
		executor:     executor,
		log:          log.With().Str("component", "driver").Logger(),
		runID:        uuid.New().String(),
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		invariantOut: os.Stderr,
		state:        StateInit,
		portfolio:    domain.NewPortfolio(cfg.InitialCapital, cfg.MarginRequirement, cfg.Tickers),
		processed:    make(map[string]bool),
	}
}

// SetInvariantWriter redirects the per-iteration invariant line, for tests.
func (d *Driver) SetInvariantWriter(w io.Writer) { d.invariantOut = w }

// State returns the current lifecycle state.
func (d *Driver) State() RunState { return d.state }

// Rows returns the recorded daily rows, one per processed date.
func (d *Driver) Rows() []domain.DailyRow { return d.rows }

// RunID returns the uuid stamped on this run.
func (d *Driver) RunID() string { return d.runID }

// Rand is the run's single randomness source. Deterministic replay requires
// every stochastic component to draw from it rather than seeding its own.
func (d *Driver) Rand() *rand.Rand { return d.rng }

// Run replays every business day in the configured range. It always returns a
// summary; the error is non-nil only for engine failures and cancellation,
// and the summary then covers the partial run.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	d.state = StateLoading
	d.log.Info().Str("run_id", d.runID).
		Strs("tickers", d.cfg.Tickers).
		Time("start", d.cfg.Start).Time("end", d.cfg.End).
		Float64("initial_capital", d.cfg.InitialCapital).
		Bool("deterministic", d.cfg.Deterministic).
		Msg("Starting backtest run")

	for _, ticker := range d.cfg.Tickers {
		if !d.cache.HasData(ticker, d.cfg.End) {
			d.log.Warn().Str("ticker", ticker).Msg("No price data anywhere in range, ticker will only skip")
		}
	}

	d.state = StateRunning
	days := BusinessDays(d.cfg.Start, d.cfg.End)

	for _, date := range days {
		if err := ctx.Err(); err != nil {
			d.log.Warn().Msg("Run cancelled between iterations")
			return d.summary(), err
		}

		if err := d.runDay(ctx, date); err != nil {
			if ctx.Err() != nil {
				return d.summary(), ctx.Err()
			}
			d.state = StateEngineFailed
			d.lastFailure = err.Error()
			return d.summary(), err
		}

		if d.state == StateLiquidated {
			break
		}
	}

	if d.state == StateRunning {
		d.state = StateComplete
	}
	d.log.Info().Str("run_id", d.runID).Str("state", string(d.state)).
		Int("days", len(d.values)).Msg("Run finished")
	return d.summary(), nil
}

// runDay executes one calendar date end to end. A returned error is an engine
// failure; strategy failures are absorbed here.
func (d *Driver) runDay(ctx context.Context, date time.Time) error {
	dayStart := time.Now()
	dateKey := date.Format("2006-01-02")
	iteration := len(d.values)

	if d.processed[dateKey] {
		return &EngineFailure{
			Iteration:     iteration,
			Date:          date,
			LastGoodValue: d.lastValue(),
			Err:           fmt.Errorf("date %s already processed", dateKey),
		}
	}

	prices, tradingDay := d.pricesFor(date)
	if !tradingDay {
		d.skipped++
		d.log.Info().Str("date", dateKey).Msg("No prices for any ticker, skipping day")
		return nil
	}

	// Pre-trade capital check: a wiped-out book liquidates before any new
	// decisions are made.
	if d.portfolio.NAV(prices) <= 0 {
		d.liquidate(prices, date, iteration, dayStart)
		return nil
	}

	st := graph.NewState(date, d.cfg.Tickers, d.portfolio, prices, d.cache, d.cfg.Deterministic)
	failures, err := d.graph.Execute(ctx, st)
	if err != nil {
		return err // context cancellation only
	}
	d.stratFails += len(failures)

	var trades []domain.ExecutedTrade
	systemDown := false
	for _, f := range failures {
		if f.Kind != graph.KindSystem {
			continue
		}
		systemDown = true
		// A system agent reporting malformed pipeline output means the engine
		// is emitting garbage, not having a bad day. Abort, never default.
		if errors.Is(f.Err, domain.ErrMalformedDecision) {
			return &EngineFailure{
				Iteration:     iteration,
				Date:          date,
				LastGoodValue: d.lastValue(),
				Err:           fmt.Errorf("system agent %s: %w", f.Agent, f.Err),
			}
		}
	}

	switch {
	case systemDown:
		d.log.Warn().Str("date", dateKey).Msg("System agent failed, no trades today")
	case st.FinalDecisions != nil:
		if err := validateDecisions(st.FinalDecisions); err != nil {
			return &EngineFailure{
				Iteration:     iteration,
				Date:          date,
				LastGoodValue: d.lastValue(),
				Err:           err,
			}
		}
		trades, err = d.executor.Execute(d.portfolio, st.FinalDecisions, prices)
		if err != nil {
			return &EngineFailure{
				Iteration:     iteration,
				Date:          date,
				LastGoodValue: d.lastValue(),
				Err:           err,
			}
		}
		d.trades += len(trades)
	}

	value := d.portfolio.NAV(prices)
	d.record(date, value, prices, st.FinalDecisions, trades)
	d.logIteration(iteration, dateKey, value, dayStart)

	if value <= 0 {
		d.liquidate(prices, date, len(d.values), dayStart)
	}
	return nil
}

// validateDecisions guards the executor's trust boundary: every entry of the
// final decision map must pass the schema check before a single share moves.
// Tickers are checked in sorted order so the first reported violation is
// reproducible.
func validateDecisions(decisions map[string]domain.TradeDecision) error {
	tickers := make([]string, 0, len(decisions))
	for t := range decisions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		if err := decisions[ticker].Validate(); err != nil {
			return fmt.Errorf("final decision for %s: %w", ticker, err)
		}
	}
	return nil
}

// pricesFor marks every ticker at its latest close on or before date. The day
// is a trading day when at least one ticker has a bar dated exactly on it.
func (d *Driver) pricesFor(date time.Time) (map[string]float64, bool) {
	prices := make(map[string]float64, len(d.cfg.Tickers))
	trading := false
	y, m, day := date.Date()

	for _, ticker := range d.cfg.Tickers {
		bar, err := d.cache.Bar(ticker, date)
		if err != nil {
			continue
		}
		prices[ticker] = bar.Close
		by, bm, bd := bar.Date.UTC().Date()
		if by == y && bm == m && bd == day {
			trading = true
		}
	}
	return prices, trading
}

// record appends the daily row and the determinism series entry.
func (d *Driver) record(date time.Time, value float64, prices map[string]float64,
	decisions map[string]domain.TradeDecision, trades []domain.ExecutedTrade) {

	d.processed[date.Format("2006-01-02")] = true
	d.dates = append(d.dates, date)
	d.values = append(d.values, value)

	exposures := make(map[string]float64)
	for ticker := range d.portfolio.Positions {
		if price, ok := prices[ticker]; ok {
			if exp := d.portfolio.TickerExposure(ticker, price); exp != 0 {
				exposures[ticker] = exp
			}
		}
	}

	d.rows = append(d.rows, domain.DailyRow{
		Date:           date,
		PortfolioValue: value,
		Cash:           d.portfolio.Cash,
		Exposures:      exposures,
		Decisions:      decisions,
		ExecutedTrades: trades,
		Performance: Snapshot(d.values, d.params.RiskFreeRate,
			d.portfolio.GrossExposure(prices), d.portfolio.NetExposure(prices)),
	})
}

// logIteration writes the raw invariant line: exactly one per processed
// iteration, monotone index, outside the structured logger.
func (d *Driver) logIteration(iteration int, dateKey string, value float64, dayStart time.Time) {
	fmt.Fprintf(d.invariantOut, "[%d] %s | V=$%.2f | Δt=%s\n",
		iteration, dateKey, value, time.Since(dayStart).Round(time.Microsecond))
}

// liquidate force-closes the book and ends the run in LIQUIDATED.
func (d *Driver) liquidate(prices map[string]float64, date time.Time, iteration int, dayStart time.Time) {
	d.log.Warn().Str("date", date.Format("2006-01-02")).
		Float64("nav", d.portfolio.NAV(prices)).
		Msg("NAV non-positive, forced liquidation")

	trades := d.executor.LiquidateAll(d.portfolio, prices)
	d.trades += len(trades)
	d.state = StateLiquidated

	dateKey := date.Format("2006-01-02")
	if !d.processed[dateKey] {
		value := d.portfolio.NAV(prices)
		d.record(date, value, prices, nil, trades)
		d.logIteration(iteration, dateKey, value, dayStart)
	}
}

func (d *Driver) lastValue() float64 {
	if len(d.values) == 0 {
		return d.cfg.InitialCapital
	}
	return d.values[len(d.values)-1]
}

// summary builds the run summary from whatever has been processed so far.
func (d *Driver) summary() *Summary {
	final := d.lastValue()
	return &Summary{
		RunID:             d.runID,
		State:             d.state,
		Tickers:           d.cfg.Tickers,
		Start:             d.cfg.Start,
		End:               d.cfg.End,
		InitialCapital:    d.cfg.InitialCapital,
		FinalValue:        final,
		DaysProcessed:     len(d.values),
		DaysSkipped:       d.skipped,
		TradesExecuted:    d.trades,
		StrategyFailures:  d.stratFails,
		Metrics:           ComputeMetrics(d.values, d.params.RiskFreeRate, d.portfolio.RealizedGains),
		Credibility:       d.auditor.Records(),
		ParamsFingerprint: d.params.Fingerprint(),
		OutputHash:        outputHash(d.dates, d.values),
		FailureReason:     d.lastFailure,
	}
}
