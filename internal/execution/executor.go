// Package execution implements the trade executor: the accounting layer that
// applies the allocator's final decisions to the portfolio under hard safety
// gates, with weighted-average cost basis and margin-reserved short selling.
package execution

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/params"
)

// Executor applies sized decisions to the portfolio. It is the only component
// that mutates portfolio state; everything upstream works on projections.
type Executor struct {
	params         *params.Params
	initialCapital float64
	log            zerolog.Logger
}

// New creates the executor. initialCapital anchors the capital-halt gate.
func New(p *params.Params, initialCapital float64, log zerolog.Logger) *Executor {
	return &Executor{
		params:         p,
		initialCapital: initialCapital,
		log:            log.With().Str("component", "executor").Logger(),
	}
}

// Execute applies the final decisions in deterministic ticker order. Closes
// run before opens so freed cash and margin are available to the same day's
// opens. Returns the executed trades and an error only when post-trade
// accounting is corrupt, which callers treat as fatal.
func (e *Executor) Execute(portfolio *domain.Portfolio, decisions map[string]domain.TradeDecision,
	prices map[string]float64) ([]domain.ExecutedTrade, error) {

	tickers := make([]string, 0, len(decisions))
	for t := range decisions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var trades []domain.ExecutedTrade

	// Pass 1: closes.
	for _, ticker := range tickers {
		d := decisions[ticker]
		if d.Action != domain.ActionSell && d.Action != domain.ActionCover {
			continue
		}
		if t, ok := e.apply(portfolio, ticker, d, prices); ok {
			trades = append(trades, t)
		}
	}
	// Pass 2: opens.
	for _, ticker := range tickers {
		d := decisions[ticker]
		if d.Action != domain.ActionBuy && d.Action != domain.ActionShort {
			continue
		}
		if t, ok := e.apply(portfolio, ticker, d, prices); ok {
			trades = append(trades, t)
		}
	}

	if err := portfolio.CheckInvariants(); err != nil {
		return trades, fmt.Errorf("portfolio invariant violated after trades: %w", err)
	}
	if nav := portfolio.NAV(prices); nav < 0 {
		return trades, fmt.Errorf("negative NAV %.2f after trades", nav)
	}
	return trades, nil
}

func (e *Executor) apply(portfolio *domain.Portfolio, ticker string,
	d domain.TradeDecision, prices map[string]float64) (domain.ExecutedTrade, bool) {

	price, ok := prices[ticker]
	if !ok || price <= 0 || d.Quantity <= 0 {
		return domain.ExecutedTrade{}, false
	}

	var filled int
	switch d.Action {
	case domain.ActionBuy:
		filled = e.buy(portfolio, ticker, d.Quantity, price, prices)
	case domain.ActionSell:
		filled = e.sell(portfolio, ticker, d.Quantity, price)
	case domain.ActionShort:
		filled = e.short(portfolio, ticker, d.Quantity, price, prices)
	case domain.ActionCover:
		filled = e.cover(portfolio, ticker, d.Quantity, price)
	default:
		return domain.ExecutedTrade{}, false
	}

	if filled <= 0 {
		e.log.Debug().Str("ticker", ticker).Str("action", string(d.Action)).
			Int("requested", d.Quantity).Msg("order blocked or unaffordable")
		return domain.ExecutedTrade{}, false
	}

	return domain.ExecutedTrade{
		Ticker:    ticker,
		Action:    d.Action,
		Requested: d.Quantity,
		Filled:    filled,
		Price:     price,
		Cost:      e.tradeCost(filled, price),
	}, true
}

// opensAllowed applies the capital-halt gate: once NAV falls below the
// configured fraction of initial capital, no new exposure may be opened.
func (e *Executor) opensAllowed(portfolio *domain.Portfolio, prices map[string]float64) bool {
	if e.initialCapital <= 0 {
		return true
	}
	return portfolio.NAV(prices) > e.params.Executor.HaltOpensBelowPct*e.initialCapital
}

// openCapacity shrinks an open to fit the per-ticker and gross exposure caps.
func (e *Executor) openCapacity(portfolio *domain.Portfolio, ticker string, qty int,
	price float64, prices map[string]float64) int {

	nav := portfolio.NAV(prices)
	if nav <= 0 {
		return 0
	}

	tickerRoom := e.params.Executor.MaxPositionPct*nav - math.Abs(portfolio.TickerExposure(ticker, price))
	grossRoom := e.params.Executor.MaxGrossPct*nav - portfolio.GrossExposure(prices)
	room := math.Min(tickerRoom, grossRoom)
	if room <= 0 {
		return 0
	}
	if maxQty := int(math.Floor(room / price)); maxQty < qty {
		qty = maxQty
	}
	return qty
}

func (e *Executor) buy(portfolio *domain.Portfolio, ticker string, qty int,
	price float64, prices map[string]float64) int {

	if !e.opensAllowed(portfolio, prices) {
		return 0
	}
	qty = e.openCapacity(portfolio, ticker, qty, price, prices)

	// Affordability including the cost charge.
	for qty > 0 {
		if float64(qty)*price+e.tradeCost(qty, price) <= portfolio.Cash {
			break
		}
		qty--
	}
	if qty <= 0 {
		return 0
	}

	pos := portfolio.Position(ticker)
	cost := e.tradeCost(qty, price)
	notional := float64(qty) * price

	total := float64(pos.LongShares)*pos.LongCostBasis + notional
	pos.LongShares += qty
	pos.LongCostBasis = total / float64(pos.LongShares)
	portfolio.Cash -= notional + cost
	return qty
}

func (e *Executor) sell(portfolio *domain.Portfolio, ticker string, qty int, price float64) int {
	pos := portfolio.Position(ticker)
	if qty > pos.LongShares {
		qty = pos.LongShares
	}
	if qty <= 0 {
		return 0
	}

	cost := e.tradeCost(qty, price)
	notional := float64(qty) * price

	gains := portfolio.RealizedGains[ticker]
	gains.Long += float64(qty) * (price - pos.LongCostBasis)
	portfolio.RealizedGains[ticker] = gains

	pos.LongShares -= qty
	if pos.LongShares == 0 {
		pos.LongCostBasis = 0
	}
	portfolio.Cash += notional - cost
	return qty
}

func (e *Executor) short(portfolio *domain.Portfolio, ticker string, qty int,
	price float64, prices map[string]float64) int {

	if !e.opensAllowed(portfolio, prices) {
		return 0
	}
	qty = e.openCapacity(portfolio, ticker, qty, price, prices)

	req := portfolio.MarginRequirement
	if req <= 0 {
		return 0 // shorting disabled without a margin requirement
	}

	// Margin reserve must fit in cash after proceeds land, net of costs.
	for qty > 0 {
		margin := req * float64(qty) * price
		if margin <= portfolio.AvailableMargin()+float64(qty)*price-e.tradeCost(qty, price) {
			break
		}
		qty--
	}
	if qty <= 0 {
		return 0
	}

	pos := portfolio.Position(ticker)
	cost := e.tradeCost(qty, price)
	notional := float64(qty) * price
	margin := req * notional

	total := float64(pos.ShortShares)*pos.ShortCostBasis + notional
	pos.ShortShares += qty
	pos.ShortCostBasis = total / float64(pos.ShortShares)
	pos.ShortMarginUsed += margin

	// Proceeds land in cash with the margin reserve carved out.
	portfolio.Cash += notional - margin - cost
	portfolio.MarginUsed += margin
	return qty
}

func (e *Executor) cover(portfolio *domain.Portfolio, ticker string, qty int, price float64) int {
	pos := portfolio.Position(ticker)
	if qty > pos.ShortShares {
		qty = pos.ShortShares
	}
	if qty <= 0 {
		return 0
	}

	cost := e.tradeCost(qty, price)
	notional := float64(qty) * price

	// Release margin proportionally to the covered fraction.
	released := pos.ShortMarginUsed * float64(qty) / float64(pos.ShortShares)

	gains := portfolio.RealizedGains[ticker]
	gains.Short += float64(qty) * (pos.ShortCostBasis - price)
	portfolio.RealizedGains[ticker] = gains

	pos.ShortShares -= qty
	pos.ShortMarginUsed -= released
	if pos.ShortShares == 0 {
		pos.ShortCostBasis = 0
		pos.ShortMarginUsed = 0
	}

	portfolio.Cash += released - notional - cost
	portfolio.MarginUsed -= released
	return qty
}

// LiquidateAll force-closes every open position at current prices, bypassing
// the opening gates. Used when NAV goes non-positive; missing prices close at
// cost basis as a last resort.
func (e *Executor) LiquidateAll(portfolio *domain.Portfolio, prices map[string]float64) []domain.ExecutedTrade {
	tickers := make([]string, 0, len(portfolio.Positions))
	for t := range portfolio.Positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var trades []domain.ExecutedTrade
	for _, ticker := range tickers {
		pos := portfolio.Positions[ticker]
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			if pos.LongShares > 0 {
				price = pos.LongCostBasis
			} else {
				price = pos.ShortCostBasis
			}
		}
		if price <= 0 {
			continue
		}

		if pos.LongShares > 0 {
			qty := pos.LongShares
			filled := e.sell(portfolio, ticker, qty, price)
			if filled > 0 {
				trades = append(trades, domain.ExecutedTrade{
					Ticker: ticker, Action: domain.ActionSell,
					Requested: qty, Filled: filled, Price: price,
					Cost: e.tradeCost(filled, price),
				})
			}
		}
		if pos.ShortShares > 0 {
			qty := pos.ShortShares
			filled := e.cover(portfolio, ticker, qty, price)
			if filled > 0 {
				trades = append(trades, domain.ExecutedTrade{
					Ticker: ticker, Action: domain.ActionCover,
					Requested: qty, Filled: filled, Price: price,
					Cost: e.tradeCost(filled, price),
				})
			}
		}
	}
	return trades
}
