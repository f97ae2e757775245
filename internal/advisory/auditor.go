package advisory

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/params"
)

// AuditorAgentName is the performance auditor's node identifier.
const AuditorAgentName = "performance_auditor"

// pendingSignal is a directional call awaiting its forward-return grade.
type pendingSignal struct {
	analyst   string
	ticker    string
	date      time.Time
	direction domain.Direction
	price     float64
}

// Auditor grades each analyst's past directional calls against realized
// forward returns and maintains a persistent credibility score per analyst.
// It is the only agent that carries state across days: the driver constructs
// one instance per run and reuses it for every iteration.
type Auditor struct {
	params  *params.Params
	log     zerolog.Logger
	pending []pendingSignal
	records map[string]*domain.CredibilityRecord
}

// NewAuditor creates the performance auditor with every analyst at the
// starting credibility of 0.5.
func NewAuditor(p *params.Params, log zerolog.Logger) *Auditor {
	records := make(map[string]*domain.CredibilityRecord)
	for _, name := range params.CoreAnalysts() {
		records[name] = &domain.CredibilityRecord{Credibility: 0.5}
	}
	return &Auditor{
		params:  p,
		log:     log.With().Str("component", "performance_auditor").Logger(),
		records: records,
	}
}

func (a *Auditor) Name() string     { return AuditorAgentName }
func (a *Auditor) Kind() graph.Kind { return graph.KindAdvisory }

// Deps lists all five core analysts: the auditor reads every signal slot to
// enqueue today's calls, and attaches credibility metadata to each.
func (a *Auditor) Deps() []string { return params.CoreAnalysts() }

// Run grades matured pending signals, enqueues today's directional calls, and
// publishes the credibility map. Credibility changes only when forward data
// exists; a missing forward price inside the buffer window leaves the record
// untouched.
func (a *Auditor) Run(ctx context.Context, st *graph.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.evaluate(st)
	a.enqueue(st)

	cred := make(map[string]float64, len(a.records))
	for name, rec := range a.records {
		cred[name] = rec.Credibility
	}
	st.AgentCredibility = cred

	for analyst, tickerSignals := range st.Signals() {
		c, ok := cred[analyst]
		if !ok {
			continue
		}
		for ticker := range tickerSignals {
			st.AttachSignalMeta(analyst, ticker, "credibility", c)
		}
	}
	return nil
}

// Records exposes the full per-analyst track record for the run summary.
func (a *Auditor) Records() map[string]domain.CredibilityRecord {
	out := make(map[string]domain.CredibilityRecord, len(a.records))
	for name, rec := range a.records {
		out[name] = *rec
	}
	return out
}

// evaluate grades every pending signal whose forward window has elapsed.
// Signals older than lookback+buffer calendar days without a usable forward
// price are dropped without touching credibility.
func (a *Auditor) evaluate(st *graph.State) {
	lookback := a.params.Auditor.LookbackDays
	giveUp := lookback + a.params.Auditor.BufferDays

	remaining := a.pending[:0]
	for _, p := range a.pending {
		if businessDaysBetween(p.date, st.Date) < lookback {
			remaining = append(remaining, p)
			continue
		}

		bar, err := st.Cache.Bar(p.ticker, st.Date)
		if err != nil || bar.Date.Before(p.date) || bar.Close <= 0 {
			if int(st.Date.Sub(p.date).Hours()/24) <= giveUp {
				remaining = append(remaining, p)
				continue
			}
			a.log.Debug().Str("ticker", p.ticker).Str("analyst", p.analyst).
				Time("signal_date", p.date).Msg("dropping unevaluable signal, no forward price")
			continue
		}

		a.grade(p, (bar.Close-p.price)/p.price, st.Date)
	}
	a.pending = remaining
}

// grade applies the credibility update for one matured signal.
func (a *Auditor) grade(p pendingSignal, fwdReturn float64, now time.Time) {
	rec, ok := a.records[p.analyst]
	if !ok {
		return
	}

	threshold := a.params.Auditor.CorrectThresholdPct
	signed := p.direction.Sign() * fwdReturn

	delta := 0.0
	switch {
	case signed >= threshold:
		rec.CorrectSignals++
		delta += 0.05
	case signed <= -threshold:
		rec.IncorrectSignals++
		delta -= 0.05
	}
	// Profitability is symmetric: any favorable move rewards, any adverse
	// move penalizes, band or no band.
	if signed > 0 {
		delta += 0.10
	} else if signed < 0 {
		delta -= 0.10
	}

	rec.TotalEvaluated++
	rec.Credibility = clamp01(rec.Credibility + 0.1*delta)
	rec.LastUpdated = now
}

// enqueue records today's directional calls for future grading. Neutral
// signals are counted but never graded.
func (a *Auditor) enqueue(st *graph.State) {
	signals := st.Signals()

	analysts := make([]string, 0, len(signals))
	for name := range signals {
		analysts = append(analysts, name)
	}
	sort.Strings(analysts)

	for _, analyst := range analysts {
		tickerSignals := signals[analyst]
		tickers := make([]string, 0, len(tickerSignals))
		for t := range tickerSignals {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)

		for _, ticker := range tickers {
			sig := tickerSignals[ticker]
			if sig.Direction == domain.DirectionNeutral {
				if rec, ok := a.records[analyst]; ok {
					rec.NeutralSignals++
				}
				continue
			}
			price, ok := st.Prices[ticker]
			if !ok || price <= 0 {
				continue
			}
			a.pending = append(a.pending, pendingSignal{
				analyst:   analyst,
				ticker:    ticker,
				date:      st.Date,
				direction: sig.Direction,
				price:     price,
			})
		}
	}
}

// businessDaysBetween counts weekdays in (from, to]. Exchange holidays are
// absorbed by the buffer window rather than tracked here.
func businessDaysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
