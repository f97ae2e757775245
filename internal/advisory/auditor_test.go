package advisory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsmith/backcast/internal/domain"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/marketdata"
	"github.com/quantsmith/backcast/internal/params"
	helpers "github.com/quantsmith/backcast/internal/testing"
)

// auditorFixture wires a cache over a compounding drift tape. At 1%/day any
// bullish call graded five business days later is both correct and
// profitable; tiny drifts land the forward return inside the correctness
// band.
type auditorFixture struct {
	cache *marketdata.PriceCache
}

func newDriftFixture(t *testing.T, dailyGain float64) *auditorFixture {
	t.Helper()
	db, cleanup := helpers.NewTestDB(t, "prices")
	t.Cleanup(cleanup)

	store, err := marketdata.NewBarStore(db, helpers.DisabledLogger())
	require.NoError(t, err)

	start := helpers.Day(t, "2024-01-01")
	helpers.InsertBars(t, db, "AAPL", helpers.Bars(start, helpers.TrendingCloses(30, 100, dailyGain)))

	return &auditorFixture{cache: marketdata.NewPriceCache(store, helpers.DisabledLogger())}
}

func newAuditorFixture(t *testing.T) *auditorFixture {
	t.Helper()
	return newDriftFixture(t, 0.01)
}

func (f *auditorFixture) state(t *testing.T, date time.Time) *graph.State {
	t.Helper()
	bar, err := f.cache.Bar("AAPL", date)
	require.NoError(t, err)
	return graph.NewState(date, []string{"AAPL"},
		domain.NewPortfolio(100000, 0.5, []string{"AAPL"}),
		map[string]float64{"AAPL": bar.Close}, f.cache, true)
}

func publishCall(t *testing.T, st *graph.State, analyst string, dir domain.Direction) {
	t.Helper()
	require.NoError(t, st.PublishSignals(analyst, domain.TickerSignals{
		"AAPL": {Direction: dir, Confidence: 80, Reasoning: "fixture call"},
	}))
}

func TestAuditorStartsAtHalf(t *testing.T) {
	a := NewAuditor(params.Default(), helpers.DisabledLogger())
	records := a.Records()
	require.Len(t, records, len(params.CoreAnalysts()))
	for name, rec := range records {
		assert.InDelta(t, 0.5, rec.Credibility, 0.001, "%s", name)
		assert.Zero(t, rec.TotalEvaluated, "%s", name)
	}
}

func TestAuditorGradesMaturedCalls(t *testing.T) {
	t.Run("correct profitable bullish call raises credibility", func(t *testing.T) {
		f := newAuditorFixture(t)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystMomentum, domain.DirectionBullish)
		require.NoError(t, a.Run(context.Background(), day1))

		// Five business days later the forward return is ~5.1%, clearing the
		// 2% correctness band.
		day2 := f.state(t, helpers.Day(t, "2024-02-09"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystMomentum]
		assert.Equal(t, 1, rec.CorrectSignals)
		assert.Equal(t, 1, rec.TotalEvaluated)
		assert.InDelta(t, 0.515, rec.Credibility, 0.001)
		assert.Equal(t, helpers.Day(t, "2024-02-09"), rec.LastUpdated)
	})

	t.Run("wrong bearish call lowers credibility", func(t *testing.T) {
		f := newAuditorFixture(t)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystMeanReversion, domain.DirectionBearish)
		require.NoError(t, a.Run(context.Background(), day1))

		day2 := f.state(t, helpers.Day(t, "2024-02-09"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystMeanReversion]
		assert.Equal(t, 1, rec.IncorrectSignals)
		assert.InDelta(t, 0.485, rec.Credibility, 0.001)
	})

	t.Run("small adverse move inside the band still penalizes", func(t *testing.T) {
		// Five business days of -0.05%/day drift: roughly -0.25% forward
		// return, inside the 2% correctness band, but still a losing call.
		f := newDriftFixture(t, -0.0005)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystMomentum, domain.DirectionBullish)
		require.NoError(t, a.Run(context.Background(), day1))

		day2 := f.state(t, helpers.Day(t, "2024-02-09"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystMomentum]
		assert.Zero(t, rec.CorrectSignals)
		assert.Zero(t, rec.IncorrectSignals)
		assert.Equal(t, 1, rec.TotalEvaluated)
		assert.InDelta(t, 0.49, rec.Credibility, 0.001, "profitability leg alone applies")
	})

	t.Run("small favorable move inside the band still rewards", func(t *testing.T) {
		f := newDriftFixture(t, 0.0005)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystMomentum, domain.DirectionBullish)
		require.NoError(t, a.Run(context.Background(), day1))

		day2 := f.state(t, helpers.Day(t, "2024-02-09"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystMomentum]
		assert.Zero(t, rec.CorrectSignals)
		assert.Equal(t, 1, rec.TotalEvaluated)
		assert.InDelta(t, 0.51, rec.Credibility, 0.001)
	})

	t.Run("immature call stays pending", func(t *testing.T) {
		f := newAuditorFixture(t)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystMomentum, domain.DirectionBullish)
		require.NoError(t, a.Run(context.Background(), day1))

		// Two business days is inside the five-day lookback.
		day2 := f.state(t, helpers.Day(t, "2024-02-06"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystMomentum]
		assert.Zero(t, rec.TotalEvaluated)
		assert.InDelta(t, 0.5, rec.Credibility, 0.001)
		assert.Len(t, a.pending, 1)
	})

	t.Run("neutral call is counted but never graded", func(t *testing.T) {
		f := newAuditorFixture(t)
		a := NewAuditor(params.Default(), helpers.DisabledLogger())

		day1 := f.state(t, helpers.Day(t, "2024-02-02"))
		publishCall(t, day1, params.AnalystValue, domain.DirectionNeutral)
		require.NoError(t, a.Run(context.Background(), day1))
		assert.Empty(t, a.pending)

		day2 := f.state(t, helpers.Day(t, "2024-02-09"))
		require.NoError(t, a.Run(context.Background(), day2))

		rec := a.Records()[params.AnalystValue]
		assert.Equal(t, 1, rec.NeutralSignals)
		assert.Zero(t, rec.TotalEvaluated)
		assert.InDelta(t, 0.5, rec.Credibility, 0.001)
	})
}

func TestAuditorPublishesCredibility(t *testing.T) {
	f := newAuditorFixture(t)
	a := NewAuditor(params.Default(), helpers.DisabledLogger())

	st := f.state(t, helpers.Day(t, "2024-02-02"))
	publishCall(t, st, params.AnalystMomentum, domain.DirectionBullish)
	require.NoError(t, a.Run(context.Background(), st))

	require.NotNil(t, st.AgentCredibility)
	assert.InDelta(t, 0.5, st.AgentCredibility[params.AnalystMomentum], 0.001)

	sig := st.SignalsFor(params.AnalystMomentum)["AAPL"]
	assert.InDelta(t, 0.5, sig.Extra["credibility"], 0.001)
}

func TestBusinessDaysBetween(t *testing.T) {
	fri := helpers.Day(t, "2024-03-01")
	testCases := []struct {
		name string
		to   string
		want int
	}{
		{name: "same day", to: "2024-03-01", want: 0},
		{name: "over a weekend", to: "2024-03-04", want: 1},
		{name: "full week", to: "2024-03-08", want: 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, businessDaysBetween(fri, helpers.Day(t, tc.to)))
		})
	}
}
