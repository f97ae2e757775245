package graph

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsmith/backcast/internal/domain"
	helpers "github.com/quantsmith/backcast/internal/testing"
)

// stubAgent is a scriptable graph node for executor tests.
type stubAgent struct {
	name string
	kind Kind
	deps []string
	run  func(ctx context.Context, st *State) error
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) Kind() Kind   { return s.kind }
func (s *stubAgent) Deps() []string {
	return s.deps
}
func (s *stubAgent) Run(ctx context.Context, st *State) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, st)
}

func signalPublisher(name string, deps ...string) *stubAgent {
	return &stubAgent{
		name: name,
		kind: KindCore,
		deps: deps,
		run: func(ctx context.Context, st *State) error {
			return st.PublishSignals(name, domain.TickerSignals{
				"AAPL": domain.NeutralSignal(name + " ran"),
			})
		},
	}
}

func newTestState() *State {
	return NewState(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		[]string{"AAPL"}, domain.NewPortfolio(100000, 0.5, []string{"AAPL"}),
		map[string]float64{"AAPL": 100}, nil, true)
}

func TestGraphLayering(t *testing.T) {
	a := signalPublisher("a")
	b := signalPublisher("b")
	c := signalPublisher("c", "a", "b")
	d := signalPublisher("d", "c")

	g, err := New([]Agent{a, b, c, d}, helpers.DisabledLogger())
	require.NoError(t, err)

	tiers := g.Tiers()
	require.Len(t, tiers, 3)
	assert.Len(t, tiers[0], 2)
	assert.Equal(t, "c", tiers[1][0].Name())
	assert.Equal(t, "d", tiers[2][0].Name())
}

func TestGraphConstructionErrors(t *testing.T) {
	t.Run("duplicate agent", func(t *testing.T) {
		_, err := New([]Agent{signalPublisher("a"), signalPublisher("a")}, helpers.DisabledLogger())
		assert.ErrorContains(t, err, "duplicate agent")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := New([]Agent{signalPublisher("a", "ghost")}, helpers.DisabledLogger())
		assert.ErrorContains(t, err, "unknown agent")
	})

	t.Run("cycle", func(t *testing.T) {
		x := &stubAgent{name: "x", kind: KindCore, deps: []string{"y"}}
		y := &stubAgent{name: "y", kind: KindCore, deps: []string{"x"}}
		_, err := New([]Agent{x, y}, helpers.DisabledLogger())
		assert.ErrorContains(t, err, "cycle")
	})
}

func TestGraphExecute(t *testing.T) {
	t.Run("all agents publish their own slot", func(t *testing.T) {
		g, err := New([]Agent{signalPublisher("a"), signalPublisher("b"),
			signalPublisher("c", "a", "b")}, helpers.DisabledLogger())
		require.NoError(t, err)

		st := newTestState()
		failures, err := g.Execute(context.Background(), st)
		require.NoError(t, err)
		assert.Empty(t, failures)
		assert.Len(t, st.Signals(), 3)
	})

	t.Run("core failure leaves slot empty and day continues", func(t *testing.T) {
		broken := &stubAgent{name: "broken", kind: KindCore, run: func(ctx context.Context, st *State) error {
			return fmt.Errorf("no data feed")
		}}
		g, err := New([]Agent{broken, signalPublisher("ok"),
			signalPublisher("sink", "broken", "ok")}, helpers.DisabledLogger())
		require.NoError(t, err)

		st := newTestState()
		failures, err := g.Execute(context.Background(), st)
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.Equal(t, "broken", failures[0].Agent)
		assert.Equal(t, KindCore, failures[0].Kind)

		assert.Nil(t, st.SignalsFor("broken"))
		assert.NotNil(t, st.SignalsFor("ok"))
		assert.NotNil(t, st.SignalsFor("sink"), "downstream tier still runs")
	})

	t.Run("panic is recovered with stack", func(t *testing.T) {
		boom := &stubAgent{name: "boom", kind: KindCore, run: func(ctx context.Context, st *State) error {
			panic("index out of range")
		}}
		g, err := New([]Agent{boom}, helpers.DisabledLogger())
		require.NoError(t, err)

		failures, err := g.Execute(context.Background(), newTestState())
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.ErrorContains(t, failures[0].Err, "panic")
		assert.NotEmpty(t, failures[0].Stack)
	})

	t.Run("panic stack reaches the failure log", func(t *testing.T) {
		boom := &stubAgent{name: "boom", kind: KindCore, run: func(ctx context.Context, st *State) error {
			panic("index out of range")
		}}
		var logged bytes.Buffer
		g, err := New([]Agent{boom}, zerolog.New(&logged))
		require.NoError(t, err)

		_, err = g.Execute(context.Background(), newTestState())
		require.NoError(t, err)
		assert.Contains(t, logged.String(), `"stack"`)
		assert.Contains(t, logged.String(), "goroutine", "full traceback is emitted")
	})

	t.Run("system failure stops downstream tiers", func(t *testing.T) {
		sysBroken := &stubAgent{name: "sys", kind: KindSystem, run: func(ctx context.Context, st *State) error {
			return fmt.Errorf("bad fusion state")
		}}
		ran := false
		after := &stubAgent{name: "after", kind: KindSystem, deps: []string{"sys"},
			run: func(ctx context.Context, st *State) error {
				ran = true
				return nil
			}}
		g, err := New([]Agent{sysBroken, after}, helpers.DisabledLogger())
		require.NoError(t, err)

		failures, err := g.Execute(context.Background(), newTestState())
		require.NoError(t, err)
		require.Len(t, failures, 1)
		assert.False(t, ran, "tiers after a system failure must not run")
	})

	t.Run("cancellation aborts execution", func(t *testing.T) {
		g, err := New([]Agent{signalPublisher("a")}, helpers.DisabledLogger())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = g.Execute(ctx, newTestState())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStatePublishContract(t *testing.T) {
	st := newTestState()

	t.Run("double publish rejected", func(t *testing.T) {
		sig := domain.TickerSignals{"AAPL": domain.NeutralSignal("x")}
		require.NoError(t, st.PublishSignals("momentum", sig))
		assert.ErrorContains(t, st.PublishSignals("momentum", sig), "twice")
	})

	t.Run("invalid signal rejected", func(t *testing.T) {
		err := st.PublishSignals("bad", domain.TickerSignals{
			"AAPL": {Direction: "sideways", Confidence: 50, Reasoning: "x"},
		})
		assert.ErrorContains(t, err, "invalid")
	})

	t.Run("meta attaches without touching direction", func(t *testing.T) {
		st.AttachSignalMeta("momentum", "AAPL", "credibility", 0.7)
		sig := st.SignalsFor("momentum")["AAPL"]
		assert.InDelta(t, 0.7, sig.Extra["credibility"], 0.001)
		assert.Equal(t, domain.DirectionNeutral, sig.Direction)
	})
}
