package graph

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Kind classifies an agent's tier role.
type Kind string

const (
	// KindCore agents produce trade signals weighted by the portfolio manager.
	KindCore Kind = "core"
	// KindAdvisory agents publish context (regime, credibility), never direction.
	KindAdvisory Kind = "advisory"
	// KindSystem agents turn signals into sized, constraint-compliant orders.
	KindSystem Kind = "system"
)

// Agent is one node of the analyst graph. Run must be a pure function of the
// agent's declared inputs on the state: no scheduler-order dependence, no
// writes outside the agent's own slot.
type Agent interface {
	Name() string
	Kind() Kind
	Deps() []string
	Run(ctx context.Context, st *State) error
}

// Graph is the registered agent DAG with a deterministic execution order.
type Graph struct {
	agents []Agent
	byName map[string]Agent
	tiers  [][]Agent
	log    zerolog.Logger
}

// New builds a graph from the given agents. Registration order is preserved
// inside each tier so execution order is reproducible. Returns an error on
// unknown dependencies or cycles.
func New(agents []Agent, log zerolog.Logger) (*Graph, error) {
	g := &Graph{
		agents: agents,
		byName: make(map[string]Agent, len(agents)),
		log:    log.With().Str("component", "graph").Logger(),
	}

	for _, a := range agents {
		if _, dup := g.byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate agent %q", a.Name())
		}
		g.byName[a.Name()] = a
	}

	for _, a := range agents {
		for _, dep := range a.Deps() {
			if _, ok := g.byName[dep]; !ok {
				return nil, fmt.Errorf("agent %q depends on unknown agent %q", a.Name(), dep)
			}
		}
	}

	tiers, err := g.layer()
	if err != nil {
		return nil, err
	}
	g.tiers = tiers

	return g, nil
}

// layer computes topological tiers: an agent's tier is one past the deepest
// of its dependencies. Iterating agents in registration order per round keeps
// the layering deterministic.
func (g *Graph) layer() ([][]Agent, error) {
	depth := make(map[string]int, len(g.agents))
	resolved := 0

	for round := 0; round <= len(g.agents); round++ {
		progressed := false
		for _, a := range g.agents {
			if _, done := depth[a.Name()]; done {
				continue
			}
			max := -1
			ready := true
			for _, dep := range a.Deps() {
				d, ok := depth[dep]
				if !ok {
					ready = false
					break
				}
				if d > max {
					max = d
				}
			}
			if ready {
				depth[a.Name()] = max + 1
				resolved++
				progressed = true
			}
		}
		if resolved == len(g.agents) {
			break
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle among agents")
		}
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	tiers := make([][]Agent, maxDepth+1)
	for _, a := range g.agents {
		d := depth[a.Name()]
		tiers[d] = append(tiers[d], a)
	}
	return tiers, nil
}

// Tiers exposes the computed layering, leaves first.
func (g *Graph) Tiers() [][]Agent {
	return g.tiers
}

// AgentNames returns the registered agent names in registration order.
func (g *Graph) AgentNames() []string {
	names := make([]string, len(g.agents))
	for i, a := range g.agents {
		names[i] = a.Name()
	}
	return names
}

// StrategyFailure records one agent's failure during a day. Core and advisory
// failures leave the agent's slot empty and the day continues; a system-agent
// failure ends the day's pipeline early (no trades execute) but does not
// abort the run.
type StrategyFailure struct {
	Agent string
	Kind  Kind
	Err   error
	Stack string
}

// Execute runs one day of the graph: each tier's agents run concurrently and
// the driver joins on the whole tier before starting the next. Agent panics
// are recovered and recorded as strategy failures with their stack.
//
// The returned failures are informational; Execute itself only errors on
// context cancellation.
func (g *Graph) Execute(ctx context.Context, st *State) ([]StrategyFailure, error) {
	var failures []StrategyFailure

	for tierIdx, tier := range g.tiers {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		// A failed system agent breaks the pipeline: downstream sinks would
		// read a half-built state.
		if hasSystemFailure(failures) {
			break
		}

		results := make([]error, len(tier))
		eg, egCtx := errgroup.WithContext(ctx)
		for i, agent := range tier {
			i, agent := i, agent
			eg.Go(func() error {
				results[i] = runAgent(egCtx, agent, st)
				return nil
			})
		}
		// Goroutines only record into their own slot, so Wait never errors.
		_ = eg.Wait()

		for i, agent := range tier {
			if results[i] == nil {
				continue
			}
			failure := StrategyFailure{
				Agent: agent.Name(),
				Kind:  agent.Kind(),
				Err:   results[i],
				Stack: stackOf(results[i]),
			}
			failures = append(failures, failure)
			evt := g.log.Error().
				Str("agent", agent.Name()).
				Str("kind", string(agent.Kind())).
				Int("tier", tierIdx).
				Err(results[i])
			if failure.Stack != "" {
				evt = evt.Str("stack", failure.Stack)
			}
			evt.Msg("Strategy failure: agent slot left empty")
		}
	}

	return failures, nil
}

func hasSystemFailure(failures []StrategyFailure) bool {
	for _, f := range failures {
		if f.Kind == KindSystem {
			return true
		}
	}
	return false
}

// panicError carries a recovered panic with its stack.
type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func stackOf(err error) string {
	if p, ok := err.(*panicError); ok {
		return p.stack
	}
	return ""
}

// runAgent invokes one agent with panic recovery.
func runAgent(ctx context.Context, agent Agent, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return agent.Run(ctx, st)
}
