// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/advisory"
	"github.com/quantsmith/backcast/internal/allocation"
	"github.com/quantsmith/backcast/internal/analysts"
	"github.com/quantsmith/backcast/internal/backtest"
	"github.com/quantsmith/backcast/internal/config"
	"github.com/quantsmith/backcast/internal/database"
	"github.com/quantsmith/backcast/internal/execution"
	"github.com/quantsmith/backcast/internal/graph"
	"github.com/quantsmith/backcast/internal/manager"
	"github.com/quantsmith/backcast/internal/marketdata"
	"github.com/quantsmith/backcast/internal/params"
	"github.com/quantsmith/backcast/internal/riskbudget"
)

// Container holds the fully wired engine for one run.
type Container struct {
	DB      *database.DB
	Store   *marketdata.BarStore
	Cache   *marketdata.PriceCache
	Params  *params.Params
	Graph   *graph.Graph
	Auditor *advisory.Auditor
	Driver  *backtest.Driver
}

// Close releases held resources.
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Wire initializes the engine bottom-up: storage, market data, agents, graph,
// driver. Order matters: the auditor instance registered in the graph is the
// same one the driver reads credibility records from.
func Wire(cfg *config.Config, run backtest.Config, paramsPath string, log zerolog.Logger) (*Container, error) {
	p, err := params.Load(paramsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}

	db, err := database.New(database.Config{Path: cfg.PricesDBPath, Name: "prices"})
	if err != nil {
		return nil, fmt.Errorf("failed to open prices database: %w", err)
	}

	store, err := marketdata.NewBarStore(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bar store: %w", err)
	}

	if err := store.ImportDir(cfg.DataDir, run.Tickers); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to import price data: %w", err)
	}

	cache := marketdata.NewPriceCache(store, log)

	proxy := analysts.NewPriceProxyProvider(cache)
	auditor := advisory.NewAuditor(p, log)

	// Fundamentals providers beyond the price proxy plug in here; the
	// deterministic flag forces the proxy regardless.
	var fundamentals analysts.FundamentalsProvider

	agents := []graph.Agent{
		analysts.NewValueAnalyst(fundamentals, proxy, log),
		analysts.NewGrowthAnalyst(fundamentals, proxy, log),
		analysts.NewValuationAnalyst(fundamentals, proxy, log),
		analysts.NewMomentumAnalyst(log),
		analysts.NewMeanReversionAnalyst(log),
		advisory.NewRegimeClassifier(log),
		auditor,
		manager.New(p, log),
		riskbudget.New(p, log),
		allocation.New(p, log),
	}

	g, err := graph.New(agents, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build agent graph: %w", err)
	}

	executor := execution.New(p, run.InitialCapital, log)
	driver := backtest.NewDriver(run, p, cache, g, auditor, executor, log)

	log.Info().Int("agents", len(agents)).Msg("Dependency wiring completed")

	return &Container{
		DB:      db,
		Store:   store,
		Cache:   cache,
		Params:  p,
		Graph:   g,
		Auditor: auditor,
		Driver:  driver,
	}, nil
}
