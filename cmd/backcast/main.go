// Package main is the entry point for the backcast engine: a deterministic
// day-by-day replay of the multi-strategy decision pipeline over historical
// price data.
//
// Stdout carries only the final summary; all logs, including the one
// invariant line per iteration, go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/backtest"
	"github.com/quantsmith/backcast/internal/config"
	"github.com/quantsmith/backcast/internal/di"
	"github.com/quantsmith/backcast/internal/server"
	"github.com/quantsmith/backcast/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		tickersFlag       = flag.String("tickers", "", "comma-separated ticker list (required)")
		startFlag         = flag.String("start-date", "", "first day of the run, YYYY-MM-DD (required)")
		endFlag           = flag.String("end-date", "", "last day of the run, YYYY-MM-DD (required)")
		initialCapital    = flag.Float64("initial-capital", 100000, "starting cash")
		marginRequirement = flag.Float64("margin-requirement", 0.5, "short margin requirement in [0, 1]")
		dataDirFlag       = flag.String("data-dir", "", "price CSV directory (overrides BACKCAST_DATA_DIR)")
		paramsFlag        = flag.String("params", "", "optional YAML engine parameter file")
		serveFlag         = flag.Bool("serve", false, "serve results over HTTP after the run")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: false})
	logger.SetGlobalLogger(log)

	runCfg, err := buildRunConfig(*tickersFlag, *startFlag, *endFlag,
		*initialCapital, *marginRequirement, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backcast: %v\n", err)
		flag.Usage()
		return 2
	}

	container, err := di.Wire(cfg, runCfg, *paramsFlag, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to wire engine")
		return 1
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := container.Driver.Run(ctx)
	summary.Write(os.Stdout)

	switch {
	case runErr == nil:
		// COMPLETE and LIQUIDATED both exit clean.
	case errors.Is(runErr, context.Canceled):
		log.Warn().Msg("Run interrupted")
		return 130
	default:
		var ef *backtest.EngineFailure
		if errors.As(runErr, &ef) {
			log.Error().Err(ef).Int("iteration", ef.Iteration).Msg("Run aborted")
		} else {
			log.Error().Err(runErr).Msg("Run aborted")
		}
		return 1
	}

	if *serveFlag {
		serveResults(ctx, cfg, container, summary, log)
	}
	return 0
}

func buildRunConfig(tickersCSV, start, end string, initialCapital, marginRequirement float64,
	cfg *config.Config) (backtest.Config, error) {

	if tickersCSV == "" {
		return backtest.Config{}, fmt.Errorf("--tickers is required")
	}
	var tickers []string
	for _, t := range strings.Split(tickersCSV, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return backtest.Config{}, fmt.Errorf("--tickers is empty")
	}

	startDate, err := time.ParseInLocation("2006-01-02", start, time.UTC)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("invalid --start-date %q: %w", start, err)
	}
	endDate, err := time.ParseInLocation("2006-01-02", end, time.UTC)
	if err != nil {
		return backtest.Config{}, fmt.Errorf("invalid --end-date %q: %w", end, err)
	}
	if endDate.Before(startDate) {
		return backtest.Config{}, fmt.Errorf("--end-date %s before --start-date %s", end, start)
	}
	if initialCapital <= 0 {
		return backtest.Config{}, fmt.Errorf("--initial-capital must be positive")
	}
	if marginRequirement < 0 || marginRequirement > 1 {
		return backtest.Config{}, fmt.Errorf("--margin-requirement must be in [0, 1]")
	}

	return backtest.Config{
		Tickers:           tickers,
		Start:             startDate,
		End:               endDate,
		InitialCapital:    initialCapital,
		MarginRequirement: marginRequirement,
		Deterministic:     cfg.Deterministic,
		Seed:              cfg.Seed,
	}, nil
}

// serveResults blocks serving the finished run until interrupted.
func serveResults(ctx context.Context, cfg *config.Config, container *di.Container,
	summary *backtest.Summary, log zerolog.Logger) {

	srv := server.New(server.Config{
		Log:     log,
		Port:    cfg.ServePort,
		Summary: summary,
		Rows:    container.Driver.Rows(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Results server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Results server shutdown failed")
	}
	<-done
}
