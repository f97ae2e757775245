package backtest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/quantsmith/backcast/internal/domain"
)

// Summary is the run-level result block, printed to stdout at the end of
// every run regardless of how it ended.
type Summary struct {
	RunID             string                              `json:"run_id"`
	State             RunState                            `json:"state"`
	Tickers           []string                            `json:"tickers"`
	Start             time.Time                           `json:"start"`
	End               time.Time                           `json:"end"`
	InitialCapital    float64                             `json:"initial_capital"`
	FinalValue        float64                             `json:"final_value"`
	DaysProcessed     int                                 `json:"days_processed"`
	DaysSkipped       int                                 `json:"days_skipped"`
	TradesExecuted    int                                 `json:"trades_executed"`
	StrategyFailures  int                                 `json:"strategy_failures"`
	Metrics           Metrics                             `json:"metrics"`
	Credibility       map[string]domain.CredibilityRecord `json:"credibility"`
	ParamsFingerprint string                              `json:"params_fingerprint"`
	OutputHash        string                              `json:"output_hash"`
	FailureReason     string                              `json:"failure_reason,omitempty"`
}

// outputHash is the determinism fingerprint: MD5 over the concatenation of
// "{date}:{value:.2f}:{n}" for every processed iteration in order. Two runs
// with identical inputs must produce identical hashes.
func outputHash(dates []time.Time, values []float64) string {
	h := md5.New()
	for i := range dates {
		fmt.Fprintf(h, "%s:%.2f:%d", dates[i].Format("2006-01-02"), values[i], i)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Write renders the human-readable summary table.
func (s *Summary) Write(w io.Writer) {
	line := strings.Repeat("=", 64)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "BACKCAST RUN %s\n", s.RunID)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "State:             %s\n", s.State)
	if s.FailureReason != "" {
		fmt.Fprintf(w, "Failure:           %s\n", s.FailureReason)
	}
	fmt.Fprintf(w, "Tickers:           %s\n", strings.Join(s.Tickers, ", "))
	fmt.Fprintf(w, "Period:            %s -> %s\n",
		s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))
	fmt.Fprintf(w, "Days processed:    %d (skipped %d)\n", s.DaysProcessed, s.DaysSkipped)
	fmt.Fprintf(w, "Initial capital:   $%.2f\n", s.InitialCapital)
	fmt.Fprintf(w, "Final value:       $%.2f\n", s.FinalValue)
	fmt.Fprintf(w, "Total return:      %.2f%%\n", s.Metrics.TotalReturnPct)
	fmt.Fprintf(w, "Annualized:        %.2f%%\n", s.Metrics.AnnualizedReturnPct)
	fmt.Fprintf(w, "Sharpe:            %.2f\n", s.Metrics.Sharpe)
	fmt.Fprintf(w, "Sortino:           %.2f\n", s.Metrics.Sortino)
	fmt.Fprintf(w, "Max drawdown:      %.2f%%\n", s.Metrics.MaxDrawdownPct)
	fmt.Fprintf(w, "Win rate:          %.1f%% (W/L %.2f)\n", s.Metrics.WinRatePct, s.Metrics.WinLossRatio)
	fmt.Fprintf(w, "Trades executed:   %d\n", s.TradesExecuted)
	fmt.Fprintf(w, "Strategy failures: %d\n", s.StrategyFailures)

	if len(s.Credibility) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 64))
		fmt.Fprintln(w, "Analyst credibility:")
		names := make([]string, 0, len(s.Credibility))
		for name := range s.Credibility {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rec := s.Credibility[name]
			fmt.Fprintf(w, "  %-18s %.3f (%d correct / %d incorrect / %d neutral of %d)\n",
				name, rec.Credibility, rec.CorrectSignals, rec.IncorrectSignals,
				rec.NeutralSignals, rec.TotalEvaluated)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 64))
	fmt.Fprintf(w, "Params fingerprint: %s\n", s.ParamsFingerprint)
	fmt.Fprintf(w, "Output hash:        %s\n", s.OutputHash)
	fmt.Fprintln(w, line)
}
