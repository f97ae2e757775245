package analysts

import (
	"fmt"
	"time"

	"github.com/quantsmith/backcast/internal/graph"
)

// subFactor is one scored component of a composite analyst.
type subFactor struct {
	name     string
	weight   float64
	score    float64
	maxScore float64
}

// weightedRatio folds sub-factors into the composite ratio in [0, 1].
func weightedRatio(factors []subFactor) float64 {
	num := 0.0
	den := 0.0
	for _, f := range factors {
		num += f.weight * f.score
		den += f.weight * f.maxScore
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// consistencyBonus rewards sub-factor agreement: when every normalized score
// sits close to the composite ratio, up to 10 extra confidence points.
func consistencyBonus(factors []subFactor, ratio float64) int {
	maxSpread := 0.0
	for _, f := range factors {
		if f.maxScore == 0 {
			continue
		}
		spread := f.score/f.maxScore - ratio
		if spread < 0 {
			spread = -spread
		}
		if spread > maxSpread {
			maxSpread = spread
		}
	}
	bonus := 10 * (1 - maxSpread/0.5)
	return clampInt(int(bonus), 0, 10)
}

// factorSummary renders sub-factors into the reasoning string.
func factorSummary(factors []subFactor) string {
	s := ""
	for i, f := range factors {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %.1f/%.0f", f.name, f.score, f.maxScore)
	}
	return s
}

// resolveMetrics returns fundamentals for a ticker, honoring the
// deterministic-mode guard: when the flag is set (or no external provider is
// wired), only the price proxy is consulted. An external provider error also
// falls back to the proxy so a flaky source degrades to a price-only signal
// instead of a data gap.
func resolveMetrics(external FundamentalsProvider, proxy *PriceProxyProvider,
	st *graph.State, ticker string, date time.Time) (Metrics, error) {
	if st.Deterministic || external == nil {
		return proxy.Metrics(ticker, date)
	}
	m, err := external.Metrics(ticker, date)
	if err != nil {
		return proxy.Metrics(ticker, date)
	}
	return m, nil
}
