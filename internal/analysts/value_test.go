package analysts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantsmith/backcast/internal/domain"
	helpers "github.com/quantsmith/backcast/internal/testing"
)

func strongMetrics() Metrics {
	return Metrics{
		GrowthRate:      0.08,
		EarningsGrowth:  0.10,
		Quality:         0.9,
		BalanceSheet:    0.9,
		EarningsQuality: 0.9,
		ValuationMargin: 0.35,
		PEGProxy:        1.0,
	}
}

func weakMetrics() Metrics {
	return Metrics{
		GrowthRate:      -0.20,
		EarningsGrowth:  -0.25,
		Quality:         0.1,
		BalanceSheet:    0.2,
		EarningsQuality: 0.1,
		ValuationMargin: -0.35,
		PEGProxy:        6.0,
	}
}

func TestValueScore(t *testing.T) {
	a := NewValueAnalyst(nil, nil, helpers.DisabledLogger())

	t.Run("cheap quality compounder is bullish", func(t *testing.T) {
		sig := a.score(strongMetrics())
		assert.Equal(t, domain.DirectionBullish, sig.Direction)
		assert.GreaterOrEqual(t, sig.Confidence, 20)
		assert.LessOrEqual(t, sig.Confidence, 100)
		assert.Greater(t, sig.Extra["margin_of_safety"], 0.2)
	})

	t.Run("expensive deteriorating business is bearish", func(t *testing.T) {
		sig := a.score(weakMetrics())
		assert.Equal(t, domain.DirectionBearish, sig.Direction)
	})

	t.Run("middling metrics are neutral", func(t *testing.T) {
		m := strongMetrics()
		m.ValuationMargin = 0.05 // good business, no margin of safety
		sig := a.score(m)
		assert.Equal(t, domain.DirectionNeutral, sig.Direction)
	})
}

func TestGrowthScore(t *testing.T) {
	a := NewGrowthAnalyst(nil, nil, helpers.DisabledLogger())

	t.Run("fast cheap growth is bullish", func(t *testing.T) {
		m := strongMetrics()
		m.GrowthRate = 0.30
		m.EarningsGrowth = 0.30
		m.PEGProxy = 0.5
		sig := a.score(m)
		assert.Equal(t, domain.DirectionBullish, sig.Direction)
	})

	t.Run("shrinking business is bearish", func(t *testing.T) {
		sig := a.score(weakMetrics())
		assert.Equal(t, domain.DirectionBearish, sig.Direction)
	})
}

func TestValuationScore(t *testing.T) {
	a := NewValuationAnalyst(nil, nil, helpers.DisabledLogger())

	t.Run("wide gap is bullish", func(t *testing.T) {
		sig := a.score(strongMetrics())
		assert.Equal(t, domain.DirectionBullish, sig.Direction)
	})

	t.Run("negative gap is bearish", func(t *testing.T) {
		sig := a.score(weakMetrics())
		assert.Equal(t, domain.DirectionBearish, sig.Direction)
	})

	t.Run("neutral confidence stays capped", func(t *testing.T) {
		m := strongMetrics()
		m.ValuationMargin = 0.05
		sig := a.score(m)
		assert.Equal(t, domain.DirectionNeutral, sig.Direction)
		assert.LessOrEqual(t, sig.Confidence, 60)
	})
}

func TestWeightedRatio(t *testing.T) {
	factors := []subFactor{
		{weight: 0.5, score: 10, maxScore: 10},
		{weight: 0.5, score: 0, maxScore: 10},
	}
	assert.InDelta(t, 0.5, weightedRatio(factors), 0.001)
	assert.InDelta(t, 0, weightedRatio(nil), 0.001)
}

func TestConsistencyBonus(t *testing.T) {
	aligned := []subFactor{
		{weight: 0.5, score: 7, maxScore: 10},
		{weight: 0.5, score: 7, maxScore: 10},
	}
	split := []subFactor{
		{weight: 0.5, score: 10, maxScore: 10},
		{weight: 0.5, score: 0, maxScore: 10},
	}
	assert.Equal(t, 10, consistencyBonus(aligned, 0.7))
	assert.Equal(t, 0, consistencyBonus(split, 0.5))
}
