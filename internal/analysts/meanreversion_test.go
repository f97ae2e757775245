package analysts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantsmith/backcast/internal/domain"
	helpers "github.com/quantsmith/backcast/internal/testing"
)

// crashCloses holds flat then sells off hard, stretching price far below both
// moving averages with a depressed RSI.
func crashCloses() []float64 {
	closes := helpers.FlatCloses(50, 100)
	v := 100.0
	for i := 0; i < 15; i++ {
		v *= 0.97
		closes = append(closes, v)
	}
	return closes
}

// meltUpCloses rallies hard after a flat base.
func meltUpCloses() []float64 {
	closes := helpers.FlatCloses(50, 100)
	v := 100.0
	for i := 0; i < 15; i++ {
		v *= 1.03
		closes = append(closes, v)
	}
	return closes
}

func TestMeanReversionScore(t *testing.T) {
	a := NewMeanReversionAnalyst(helpers.DisabledLogger())

	t.Run("deep selloff reads bullish", func(t *testing.T) {
		sig := a.score(crashCloses())
		assert.Equal(t, domain.DirectionBullish, sig.Direction)
		assert.GreaterOrEqual(t, sig.Confidence, 50)
	})

	t.Run("melt-up reads bearish", func(t *testing.T) {
		sig := a.score(meltUpCloses())
		assert.Equal(t, domain.DirectionBearish, sig.Direction)
	})

	t.Run("flat series reads neutral", func(t *testing.T) {
		sig := a.score(helpers.FlatCloses(60, 100))
		assert.Equal(t, domain.DirectionNeutral, sig.Direction)
	})
}

func TestDeviationPoints(t *testing.T) {
	testCases := []struct {
		dev  float64
		want int
	}{
		{dev: 0.0, want: 0},
		{dev: 0.03, want: 1},
		{dev: 0.06, want: 2},
		{dev: 0.12, want: 3},
		{dev: -0.03, want: -1},
		{dev: -0.12, want: -3},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, deviationPoints(tc.dev, 0.02, 0.05, 0.10), "dev %.2f", tc.dev)
	}
}
