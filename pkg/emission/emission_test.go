package emission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/libertai/ltai-points/pkg/emission"
)

func TestScoreMultiplierBands(t *testing.T) {
	assert.Equal(t, 0.0, emission.ScoreMultiplier(0))
	assert.Equal(t, 0.0, emission.ScoreMultiplier(0.19))
	assert.Equal(t, 1.0, emission.ScoreMultiplier(0.8))
	assert.Equal(t, 1.0, emission.ScoreMultiplier(0.95))

	// Continuity at both boundaries.
	assert.InDelta(t, 0.0, emission.ScoreMultiplier(0.2), 1e-9)
	assert.InDelta(t, 1.0, emission.ScoreMultiplier(0.8-1e-9), 1e-6)

	// Linear in between.
	assert.InDelta(t, 0.5, emission.ScoreMultiplier(0.5), 1e-9)
	assert.InDelta(t, 1.0/6, emission.ScoreMultiplier(0.3), 1e-9)
}

func TestScoreMultiplierClamped(t *testing.T) {
	for _, score := range []float64{-1, 0, 0.21, 0.5, 0.79, 1, 2} {
		m := emission.ScoreMultiplier(score)
		assert.GreaterOrEqual(t, m, 0.0, "score %v", score)
		assert.LessOrEqual(t, m, 1.0, "score %v", score)
	}
}

func TestHoldingMultiplier(t *testing.T) {
	assert.Equal(t, 0.0, emission.HoldingMultiplier(0))
	assert.Equal(t, 0.0, emission.HoldingMultiplier(0.39))

	// Penalized band.
	assert.InDelta(t, 1-0.70710678, emission.HoldingMultiplier(0.4), 1e-6)

	// Full band.
	assert.Equal(t, 1.0, emission.HoldingMultiplier(0.9))
	assert.Equal(t, 1.0, emission.HoldingMultiplier(0.95))
	assert.Equal(t, 1.0, emission.HoldingMultiplier(1.0))

	// Accumulator premium.
	assert.InDelta(t, 1.5, emission.HoldingMultiplier(2.0), 1e-9)
}

func TestHoldingMultiplierContinuity(t *testing.T) {
	// Approaching 0.9 from below tends to 1.
	assert.InDelta(t, 1.0, emission.HoldingMultiplier(0.9-1e-10), 1e-4)
	// Approaching 1 from above tends to 1.
	assert.InDelta(t, 1.0, emission.HoldingMultiplier(1+1e-10), 1e-4)
}

func TestDecay(t *testing.T) {
	assert.Equal(t, 1.0, emission.Decay(0, 0.99722))
	assert.InDelta(t, 0.99722, emission.Decay(1, 0.99722), 1e-12)
	// Compounding: a year shrinks the budget to about 36%.
	assert.InDelta(t, 0.3617, emission.Decay(365, 0.99722), 1e-3)
}

func TestBonusMultiplier(t *testing.T) {
	assert.InDelta(t, 1.5, emission.BonusMultiplier(1.5, 365, 0), 1e-9)
	assert.Equal(t, 1.0, emission.BonusMultiplier(1.5, 365, 365))
	assert.Equal(t, 1.0, emission.BonusMultiplier(1.5, 365, 1000))
	// Linear in between.
	assert.InDelta(t, 1.25, emission.BonusMultiplier(1.5, 365, 182.5), 1e-9)
	// Clamped before program start.
	assert.InDelta(t, 1.5, emission.BonusMultiplier(1.5, 365, -3), 1e-9)
}
