package synth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	c := Linear(5, 100, 200)
	assert.Equal(t, []float64{100, 125, 150, 175, 200}, c)
	assert.Equal(t, []float64{7}, Linear(1, 7, 9))
	assert.Empty(t, Linear(0, 1, 2))
}

func TestTrendThenCrash(t *testing.T) {
	c := TrendThenCrash(3, 100, 150, 2, 80)
	assert.Equal(t, []float64{100, 125, 150, 115, 80}, c)
}

func TestRandomWalk_Deterministic(t *testing.T) {
	a := RandomWalk(50, 100, 0.001, 0.01, 42)
	b := RandomWalk(50, 100, 0.001, 0.01, 42)
	assert.Equal(t, a, b)
	assert.Equal(t, 100.0, a[0])
	for _, v := range a {
		assert.Greater(t, v, 0.0)
	}
}

func TestBars(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := Daily(Constant(3, 100), start)
	require.Len(t, bars, 3)
	assert.True(t, bars[2].TS.Equal(start.AddDate(0, 0, 2)))
	assert.InDelta(t, 100.1, bars[0].High, 1e-9)
	assert.InDelta(t, 99.9, bars[0].Low, 1e-9)
}
