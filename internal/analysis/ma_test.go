package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{200, 220, 180})
	require.Len(t, got, 3)
	assert.InDelta(t, 1.0, got[0], 1e-9)
	assert.InDelta(t, 1.1, got[1], 1e-9)
	assert.InDelta(t, 0.9, got[2], 1e-9)

	assert.Empty(t, Normalize(nil))
	assert.True(t, math.IsNaN(Normalize([]float64{0, 1})[0]))
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	// 窗口未满的点为 NaN
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
}

func TestMovingAverageTooShort(t *testing.T) {
	got := MovingAverage([]float64{1, 2}, 5)
	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
}

func TestMovingAverages(t *testing.T) {
	series := MovingAverages([]float64{1, 2, 3, 4, 5, 6}, []int{2, 3}, false)
	require.Len(t, series, 2)
	assert.Equal(t, "MA2", series[0].Name)
	assert.Equal(t, "MA3", series[1].Name)
	assert.Len(t, series[0].Values, 6)

	assert.Nil(t, MovingAverages(nil, []int{5}, false))
	assert.Nil(t, MovingAverages([]float64{1}, nil, false))
}
