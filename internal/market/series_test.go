package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestWithAdjustedNav(t *testing.T) {
	series := Series{
		{Date: day("2024-01-02"), Close: 1.00},
		{Date: day("2024-01-03"), Close: 1.05},
		{Date: day("2024-01-04"), Close: 1.00, Dividend: 0.05},
		{Date: day("2024-01-05"), Close: 1.02},
	}
	adj := series.WithAdjustedNav()
	require.Len(t, adj, 4)
	assert.InDelta(t, 1.00, adj[0].AdjNav, 1e-9)
	assert.InDelta(t, 1.05, adj[1].AdjNav, 1e-9)
	// 分红日因子 = (1.05+0.05)/1.05
	factor := (1.05 + 0.05) / 1.05
	assert.InDelta(t, 1.00*factor, adj[2].AdjNav, 1e-9)
	assert.InDelta(t, 1.02*factor, adj[3].AdjNav, 1e-9)
	// 原序列不被修改
	assert.Zero(t, series[2].AdjNav)
}

func TestWithAdjustedNavNoDividend(t *testing.T) {
	series := Series{
		{Date: day("2024-01-02"), Close: 2.0},
		{Date: day("2024-01-03"), Close: 2.1},
	}
	adj := series.WithAdjustedNav()
	assert.InDelta(t, 2.0, adj[0].AdjNav, 1e-9)
	assert.InDelta(t, 2.1, adj[1].AdjNav, 1e-9)
}

func TestPctChange(t *testing.T) {
	got := PctChange([]float64{100, 110, 99})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.10, got[0], 1e-9)
	assert.InDelta(t, -0.10, got[1], 1e-9)

	assert.Nil(t, PctChange([]float64{100}))
}

func TestSeriesBetween(t *testing.T) {
	series := Series{
		{Date: day("2024-01-02"), Close: 1},
		{Date: day("2024-01-03"), Close: 2},
		{Date: day("2024-01-04"), Close: 3},
	}
	got := series.Between(day("2024-01-03"), time.Time{})
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-01-03"), got[0].Date)

	got = series.Between(time.Time{}, day("2024-01-03"))
	require.Len(t, got, 2)
	assert.Equal(t, day("2024-01-02"), got[0].Date)
}
