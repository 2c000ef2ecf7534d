package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradingDays(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestFindDrawdownsSingleRecovered(t *testing.T) {
	dates := tradingDays(5)
	values := []float64{100, 90, 80, 95, 110}

	dds := FindDrawdowns(dates, values)
	require.Len(t, dds, 1)

	dd := dds[0]
	assert.InDelta(t, 0.20, dd.Value, 1e-9)
	assert.Equal(t, dates[0], dd.StartDate)
	assert.InDelta(t, 100, dd.StartValue, 1e-9)
	assert.Equal(t, dates[2], dd.EndDate)
	assert.InDelta(t, 80, dd.EndValue, 1e-9)
	require.True(t, dd.Recovered)
	// 首个严格超过 100 的交易日
	assert.Equal(t, dates[4], dd.RecoveryDate)
}

func TestFindDrawdownsUnrecovered(t *testing.T) {
	dates := tradingDays(4)
	values := []float64{100, 110, 90, 95}

	dds := FindDrawdowns(dates, values)
	require.NotEmpty(t, dds)
	dd := dds[0]
	assert.InDelta(t, 20.0/110.0, dd.Value, 1e-9)
	assert.Equal(t, dates[1], dd.StartDate)
	assert.Equal(t, dates[2], dd.EndDate)
	assert.False(t, dd.Recovered)
}

func TestFindDrawdownsFlatSeries(t *testing.T) {
	dates := tradingDays(5)
	values := []float64{100, 100, 100, 100, 100}
	assert.Empty(t, FindDrawdowns(dates, values))
}

func TestFindDrawdownsMonotonicRise(t *testing.T) {
	dates := tradingDays(5)
	values := []float64{100, 101, 102, 103, 104}
	assert.Empty(t, FindDrawdowns(dates, values))
}

func TestFindDrawdownsTopThree(t *testing.T) {
	dates := tradingDays(13)
	// 倒序扫描只结算创新低的回撤段：94.5 的浅谷被后面的 88 掩盖，
	// 结果为 30%、20%、5% 三段，降序排列。
	values := []float64{
		100, 70, 105,
		105, 94.5, 110,
		110, 88, 120,
		120, 114, 130, 130,
	}
	dds := FindDrawdowns(dates, values)
	require.Len(t, dds, 3)
	assert.InDelta(t, 0.30, dds[0].Value, 1e-6)
	assert.InDelta(t, 0.20, dds[1].Value, 1e-6)
	assert.InDelta(t, 0.05, dds[2].Value, 1e-6)
}

func TestFindDrawdownsEmptyAndMismatched(t *testing.T) {
	assert.Nil(t, FindDrawdowns(nil, nil))
	assert.Nil(t, FindDrawdowns(tradingDays(3), []float64{1, 2}))
}

func TestFormatMaxDrawdown(t *testing.T) {
	assert.Equal(t, "N/A", FormatMaxDrawdown(nil))

	dates := tradingDays(5)
	values := []float64{100, 90, 80, 95, 110}
	got := FormatMaxDrawdown(FindDrawdowns(dates, values))
	assert.Equal(t, "20.00% (2024-01-01~2024-01-03, 恢复天数: 2天, 100.0000->80.0000)", got)
}

func TestDrawdownRegions(t *testing.T) {
	dates := tradingDays(5)
	values := []float64{100, 90, 80, 95, 110}

	regions := DrawdownRegions(dates, values, false)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, 1, r.Rank)
	assert.Equal(t, "回撤: 20.0000%(2 days)，修复：2 days", r.Label)
	assert.True(t, r.Recovered)
	assert.Equal(t, dates[4], r.RecoveryDate)

	// 归一化不改变回撤幅度
	normalized := DrawdownRegions(dates, values, true)
	require.Len(t, normalized, 1)
	assert.InDelta(t, 1.0, normalized[0].StartValue, 1e-9)
	assert.InDelta(t, 0.8, normalized[0].EndValue, 1e-9)
}
