package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBasicIndicators(t *testing.T) {
	dates := []time.Time{
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	values := []float64{100, 105, 110}

	ind, ok := ComputeBasicIndicators(dates, values)
	require.True(t, ok)
	assert.InDelta(t, 10.0, ind.ReturnRate, 1e-9)
	assert.Equal(t, 365, ind.Days)
	assert.InDelta(t, 10.0, ind.Annualized, 1e-9)
	assert.InDelta(t, 100.0, ind.FirstValue, 1e-9)
	assert.InDelta(t, 110.0, ind.LastValue, 1e-9)
	assert.Equal(t, "N/A", ind.MaxDrawdown)
	assert.Greater(t, ind.Volatility, 0.0)
}

func TestComputeBasicIndicatorsEmpty(t *testing.T) {
	_, ok := ComputeBasicIndicators(nil, nil)
	assert.False(t, ok)
	_, ok = ComputeBasicIndicators([]time.Time{time.Now()}, nil)
	assert.False(t, ok)
}

func TestAnnualizeZeroDays(t *testing.T) {
	assert.Zero(t, annualize(10, 0))
	assert.Zero(t, annualize(10, -3))
}

func TestAnnualVolatility(t *testing.T) {
	// 涨跌幅 +10%、-10%：样本标准差 = sqrt(0.02)
	got := annualVolatility([]float64{100, 110, 99})
	want := math.Sqrt(0.02) * math.Sqrt(252) * 100
	assert.InDelta(t, want, got, 1e-9)

	assert.Zero(t, annualVolatility([]float64{100, 110}))
	assert.Zero(t, annualVolatility([]float64{100}))
}

// periodSeries 生成跨两个年度的日度序列：2023 年 12 月 10 个交易日，
// 2024 年 1 月 10 个交易日。
func periodSeries() ([]time.Time, []float64) {
	var dates []time.Time
	var values []float64
	for i := 0; i < 10; i++ {
		dates = append(dates, time.Date(2023, 12, 11+i, 0, 0, 0, 0, time.UTC))
		values = append(values, 100+float64(i))
	}
	for i := 0; i < 10; i++ {
		dates = append(dates, time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC))
		values = append(values, 110+float64(i))
	}
	return dates, values
}

func TestYearlyStats(t *testing.T) {
	dates, values := periodSeries()
	stats := YearlyStats(dates, values, 7)
	require.Len(t, stats, 2)

	// 降序：2024 在前
	assert.Equal(t, "2024 (2023-12-20~2024-01-11)", stats[0].Label)
	// 2024 起点为 2023 年最后一个交易日的值 109
	assert.InDelta(t, (119.0-109.0)/109.0*100, stats[0].ReturnRate, 1e-9)

	// 最早年度以当年首日为起点
	assert.Equal(t, "2023 (2023-12-11~2023-12-20)", stats[1].Label)
	assert.InDelta(t, 9.0, stats[1].ReturnRate, 1e-9)
}

func TestYearlyStatsSkipsShortPeriods(t *testing.T) {
	dates, values := periodSeries()
	// 提高样本门槛到 15，两个年度都不足。
	assert.Empty(t, YearlyStats(dates, values, 15))
}

func TestQuarterlyStats(t *testing.T) {
	dates, values := periodSeries()
	stats := QuarterlyStats(dates, values, 7)
	require.Len(t, stats, 2)
	assert.Equal(t, "2024Q1 (2023-12-20~2024-01-11)", stats[0].Label)
	assert.Equal(t, "2023Q4 (2023-12-11~2023-12-20)", stats[1].Label)
}

func TestPeriodStatsEmpty(t *testing.T) {
	assert.Nil(t, YearlyStats(nil, nil, 7))
	assert.Nil(t, QuarterlyStats(nil, nil, 7))
}
