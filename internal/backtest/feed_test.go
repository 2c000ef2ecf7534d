package backtest

import (
	"testing"
	"time"

	"baofu/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := market.ParseDay(s)
	require.NoError(t, err)
	return d
}

func makeSeries(symbol, start string, closes []float64) market.Series {
	first, _ := market.ParseDay(start)
	series := make(market.Series, len(closes))
	for i, c := range closes {
		series[i] = market.PricePoint{
			Symbol: symbol,
			Date:   first.AddDate(0, 0, i),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
		}
	}
	return series
}

func TestFeedAccessors(t *testing.T) {
	feed := NewFeed("fund_a", makeSeries("FUND_A", "2024-01-01", []float64{100, 110, 120}), nil)

	assert.Equal(t, "FUND_A", feed.Name())
	assert.Equal(t, 3, feed.Len())

	bar, ok := feed.At(day(t, "2024-01-02"))
	require.True(t, ok)
	assert.Equal(t, 110.0, bar.Close)

	_, ok = feed.At(day(t, "2024-01-05"))
	assert.False(t, ok)

	// Latest 向前取最近交易日。
	bar, ok = feed.Latest(day(t, "2024-01-05"))
	require.True(t, ok)
	assert.Equal(t, 120.0, bar.Close)

	_, ok = feed.Latest(day(t, "2023-12-31"))
	assert.False(t, ok)

	// Next 取严格之后的首个交易日。
	bar, ok = feed.Next(day(t, "2024-01-01"))
	require.True(t, ok)
	assert.Equal(t, 110.0, bar.Close)

	_, ok = feed.Next(day(t, "2024-01-03"))
	assert.False(t, ok)

	first, ok := feed.FirstDate()
	require.True(t, ok)
	assert.Equal(t, day(t, "2024-01-01"), first)
	last, ok := feed.LastDate()
	require.True(t, ok)
	assert.Equal(t, day(t, "2024-01-03"), last)
}

func TestFeedMovingAverageExtras(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	feed := NewFeed("fund", makeSeries("FUND", "2024-01-01", closes), []int{3})

	bars := feed.Bars()
	// 窗口未满时取占位值。
	assert.Equal(t, float64(MissingExtra), bars[0].Extra["MA3"])
	assert.Equal(t, float64(MissingExtra), bars[1].Extra["MA3"])
	assert.InDelta(t, 2.0, bars[2].Extra["MA3"], 1e-9)
	assert.InDelta(t, 4.0, bars[4].Extra["MA3"], 1e-9)
}

func TestFeedSet(t *testing.T) {
	a := NewFeed("a", makeSeries("A", "2024-01-01", []float64{1}), nil)
	b := NewFeed("b", makeSeries("B", "2024-01-01", []float64{2}), nil)

	set, err := NewFeedSet(a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, set.Names())
	assert.Same(t, a, set.Primary())

	got, ok := set.Get("  a ")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, err = NewFeedSet(a, NewFeed("A", makeSeries("A", "2024-01-01", []float64{1}), nil))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = NewFeedSet()
	assert.True(t, IsConfigError(err))
}
