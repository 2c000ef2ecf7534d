package scheduler

import (
	"testing"
	"time"

	"baofu/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 4H ", 4 * time.Hour, true},
		{"", 0, false},
		{"d", 0, false},
		{"0h", 0, false},
		{"1x", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestDropUnclosedDaily(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	points := []market.PricePoint{
		{Symbol: "FUND", Date: day1, Close: 100},
		{Symbol: "FUND", Date: day2, Close: 101},
	}

	// day2 还没收盘，被丢弃。
	midDay2 := day2.Add(12 * time.Hour)
	got := dropUnclosedDailyAt(points, midDay2, DefaultDailyCloseGrace)
	assert.Len(t, got, 1)

	// day2 收盘加宽限之后保留完整序列。
	after := day2.AddDate(0, 0, 1).Add(time.Minute)
	got = dropUnclosedDailyAt(points, after, DefaultDailyCloseGrace)
	assert.Len(t, got, 2)

	assert.Empty(t, dropUnclosedDailyAt(nil, midDay2, 0))
}

func TestNextTimes(t *testing.T) {
	s := &AlignedScheduler{Interval: 24 * time.Hour, Offset: 5 * time.Minute}
	now := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	nextClose, wakeAt, untilClose, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), nextClose)
	assert.Equal(t, nextClose.Add(5*time.Minute), wakeAt)
	assert.Equal(t, time.Hour, untilClose)
	assert.Equal(t, time.Hour+5*time.Minute, wait)
}
