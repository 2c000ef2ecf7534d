package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"baofu/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls  []fetchCall
	points map[string][]market.PricePoint
	errs   map[string]error
}

type fetchCall struct {
	symbol     string
	start, end time.Time
}

func (f *fakeSource) FetchDaily(_ context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	f.calls = append(f.calls, fetchCall{symbol: symbol, start: start, end: end})
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.points[symbol], nil
}

func newIngestStore(t *testing.T) *market.Store {
	t.Helper()
	store, err := market.NewStore(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpdaterIncrementalStart(t *testing.T) {
	store := newIngestStore(t)
	ctx := context.Background()
	existing := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertPrices(ctx, []market.PricePoint{
		{Symbol: "JPYCNH", Date: existing, Close: 0.048},
	}))

	now := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{points: map[string][]market.PricePoint{
		"JPYCNH": {
			{Symbol: "JPYCNH", Date: existing.AddDate(0, 0, 1), Close: 0.049},
			{Symbol: "JPYCNH", Date: existing.AddDate(0, 0, 2), Close: 0.050},
		},
	}}
	updater, err := NewUpdater(store, source, []string{"JPYCNH"})
	require.NoError(t, err)
	updater.nowFn = func() time.Time { return now }

	updater.RunOnce(ctx)

	require.Len(t, source.calls, 1)
	assert.Equal(t, "2024-01-11", source.calls[0].start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-15", source.calls[0].end.Format("2006-01-02"))

	latest, ok, err := store.LatestDate(ctx, "JPYCNH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-12", latest.Format("2006-01-02"))
}

func TestUpdaterBackfillWhenEmpty(t *testing.T) {
	store := newIngestStore(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	updater, err := NewUpdater(store, source, []string{"FUND"})
	require.NoError(t, err)
	updater.nowFn = func() time.Time { return now }

	updater.RunOnce(context.Background())

	require.Len(t, source.calls, 1)
	assert.Equal(t, now.AddDate(0, 0, -defaultBackfillDays), source.calls[0].start)
}

func TestUpdaterSkipsFailedSymbol(t *testing.T) {
	store := newIngestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{
		errs: map[string]error{"BAD": fmt.Errorf("boom")},
		points: map[string][]market.PricePoint{
			"GOOD": {{Symbol: "GOOD", Date: day, Close: 1.23}},
		},
	}
	updater, err := NewUpdater(store, source, []string{"BAD", "GOOD"})
	require.NoError(t, err)

	updater.RunOnce(ctx)

	// BAD 失败不阻塞 GOOD 的写入。
	_, ok, err := store.LatestDate(ctx, "GOOD")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = store.LatestDate(ctx, "BAD")
	require.NoError(t, err)
	assert.False(t, ok)
}
