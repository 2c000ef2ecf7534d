package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"baofu/internal/config"
	"baofu/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *market.Store {
	t.Helper()
	store, err := market.NewStore(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTaskRunBuyAndHold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertPrices(ctx, makeSeries("FUND", "2024-01-01", []float64{100, 110, 121})))

	task := NewTask(store, config.BacktestConfig{})
	params, err := ParseStrategyParams(`{"type":"buy_and_hold","products":["FUND"],"weights":[1.0]}`)
	require.NoError(t, err)

	result, err := task.Run(ctx, "测试回测", params, 1_000_000)
	require.NoError(t, err)
	require.True(t, result.IsSuccess)
	assert.Equal(t, "测试回测", result.StrategyName)
	assert.Equal(t, StrategyBuyAndHold, result.StrategyType)
	assert.Equal(t, "2024-01-01", result.StartDate.Format("2006-01-02"))
	assert.Equal(t, "2024-01-03", result.EndDate.Format("2006-01-02"))
	assert.InDelta(t, 1_000_000, result.InitialValue, 1e-9)
	assert.InDelta(t, 1_210_000, result.FinalValue, 1e-6)
	assert.InDelta(t, 21.0, result.ReturnRate, 1e-6)
	require.Len(t, result.DailyAssets, 3)
	require.Len(t, result.Trades, 1)
}

func TestTaskRunLoadsBondRates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertPrices(ctx, makeSeries("FUND", "2024-01-01", []float64{100, 100})))
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertBondRates(ctx, []market.BondRate{
		{Currency: "CN10Y", Date: first, Rate: 3.66},
		{Currency: "CN10Y", Date: first.AddDate(0, 0, 1), Rate: 3.66},
	}))

	task := NewTask(store, config.BacktestConfig{})
	params, err := ParseStrategyParams(`{
		"type": "buy_and_hold",
		"products": ["FUND"],
		"weights": [1.0],
		"current_rate": {"CNY": "CN10Y"}
	}`)
	require.NoError(t, err)

	result, err := task.Run(ctx, "计息回测", params, 1_000_000)
	require.NoError(t, err)
	require.True(t, result.IsSuccess)
	// 全部现金买入产品，现金为 0，利息为 0 但扩展正常走完。
	assert.Contains(t, result.CurrencyInterests, "CNY")
}

func TestTaskRunMissingSymbol(t *testing.T) {
	store := newTestStore(t)
	task := NewTask(store, config.BacktestConfig{})
	params, err := ParseStrategyParams(`{"type":"buy_and_hold","products":["NOPE"],"weights":[1.0]}`)
	require.NoError(t, err)

	_, err = task.Run(context.Background(), "缺数据", params, 1_000_000)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "NOPE")
}

func TestResultStoreRoundTrip(t *testing.T) {
	results, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer results.Close()
	ctx := context.Background()

	run := NewRun("回测一", "描述", StrategyBuyAndHold, `{"type":"buy_and_hold"}`, 1_000_000)
	require.NoError(t, results.InsertRun(ctx, run))

	got, err := results.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, "回测一", got.Name)

	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	result := &Result{
		IsSuccess:  true,
		StartDate:  d1,
		EndDate:    d2,
		FinalValue: 1_050_000,
		ReturnRate: 5,
		DailyAssets: []DailyAsset{
			{Date: d1, Cash: 0, Asset: 1_000_000, Total: 1_000_000, Products: map[string]float64{"FUND": 1_000_000}},
			{Date: d2, Cash: 0, Asset: 1_050_000, Total: 1_050_000, FinancingValue: 123},
		},
		Trades: []Trade{
			{ID: 1, Date: d1, Product: "FUND", Action: TradeActionBuy, Size: 100, Price: 10000, Value: 1_000_000, Status: TradeStatusCompleted, Message: "建仓买入"},
		},
		FinancingTrades: []FinancingTrade{
			{ID: 1, Date: d1, Product: "JPYCNH", Type: "financing_open", Amount: 500_000, Shares: 10_000_000, Price: 0.05, Rate: 0.01843, Status: TradeStatusCompleted},
		},
	}
	require.NoError(t, results.SaveResult(ctx, run.ID, result))

	got, err = results.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.InDelta(t, 1_050_000, got.FinalValue, 1e-9)
	assert.Equal(t, 2, got.Snapshots)
	assert.Equal(t, 1, got.Trades)
	assert.Equal(t, "2024-01-01", got.StartDate.Format("2006-01-02"))

	snaps, err := results.ListSnapshots(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, map[string]float64{"FUND": 1_000_000}, snaps[0].Products)
	assert.InDelta(t, 123, snaps[1].FinancingValue, 1e-9)

	trades, err := results.ListTrades(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "建仓买入", trades[0].Message)

	finTrades, err := results.ListFinancingTrades(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, finTrades, 1)
	assert.InDelta(t, 0.01843, finTrades[0].Rate, 1e-9)

	runs, err := results.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	require.NoError(t, results.DeleteRun(ctx, run.ID))
	require.Error(t, results.DeleteRun(ctx, run.ID))
}

func TestRunnerStartRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertPrices(ctx, makeSeries("FUND", "2024-01-01", []float64{100, 110})))

	results, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer results.Close()

	runner, err := NewRunner(RunnerConfig{
		Task:    NewTask(store, config.BacktestConfig{}),
		Results: results,
	})
	require.NoError(t, err)

	_, err = runner.StartRun(RunRequest{Name: "", Params: `{"type":"buy_and_hold"}`})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	run, err := runner.StartRun(RunRequest{
		Name:        "后台回测",
		Params:      `{"type":"buy_and_hold","products":["FUND"],"weights":[1.0]}`,
		InitialCash: 1_000_000,
	})
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, run.Status)

	require.Eventually(t, func() bool {
		got, err := results.GetRun(ctx, run.ID)
		return err == nil && got.Status == RunStatusDone
	}, 5*time.Second, 20*time.Millisecond)

	got, err := results.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1_100_000, got.FinalValue, 1e-6)
	assert.InDelta(t, 10, got.ReturnRate, 1e-6)
}
