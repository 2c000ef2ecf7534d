package report

import (
	"testing"
	"time"

	"baofu/internal/backtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshots() []backtest.DailyAsset {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	totals := []float64{1_000_000, 900_000, 800_000, 950_000, 1_100_000}
	out := make([]backtest.DailyAsset, len(totals))
	for i, total := range totals {
		out[i] = backtest.DailyAsset{
			Date:     first.AddDate(0, 0, i),
			Cash:     0,
			Asset:    total,
			Total:    total,
			Products: map[string]float64{"FUND_A": total},
		}
	}
	return out
}

func sampleRun() backtest.Run {
	return backtest.Run{
		ID:          "run-1",
		Name:        "组合一",
		Description: "买入持有测试",
	}
}

func TestSummary(t *testing.T) {
	g := NewGenerator(sampleRun(), sampleSnapshots(), nil, 1)
	summary := g.Summary()
	require.Len(t, summary, 5)
	assert.Equal(t, "策略ID", summary[0].Label)
	assert.Equal(t, "run-1", summary[0].Value)
	assert.Equal(t, "2024-01-01 ~ 2024-01-05", summary[3].Value)
	assert.Equal(t, "+10.00% (¥1,000,000.00 -> ¥1,100,000.00)", summary[4].Value)
}

func TestChartSeries(t *testing.T) {
	g := NewGenerator(sampleRun(), sampleSnapshots(), nil, 1)
	chart := g.Chart([]int{3}, true)
	require.GreaterOrEqual(t, len(chart), 4)

	assert.Equal(t, "总资产", chart[0].Name)
	assert.Equal(t, "true", chart[0].Visible)
	require.Len(t, chart[0].X, 5)
	assert.Equal(t, "2024-01-01", chart[0].X[0])

	assert.Equal(t, "现金", chart[1].Name)
	assert.Equal(t, "legendonly", chart[1].Visible)

	assert.Equal(t, "产品FUND_A", chart[2].Name)

	assert.Equal(t, "MA3", chart[3].Name)
	assert.True(t, chart[3].Dash)

	// 回撤区域附带时长与修复说明。
	var region *Series
	for i := range chart {
		if chart[i].Name == "TOP1 回撤" {
			region = &chart[i]
			break
		}
	}
	require.NotNil(t, region)
	assert.Equal(t, "回撤: 20.0000%(2 days)，修复：2 days", region.Text)
	assert.Equal(t, []Value{1_000_000, 1_000_000, 800_000, 800_000, 1_000_000}, region.Y)

	var recovery bool
	for _, s := range chart {
		if s.Name == "TOP1 回撤修复" {
			recovery = true
		}
	}
	assert.True(t, recovery)
}

func TestBasicTable(t *testing.T) {
	g := NewGenerator(sampleRun(), sampleSnapshots(), nil, 1)
	table := g.BasicTable()
	assert.Equal(t, "基础指标", table.Name)
	require.Len(t, table.Rows, 4)
	assert.Equal(t, "投资收益率", table.Rows[0][0])
	assert.Equal(t, "+10.00% (¥1,000,000.00 -> ¥1,100,000.00)", table.Rows[0][1])
	assert.Equal(t, "20.00% (2024-01-01~2024-01-03, 恢复天数: 2天, ¥1,000,000.00->¥800,000.00)", table.Rows[2][1])
}

func TestTradeTable(t *testing.T) {
	trades := []backtest.Trade{
		{
			Date:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Product: "FUND_A",
			Action:  backtest.TradeActionBuy,
			Size:    10000,
			Price:   100,
			Value:   1_000_000,
			Status:  backtest.TradeStatusCompleted,
			Message: "建仓买入",
		},
	}
	g := NewGenerator(sampleRun(), sampleSnapshots(), trades, 1)
	table := g.TradeTable()
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{
		"2024-01-01", "buy", "FUND_A", "10000", "¥100.0000", "¥1000000.00", "建仓买入",
	}, table.Rows[0])
}

func TestPeriodTables(t *testing.T) {
	g := NewGenerator(sampleRun(), sampleSnapshots(), nil, 1)
	yearly := g.YearlyTable()
	require.Len(t, yearly.Rows, 1)
	assert.Equal(t, "2024 (2024-01-01~2024-01-05)", yearly.Rows[0][0])
	assert.Equal(t, "+10.00%", yearly.Rows[0][1])

	quarterly := g.QuarterlyTable()
	require.Len(t, quarterly.Rows, 1)
	assert.Equal(t, "2024Q1 (2024-01-01~2024-01-05)", quarterly.Rows[0][0])

	// 样本数阈值之下的周期被跳过。
	strict := NewGenerator(sampleRun(), sampleSnapshots(), nil, 7)
	assert.Empty(t, strict.YearlyTable().Rows)
}

func TestEmptyGeneratorDegradesGracefully(t *testing.T) {
	g := NewGenerator(backtest.Run{}, nil, nil, 0)
	assert.Empty(t, g.Summary())
	assert.Empty(t, g.Chart([]int{20}, true))

	tables := g.Tables()
	require.Len(t, tables, 4)
	for _, table := range tables {
		assert.NotEmpty(t, table.Name)
		assert.NotEmpty(t, table.Headers)
		assert.Empty(t, table.Rows)
	}

	report := g.Build(nil, true)
	assert.NotNil(t, report.Summary)
	assert.NotNil(t, report.Chart)
	assert.Len(t, report.Tables, 4)
}
