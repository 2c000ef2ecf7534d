package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"baofu/internal/analysis"
	"baofu/internal/backtest"

	"github.com/shopspring/decimal"
)

// SummaryItem 是摘要里的一行 label/value。
type SummaryItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Value 是图表点值，NaN（均线窗口未满）序列化为 null。
type Value float64

func (v Value) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(v)) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(v), 'f', -1, 64)), nil
}

// Series 是一条图表曲线（或回撤区域），字段与前端绘图约定对齐。
type Series struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Visible string   `json:"visible"`
	Dash    bool     `json:"dash,omitempty"`
	Fill    string   `json:"fill,omitempty"`
	Text    string   `json:"text,omitempty"`
	X       []string `json:"x"`
	Y       []Value  `json:"y"`
}

func toValues(vs []float64) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Value(v)
	}
	return out
}

// Table 是一张带表头的结果表。
type Table struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Report 是一次回测的完整报告结构，可直接 JSON 序列化。
type Report struct {
	Summary []SummaryItem `json:"summary"`
	Chart   []Series      `json:"chart"`
	Tables  []Table       `json:"tables"`
}

const (
	visibleAlways     = "true"
	visibleLegendOnly = "legendonly"
)

// Generator 把运行记录与资金曲线组装成报告。
// 任何访问器在数据缺失时返回空但类型正确的结果。
type Generator struct {
	run        backtest.Run
	snapshots  []backtest.DailyAsset
	trades     []backtest.Trade
	minSamples int

	dates  []time.Time
	totals []float64
}

func NewGenerator(run backtest.Run, snapshots []backtest.DailyAsset, trades []backtest.Trade, minSamples int) *Generator {
	g := &Generator{
		run:        run,
		snapshots:  snapshots,
		trades:     trades,
		minSamples: minSamples,
	}
	g.dates = make([]time.Time, len(snapshots))
	g.totals = make([]float64, len(snapshots))
	for i, snap := range snapshots {
		g.dates[i] = snap.Date
		g.totals[i] = snap.Total
	}
	return g
}

// Build 组装完整报告。
func (g *Generator) Build(maPeriods []int, withDrawdown bool) Report {
	return Report{
		Summary: g.Summary(),
		Chart:   g.Chart(maPeriods, withDrawdown),
		Tables:  g.Tables(),
	}
}

// Summary 返回策略摘要。
func (g *Generator) Summary() []SummaryItem {
	if len(g.snapshots) == 0 {
		return []SummaryItem{}
	}
	initial := g.totals[0]
	final := g.totals[len(g.totals)-1]
	returnRate := 0.0
	if initial != 0 {
		returnRate = (final - initial) / initial * 100
	}
	dateRange := fmt.Sprintf("%s ~ %s",
		g.dates[0].Format("2006-01-02"),
		g.dates[len(g.dates)-1].Format("2006-01-02"))
	return []SummaryItem{
		{Label: "策略ID", Value: g.run.ID},
		{Label: "策略名称", Value: g.run.Name},
		{Label: "策略描述", Value: g.run.Description},
		{Label: "统计区间", Value: dateRange},
		{Label: "区间收益率", Value: fmt.Sprintf("%+.2f%% (%s -> %s)",
			returnRate, formatMoney(initial), formatMoney(final))},
	}
}

// Chart 返回资金曲线：总资产、现金、各产品市值，
// 外加按需的均线与回撤区域。
func (g *Generator) Chart(maPeriods []int, withDrawdown bool) []Series {
	if len(g.snapshots) == 0 {
		return []Series{}
	}
	x := make([]string, len(g.dates))
	for i, d := range g.dates {
		x[i] = d.Format("2006-01-02")
	}

	cash := make([]float64, len(g.snapshots))
	for i, snap := range g.snapshots {
		cash[i] = snap.Cash
	}
	out := []Series{
		{Name: "总资产", Type: "line", Visible: visibleAlways, X: x, Y: toValues(g.totals)},
		{Name: "现金", Type: "line", Visible: visibleLegendOnly, X: x, Y: toValues(cash)},
	}

	// 各产品曲线按首个快照的产品集合展开，缺日期处补 0。
	for _, product := range g.productCodes() {
		values := make([]float64, len(g.snapshots))
		for i, snap := range g.snapshots {
			values[i] = snap.Products[product]
		}
		out = append(out, Series{
			Name:    "产品" + product,
			Type:    "line",
			Visible: visibleLegendOnly,
			X:       x,
			Y:       toValues(values),
		})
	}

	for _, ma := range analysis.MovingAverages(g.totals, maPeriods, false) {
		out = append(out, Series{
			Name:    ma.Name,
			Type:    "line",
			Visible: visibleAlways,
			Dash:    true,
			X:       x,
			Y:       toValues(ma.Values),
		})
	}

	if withDrawdown {
		out = append(out, g.drawdownSeries()...)
	}
	return out
}

func (g *Generator) productCodes() []string {
	if len(g.snapshots) == 0 || len(g.snapshots[0].Products) == 0 {
		return nil
	}
	first := g.snapshots[0].Products
	codes := make([]string, 0, len(first))
	for code := range first {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// drawdownSeries 把 top 回撤画成红色区域，已修复的再加一块绿色修复区域。
func (g *Generator) drawdownSeries() []Series {
	var out []Series
	for i, dd := range analysis.FindDrawdowns(g.dates, g.totals) {
		start := dd.StartDate.Format("2006-01-02")
		end := dd.EndDate.Format("2006-01-02")
		drawdownDays := int(dd.EndDate.Sub(dd.StartDate).Hours() / 24)
		text := fmt.Sprintf("回撤: %.4f%%(%d days)", dd.Value*100, drawdownDays)
		if dd.Recovered {
			recoveryDays := int(dd.RecoveryDate.Sub(dd.EndDate).Hours() / 24)
			text = fmt.Sprintf("%s，修复：%d days", text, recoveryDays)
		}
		out = append(out, Series{
			Name:    fmt.Sprintf("TOP%d 回撤", i+1),
			Type:    "region",
			Visible: visibleAlways,
			Fill:    "drawdown",
			Text:    text,
			X:       []string{start, end, end, start, start},
			Y:       toValues([]float64{dd.StartValue, dd.StartValue, dd.EndValue, dd.EndValue, dd.StartValue}),
		})
		if dd.Recovered {
			recovery := dd.RecoveryDate.Format("2006-01-02")
			out = append(out, Series{
				Name:    fmt.Sprintf("TOP%d 回撤修复", i+1),
				Type:    "region",
				Visible: visibleAlways,
				Fill:    "recovery",
				X:       []string{end, recovery, recovery, end, end},
				Y:       toValues([]float64{dd.EndValue, dd.EndValue, dd.StartValue, dd.StartValue, dd.EndValue}),
			})
		}
	}
	return out
}

// Tables 返回交易记录、基础指标、年度与季度统计四张表。
func (g *Generator) Tables() []Table {
	return []Table{
		g.TradeTable(),
		g.BasicTable(),
		g.YearlyTable(),
		g.QuarterlyTable(),
	}
}

// TradeTable 返回交易记录表，无成交时返回空表。
func (g *Generator) TradeTable() Table {
	table := Table{
		Name:    "交易记录",
		Headers: []string{"日期", "类型", "产品", "数量", "价格", "金额", "备注"},
		Rows:    [][]string{},
	}
	for _, trade := range g.trades {
		table.Rows = append(table.Rows, []string{
			trade.Date.Format("2006-01-02"),
			trade.Action,
			trade.Product,
			fmt.Sprintf("%.0f", trade.Size),
			fmt.Sprintf("¥%.4f", trade.Price),
			fmt.Sprintf("¥%.2f", trade.Size*trade.Price),
			trade.Message,
		})
	}
	return table
}

// BasicTable 返回区间收益、年化、最大回撤与波动率。
func (g *Generator) BasicTable() Table {
	table := Table{
		Name:    "基础指标",
		Headers: []string{"指标", "数值"},
		Rows:    [][]string{},
	}
	stats, ok := analysis.ComputeBasicIndicators(g.dates, g.totals)
	if !ok {
		return table
	}
	table.Rows = [][]string{
		{"投资收益率", fmt.Sprintf("%+.2f%% (%s -> %s)",
			stats.ReturnRate, formatMoney(stats.FirstValue), formatMoney(stats.LastValue))},
		{"年化收益率", fmt.Sprintf("%+.2f%%", stats.Annualized)},
		{"投资最大回撤", g.maxDrawdownCell()},
		{"年化波动率", fmt.Sprintf("%.2f%%", stats.Volatility)},
	}
	return table
}

// maxDrawdownCell 带恢复天数与金额明细，无回撤时为 N/A。
func (g *Generator) maxDrawdownCell() string {
	drawdowns := analysis.FindDrawdowns(g.dates, g.totals)
	if len(drawdowns) == 0 {
		return "N/A"
	}
	dd := drawdowns[0]
	recoveryInfo := ""
	if dd.Recovered {
		days := int(dd.RecoveryDate.Sub(dd.EndDate).Hours() / 24)
		recoveryInfo = fmt.Sprintf(", 恢复天数: %d天", days)
	}
	return fmt.Sprintf("%.2f%% (%s~%s%s, %s->%s)",
		dd.Value*100,
		dd.StartDate.Format("2006-01-02"),
		dd.EndDate.Format("2006-01-02"),
		recoveryInfo,
		formatMoney(dd.StartValue),
		formatMoney(dd.EndValue))
}

// YearlyTable 返回年度统计表。
func (g *Generator) YearlyTable() Table {
	return g.periodTable("年度统计", "年份", analysis.YearlyStats(g.dates, g.totals, g.minSamples))
}

// QuarterlyTable 返回季度统计表。
func (g *Generator) QuarterlyTable() Table {
	return g.periodTable("季度统计", "季度", analysis.QuarterlyStats(g.dates, g.totals, g.minSamples))
}

func (g *Generator) periodTable(name, periodHeader string, stats []analysis.PeriodStat) Table {
	table := Table{
		Name:    name,
		Headers: []string{periodHeader, "收益率", "年化收益率", "最大回撤", "波动率"},
		Rows:    [][]string{},
	}
	for _, stat := range stats {
		table.Rows = append(table.Rows, []string{
			stat.Label,
			fmt.Sprintf("%+.2f%%", stat.ReturnRate),
			fmt.Sprintf("%+.2f%%", stat.Annualized),
			stat.MaxDrawdown,
			fmt.Sprintf("%.2f%%", stat.Volatility),
		})
	}
	return table
}

// formatMoney 输出 ¥1,234,567.89 形式的金额。
func formatMoney(v float64) string {
	d := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(d, "-")
	d = strings.TrimPrefix(d, "-")
	intPart, fracPart, _ := strings.Cut(d, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("¥%s%s.%s", sign, b.String(), fracPart)
}
