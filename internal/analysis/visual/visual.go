package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"baofu/internal/analysis"
)

type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

// EquityInput 描述一张资金曲线图：总资产、现金、均线与回撤区域。
type EquityInput struct {
	Context   context.Context
	Title     string
	Dates     []time.Time
	Totals    []float64
	Cash      []float64
	MAPeriods []int
	// WithDrawdown 为 true 时叠加 top 回撤与修复区域。
	WithDrawdown bool
	WidthPx      int
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorTotal         = "#3b82f6"
	colorCash          = "#fbbf24"
	colorMA            = "#f472b6"
	colorDrawdown      = "rgba(248, 113, 113, 0.25)"
	colorRecovery      = "rgba(52, 211, 153, 0.25)"

	defaultChartWidthPx = 1600
	equityHeightPx      = 640
)

// RenderEquity 把资金曲线渲染为 PNG。
func RenderEquity(input EquityInput) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(input.Context); err != nil {
		return ImageResult{}, err
	}
	if len(input.Dates) == 0 || len(input.Dates) != len(input.Totals) {
		return ImageResult{}, fmt.Errorf("资金曲线数据为空或长度不一致")
	}
	html, desc, err := buildEquityHTML(input)
	if err != nil {
		return ImageResult{}, err
	}
	width := input.WidthPx
	if width <= 0 {
		width = defaultChartWidthPx
	}
	png, err := renderHTMLToPNG(input.Context, html, width, equityHeightPx)
	if err != nil {
		return ImageResult{}, err
	}
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(input.Title), " ", "_"))
	if name == "" {
		name = "equity"
	}
	return ImageResult{
		Bytes:       png,
		Base64:      base64.StdEncoding.EncodeToString(png),
		Filename:    fmt.Sprintf("%s_equity.png", name),
		Description: desc,
	}, nil
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func buildEquityHTML(input EquityInput) ([]byte, string, error) {
	width := input.WidthPx
	if width <= 0 {
		width = defaultChartWidthPx
	}

	minVal, maxVal := valueBounds(input.Totals)
	padding := (maxVal - minVal) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxVal)*0.01)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", width),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      input.Title,
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minVal-padding, 2),
			Max:       round(maxVal+padding, 2),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := buildXAxis(input.Dates)
	line.SetXAxis(xAxis)
	line.AddSeries("总资产", toLineData(input.Totals, len(xAxis)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorTotal, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	if len(input.Cash) == len(input.Totals) {
		line.AddSeries("现金", toLineData(input.Cash, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorCash, Width: 1}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}
	for _, period := range input.MAPeriods {
		ma := analysis.MovingAverage(input.Totals, period)
		line.AddSeries(fmt.Sprintf("MA%d", period), toLineData(ma, len(xAxis)),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorMA, Width: 1, Type: "dashed"}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}

	descriptions := []string{fmt.Sprintf("%d 个交易日", len(input.Dates))}
	if input.WithDrawdown {
		for i, dd := range analysis.FindDrawdowns(input.Dates, input.Totals) {
			areaOpts := []charts.SeriesOpts{
				charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
					Name:        fmt.Sprintf("TOP%d 回撤", i+1),
					Coordinate0: []interface{}{dd.StartDate.Format("2006-01-02"), dd.EndValue},
					Coordinate1: []interface{}{dd.EndDate.Format("2006-01-02"), dd.StartValue},
					ItemStyle:   &opts.ItemStyle{Color: colorDrawdown},
				}),
			}
			if dd.Recovered {
				areaOpts = append(areaOpts, charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
					Name:        fmt.Sprintf("TOP%d 回撤修复", i+1),
					Coordinate0: []interface{}{dd.EndDate.Format("2006-01-02"), dd.EndValue},
					Coordinate1: []interface{}{dd.RecoveryDate.Format("2006-01-02"), dd.StartValue},
					ItemStyle:   &opts.ItemStyle{Color: colorRecovery},
				}))
			}
			line.SetSeriesOptions(areaOpts...)
			descriptions = append(descriptions, fmt.Sprintf("TOP%d 回撤 %.2f%%", i+1, dd.Value*100))
		}
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, "", err
	}
	desc := fmt.Sprintf("%s | %s", input.Title, strings.Join(descriptions, " | "))
	return buf.Bytes(), desc, nil
}

func buildXAxis(dates []time.Time) []string {
	x := make([]string, len(dates))
	for i, d := range dates {
		x[i] = d.Format("2006-01-02")
	}
	return x
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 4)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func valueBounds(values []float64) (minVal, maxVal float64) {
	if len(values) == 0 {
		return 0, 0
	}
	minVal = values[0]
	maxVal = values[0]
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
