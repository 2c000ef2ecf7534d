package market

import (
	"math"
	"sort"
	"time"
)

// DateLayout 是全库统一的交易日格式。
const DateLayout = "2006-01-02"

// PricePoint 是单个交易日的行情点。基金类标的以单位净值充当 OHLC，
// 外汇类标的以收盘汇率为准。
type PricePoint struct {
	Symbol   string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Dividend float64
	// AdjNav 为复权净值，缺省为 0 表示未计算。
	AdjNav float64
}

// Series 是按日期升序排列的行情序列。
type Series []PricePoint

// Closes 返回收盘值序列。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close
	}
	return out
}

// Dates 返回日期序列。
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Date
	}
	return out
}

// SortByDate 原地按日期升序排序。
func (s Series) SortByDate() {
	sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}

// Between 返回 [start, end] 闭区间内的子序列。零值时间表示不限。
func (s Series) Between(start, end time.Time) Series {
	out := make(Series, 0, len(s))
	for _, p := range s {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		if !end.IsZero() && p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// WithAdjustedNav 返回带复权净值的拷贝：每逢分红日，
// 复权因子乘以 (前日净值+分红)/前日净值，复权净值 = 当日净值 * 因子。
func (s Series) WithAdjustedNav() Series {
	out := make(Series, len(s))
	copy(out, s)
	factor := 1.0
	for i := range out {
		if i > 0 && out[i].Dividend > 0 && out[i-1].Close > 0 {
			factor *= (out[i-1].Close + out[i].Dividend) / out[i-1].Close
		}
		out[i].AdjNav = out[i].Close * factor
	}
	return out
}

// PctChange 返回逐日涨跌幅序列，长度为 len(values)-1。
func PctChange(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, (values[i]-prev)/prev)
	}
	return out
}

// BondRate 是某货币某日的国债/基准利率（百分数，如 1.65 表示 1.65%）。
type BondRate struct {
	Currency string
	Date     time.Time
	Rate     float64
}

// Day 将时间规整到 UTC 零点，行情与利率均以日为粒度。
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay 按统一格式解析交易日。
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
