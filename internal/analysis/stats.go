package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"baofu/internal/market"
)

// BasicIndicators 汇总一段净值序列的基础指标。
// 收益率与波动率均为百分数。
type BasicIndicators struct {
	FirstValue  float64
	LastValue   float64
	ReturnRate  float64
	Annualized  float64
	Volatility  float64
	MaxDrawdown string
	Days        int
}

// ComputeBasicIndicators 计算区间收益率、年化收益率、最大回撤与年化波动率。
// 序列需按日期升序；空序列或长度不一致时 ok 为 false。
func ComputeBasicIndicators(dates []time.Time, values []float64) (BasicIndicators, bool) {
	if len(dates) == 0 || len(values) == 0 || len(dates) != len(values) {
		return BasicIndicators{}, false
	}
	first := values[0]
	last := values[len(values)-1]
	returnRate := (last - first) / first * 100

	days := int(dates[len(dates)-1].Sub(dates[0]).Hours() / 24)
	annualized := annualize(returnRate, days)

	return BasicIndicators{
		FirstValue:  first,
		LastValue:   last,
		ReturnRate:  returnRate,
		Annualized:  annualized,
		Volatility:  annualVolatility(values),
		MaxDrawdown: FormatMaxDrawdown(FindDrawdowns(dates, values)),
		Days:        days,
	}, true
}

// annualize 把区间收益率（百分数）折算为年化收益率，days<=0 时返回 0。
func annualize(returnRate float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return (math.Pow(1+returnRate/100, 365/float64(days)) - 1) * 100
}

// annualVolatility 返回年化波动率（百分数）：逐日涨跌幅样本标准差 * sqrt(252)。
// 有效样本不足 2 个时返回 0。
func annualVolatility(values []float64) float64 {
	returns := market.PctChange(values)
	var sum float64
	var n int
	for _, r := range returns {
		if math.IsNaN(r) {
			continue
		}
		sum += r
		n++
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	var sq float64
	for _, r := range returns {
		if math.IsNaN(r) {
			continue
		}
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(n-1))
	return std * math.Sqrt(252) * 100
}

// PeriodStat 是单个年度/季度的统计行。
type PeriodStat struct {
	Label       string
	StartDate   time.Time
	EndDate     time.Time
	StartValue  float64
	EndValue    float64
	ReturnRate  float64
	Annualized  float64
	Volatility  float64
	MaxDrawdown string
}

type periodKey struct {
	year    int
	quarter int
}

// YearlyStats 计算年度统计，年份降序。
// 每个年度的起点取上一年度最后一个交易日；最早年度取本年度首个交易日。
// 有效交易日少于 minSamples 的年度被跳过。
func YearlyStats(dates []time.Time, values []float64, minSamples int) []PeriodStat {
	return periodStats(dates, values, minSamples,
		func(t time.Time) periodKey { return periodKey{year: t.Year()} },
		func(k periodKey, start, end time.Time) string {
			return fmt.Sprintf("%d (%s~%s)", k.year,
				start.Format(market.DateLayout), end.Format(market.DateLayout))
		})
}

// QuarterlyStats 计算季度统计，季度降序，口径与 YearlyStats 一致。
func QuarterlyStats(dates []time.Time, values []float64, minSamples int) []PeriodStat {
	return periodStats(dates, values, minSamples,
		func(t time.Time) periodKey {
			return periodKey{year: t.Year(), quarter: (int(t.Month())-1)/3 + 1}
		},
		func(k periodKey, start, end time.Time) string {
			return fmt.Sprintf("%dQ%d (%s~%s)", k.year, k.quarter,
				start.Format(market.DateLayout), end.Format(market.DateLayout))
		})
}

func periodStats(
	dates []time.Time,
	values []float64,
	minSamples int,
	keyOf func(time.Time) periodKey,
	labelOf func(periodKey, time.Time, time.Time) string,
) []PeriodStat {
	if len(dates) == 0 || len(values) == 0 || len(dates) != len(values) {
		return nil
	}
	if minSamples <= 0 {
		minSamples = 7
	}

	type bucket struct {
		dates  []time.Time
		values []float64
	}
	buckets := make(map[periodKey]*bucket)
	var keys []periodKey
	for i := range dates {
		k := keyOf(dates[i])
		b, ok := buckets[k]
		if !ok {
			b = &bucket{}
			buckets[k] = b
			keys = append(keys, k)
		}
		b.dates = append(b.dates, dates[i])
		b.values = append(b.values, values[i])
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year > keys[j].year
		}
		return keys[i].quarter > keys[j].quarter
	})

	var out []PeriodStat
	for i, k := range keys {
		b := buckets[k]
		endDate := b.dates[len(b.dates)-1]
		endValue := b.values[len(b.values)-1]

		// 起点取上一周期最后一个交易日；最早周期退回本周期首日。
		startDate := b.dates[0]
		startValue := b.values[0]
		if i < len(keys)-1 {
			prev := buckets[keys[i+1]]
			startDate = prev.dates[len(prev.dates)-1]
			startValue = prev.values[len(prev.values)-1]
		}

		if len(b.dates) < minSamples {
			continue
		}

		returnRate := (endValue - startValue) / startValue * 100
		days := int(endDate.Sub(startDate).Hours() / 24)

		maxDD := "N/A"
		if dds := FindDrawdowns(b.dates, b.values); len(dds) > 0 {
			maxDD = fmt.Sprintf("%.2f%%", dds[0].Value*100)
		}

		out = append(out, PeriodStat{
			Label:       labelOf(k, startDate, endDate),
			StartDate:   startDate,
			EndDate:     endDate,
			StartValue:  startValue,
			EndValue:    endValue,
			ReturnRate:  returnRate,
			Annualized:  annualize(returnRate, days),
			Volatility:  annualVolatility(b.values),
			MaxDrawdown: maxDD,
		})
	}
	return out
}
