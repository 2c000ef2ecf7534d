package analysis

import (
	"fmt"
	"sort"
	"time"

	"baofu/internal/market"
)

// Drawdown 描述一次从高点到低点的回撤区间。
type Drawdown struct {
	// Value 为回撤幅度，0.20 表示 20%。
	Value      float64
	StartDate  time.Time
	StartValue float64
	EndDate    time.Time
	EndValue   float64
	// RecoveryDate 为低点之后首个净值严格超过高点的交易日；未修复时 Recovered 为 false。
	RecoveryDate time.Time
	Recovered    bool
}

// TopDrawdowns 默认返回的回撤条数。
const TopDrawdowns = 3

// FindDrawdowns 从净值序列中找出前三大回撤，按幅度降序。
// 序列需按日期升序；输入为空或长度不一致时返回空结果。
//
// 扫描自最后一个交易日向前推进：净值创新高时抬升高点锚，
// 净值不高于低点锚时结算一段回撤并把两个锚都重置到当前点。
func FindDrawdowns(dates []time.Time, values []float64) []Drawdown {
	if len(dates) == 0 || len(values) == 0 || len(dates) != len(values) {
		return nil
	}

	var found []Drawdown
	peakValue := values[len(values)-1]
	peakDate := dates[len(dates)-1]
	highestValue := peakValue
	highestDate := peakDate

	emit := func() {
		dd := Drawdown{
			Value:      (highestValue - peakValue) / highestValue,
			StartDate:  highestDate,
			StartValue: highestValue,
			EndDate:    peakDate,
			EndValue:   peakValue,
		}
		if recovery, ok := findRecovery(dates, values, peakDate, highestValue); ok {
			dd.RecoveryDate = recovery
			dd.Recovered = true
		}
		found = append(found, dd)
	}

	for i := len(dates) - 1; i >= 0; i-- {
		current := values[i]
		currentDate := dates[i]
		if current > highestValue {
			highestValue = current
			highestDate = currentDate
		} else if current <= peakValue {
			if highestValue > peakValue {
				emit()
			}
			peakValue = current
			peakDate = currentDate
			highestValue = current
			highestDate = currentDate
		}
	}
	if highestValue > peakValue {
		emit()
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Value > found[j].Value })
	if len(found) > TopDrawdowns {
		found = found[:TopDrawdowns]
	}
	return found
}

// findRecovery 返回 after 之后首个净值严格超过 threshold 的日期。
func findRecovery(dates []time.Time, values []float64, after time.Time, threshold float64) (time.Time, bool) {
	for i := range dates {
		if dates[i].After(after) && values[i] > threshold {
			return dates[i], true
		}
	}
	return time.Time{}, false
}

// FormatMaxDrawdown 将最大回撤渲染为表格单元文本，无回撤时返回 N/A。
func FormatMaxDrawdown(dds []Drawdown) string {
	if len(dds) == 0 {
		return "N/A"
	}
	dd := dds[0]
	recoveryInfo := ""
	if dd.Recovered {
		days := int(dd.RecoveryDate.Sub(dd.EndDate).Hours() / 24)
		recoveryInfo = fmt.Sprintf(", 恢复天数: %d天", days)
	}
	return fmt.Sprintf("%.2f%% (%s~%s%s, %.4f->%.4f)",
		dd.Value*100,
		dd.StartDate.Format(market.DateLayout),
		dd.EndDate.Format(market.DateLayout),
		recoveryInfo,
		dd.StartValue,
		dd.EndValue,
	)
}

// DrawdownRegion 是图上的一块回撤（或修复）标注区域。
type DrawdownRegion struct {
	Rank       int
	Label      string
	StartDate  time.Time
	EndDate    time.Time
	StartValue float64
	EndValue   float64
	// Recovery 为修复区域的右边界；未修复时 Recovered 为 false。
	RecoveryDate time.Time
	Recovered    bool
}

// DrawdownRegions 把前三大回撤转成图表标注区域。
// normalize 为 true 时先把序列归一到首日。
func DrawdownRegions(dates []time.Time, values []float64, normalize bool) []DrawdownRegion {
	if len(dates) == 0 || len(values) == 0 {
		return nil
	}
	if normalize {
		values = Normalize(values)
	}
	dds := FindDrawdowns(dates, values)
	out := make([]DrawdownRegion, 0, len(dds))
	for i, dd := range dds {
		drawdownDays := int(dd.EndDate.Sub(dd.StartDate).Hours() / 24)
		label := fmt.Sprintf("回撤: %.4f%%(%d days)", dd.Value*100, drawdownDays)
		region := DrawdownRegion{
			Rank:       i + 1,
			Label:      label,
			StartDate:  dd.StartDate,
			EndDate:    dd.EndDate,
			StartValue: dd.StartValue,
			EndValue:   dd.EndValue,
		}
		if dd.Recovered {
			recoveryDays := int(dd.RecoveryDate.Sub(dd.EndDate).Hours() / 24)
			region.Label = fmt.Sprintf("%s，修复：%d days", label, recoveryDays)
			region.RecoveryDate = dd.RecoveryDate
			region.Recovered = true
		}
		out = append(out, region)
	}
	return out
}
