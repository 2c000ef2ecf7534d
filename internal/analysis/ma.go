package analysis

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// Normalize 把序列归一到首日（v[i]/v[0]）。空序列原样返回。
func Normalize(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	base := values[0]
	out := make([]float64, len(values))
	for i, v := range values {
		if base == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = v / base
	}
	return out
}

// MovingAverage 计算简单移动平均。前 period-1 个点尚未形成完整窗口，
// 置为 NaN；period 非法或序列过短时返回全 NaN。
func MovingAverage(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sma := talib.Sma(values, period)
	copy(out, sma)
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// MASeries 是一条移动平均线的图表数据。
type MASeries struct {
	Name   string
	Period int
	Values []float64
}

// MovingAverages 为同一序列批量计算多条均线。
// normalize 为 true 时先把序列归一到首日。
func MovingAverages(values []float64, periods []int, normalize bool) []MASeries {
	if len(values) == 0 || len(periods) == 0 {
		return nil
	}
	if normalize {
		values = Normalize(values)
	}
	out := make([]MASeries, 0, len(periods))
	for _, p := range periods {
		out = append(out, MASeries{
			Name:   fmt.Sprintf("MA%d", p),
			Period: p,
			Values: MovingAverage(values, p),
		})
	}
	return out
}
