package backtest

import (
	"math"
	"strings"
	"time"

	"baofu/internal/logger"
)

// currentRateExtension 为现金与外汇头寸按债券收益率逐日计息。
// 利率数据缺失时沿用最近一次已知利率。
type currentRateExtension struct {
	base   *BaseStrategy
	config map[string]string // 货币 → 债券代码

	lastRate      map[string]float64
	lastTradeDate map[string]time.Time
}

func newCurrentRateExtension(base *BaseStrategy, params StrategyParams) *currentRateExtension {
	logger.Infof("现金利率配置: %v", params.CurrentRate)
	return &currentRateExtension{
		base:          base,
		config:        params.CurrentRate,
		lastRate:      make(map[string]float64),
		lastTradeDate: make(map[string]time.Time),
	}
}

func (e *currentRateExtension) OpenTrade(date time.Time) {}

func (e *currentRateExtension) CloseTrade(date time.Time) {}

// Next 对每个配置货币计提利息。首次见到某货币仅记录基准日，不计息。
func (e *currentRateExtension) Next(tick Tick) {
	currentDate := tick.Date

	for currency, bondType := range e.config {
		baseline, seen := e.lastTradeDate[currency]
		if !seen {
			e.lastTradeDate[currency] = currentDate
			continue
		}

		// 本位币取现金余额，其余货币取外汇持仓市值。
		var position float64
		if strings.EqualFold(currency, homeCurrency) {
			position = e.base.broker.Cash()
		} else {
			feed, ok := e.base.feeds.Get(currency)
			if !ok {
				logger.Errorf("找不到%s", currency)
				continue
			}
			bar, ok := feed.Latest(currentDate)
			if !ok {
				continue
			}
			position = e.base.broker.PositionValue(feed.Name(), bar.Close)
		}

		rate, ok := e.rateFor(bondType, currency, currentDate)
		if !ok {
			continue
		}

		days := int(currentDate.Sub(baseline).Hours() / 24)
		interest := position * rate / 366 / 100 * float64(days)
		e.base.broker.AddCash(interest)
		e.base.currentInterests[currency] += interest

		logger.Infof("日期：%s, 计息天数: %d, %s的利率为%.4f, 利息为%.4f, 累计利息: %.4f",
			currentDate.Format("2006-01-02"), days, currency, rate, interest,
			e.base.currentInterests[currency])
		e.lastTradeDate[currency] = currentDate
		e.lastRate[currency] = rate
	}
}

// rateFor 取 date 当日的债券利率；缺失或非法时回退到最近一次已知利率。
func (e *currentRateExtension) rateFor(bondType, currency string, date time.Time) (float64, bool) {
	feed, ok := e.base.feeds.Get(bondType)
	if !ok {
		logger.Errorf("找不到债券%s的数据", bondType)
		return 0, false
	}
	if bar, ok := feed.At(date); ok && !math.IsNaN(bar.Close) && bar.Close != 0 {
		return bar.Close, true
	}
	if last, ok := e.lastRate[currency]; ok {
		return last, true
	}
	return 0, false
}
