package backtest

import (
	"math"
	"time"

	"baofu/internal/logger"
)

// financingExtension 处理外汇融资：开仓按现金比例借入，
// 逐日按 366 天口径计提利息，偏离目标价值超阈值时调整份额。
type financingExtension struct {
	base   *BaseStrategy
	config map[string]float64 // 货币对 → 融资比例
	rateOf func(pair string) float64

	initialized   bool
	lastTradeDate time.Time
}

// financingDeviation 为触发融资份额调整的偏离阈值。
const financingDeviation = 0.05

func newFinancingExtension(base *BaseStrategy, params StrategyParams, rateOf func(pair string) float64) *financingExtension {
	logger.Infof("外汇融资配置: %v", params.ForexFinancing)
	return &financingExtension{
		base:   base,
		config: params.ForexFinancing,
		rateOf: rateOf,
	}
}

// OpenTrade 按当前现金与配置比例为每个货币对借入资金。
func (e *financingExtension) OpenTrade(date time.Time) {
	currentCash := e.base.broker.Cash()
	logger.Infof("当前现金: %.2f", currentCash)

	var totalFinancing float64
	for pair, ratio := range e.config {
		financingAmount := currentCash * ratio

		feed, ok := e.base.feeds.Get(pair)
		if !ok {
			logger.Warnf("无法获取 %s 的价格数据", pair)
			continue
		}
		bar, ok := feed.Latest(date)
		if !ok || bar.Close <= 0 {
			logger.Warnf("%s 的价格无效", pair)
			continue
		}
		price := bar.Close
		shares := math.Floor(financingAmount / price)
		totalFinancing += financingAmount

		e.base.financingInfo[pair] = &FinancingPosition{Shares: shares}
		e.base.recordFinancingTrade(FinancingTrade{
			Date:    date,
			Product: pair,
			Type:    "financing_open",
			Amount:  financingAmount,
			Shares:  shares,
			Price:   price,
			Rate:    e.rateOf(pair),
			Status:  TradeStatusCompleted,
			Message: "融资开仓",
		})
		logger.Infof("为 %s 配资融资: %.2f, 融资价格: %.4f, 融资份额: %.2f",
			pair, financingAmount, price, shares)
	}
	e.base.broker.SetCash(currentCash + totalFinancing)
	e.initialized = true
}

func (e *financingExtension) CloseTrade(date time.Time) {}

// Next 计提利息并检查是否需要调整融资份额。
func (e *financingExtension) Next(tick Tick) {
	if !e.initialized {
		return
	}
	currentDate := tick.Date
	if e.lastTradeDate.IsZero() {
		e.lastTradeDate = currentDate
		return
	}
	daysDiff := int(currentDate.Sub(e.lastTradeDate).Hours() / 24)
	if daysDiff <= 0 {
		return
	}

	// 计提各货币对的融资利息，合并为一次现金扣减。
	var totalFinancingValue float64
	var totalInterest float64
	for pair, info := range e.base.financingInfo {
		feed, ok := e.base.feeds.Get(pair)
		if !ok {
			continue
		}
		bar, ok := feed.Latest(currentDate)
		if !ok {
			continue
		}
		currentValue := info.Shares * bar.Close
		totalFinancingValue += currentValue

		rate := e.rateOf(pair)
		dailyInterest := currentValue * rate / 366
		interest := dailyInterest * float64(daysDiff)
		totalInterest += interest
		info.TotalInterest += interest
	}
	if totalInterest > 0 {
		e.base.broker.SetCash(e.base.broker.Cash() - totalInterest)
	}

	// 偏离目标价值超过阈值时调整份额。
	for pair, ratio := range e.config {
		feed, ok := e.base.feeds.Get(pair)
		if !ok {
			continue
		}
		bar, ok := feed.Latest(currentDate)
		if !ok || bar.Close <= 0 {
			continue
		}
		info, ok := e.base.financingInfo[pair]
		if !ok {
			continue
		}
		currentPrice := bar.Close
		currentValue := info.Shares * currentPrice
		targetValue := (e.base.totalAsset(currentDate) - totalFinancingValue) * ratio
		if targetValue <= 0 {
			continue
		}
		deviation := math.Abs(currentValue-targetValue) / targetValue
		if deviation <= financingDeviation {
			continue
		}
		logger.Infof("货币对 %s 的融资价值偏离超过1%%，进行调整, current_value: %.2f, target_value: %.2f",
			pair, currentValue, targetValue)
		targetShares := math.Floor(targetValue / currentPrice)
		sharesDiff := targetShares - info.Shares
		if sharesDiff == 0 {
			continue
		}
		info.Shares = targetShares
		e.base.broker.AddCash(sharesDiff * currentPrice)

		tradeType := "financing_increase"
		message := "融资增持"
		if sharesDiff < 0 {
			tradeType = "financing_decrease"
			message = "融资减少"
		}
		e.base.recordFinancingTrade(FinancingTrade{
			Date:    currentDate,
			Product: pair,
			Type:    tradeType,
			Amount:  math.Abs(sharesDiff * currentPrice),
			Shares:  math.Abs(sharesDiff),
			Price:   currentPrice,
			Rate:    e.rateOf(pair),
			Status:  TradeStatusCompleted,
			Message: message,
		})
	}

	e.lastTradeDate = currentDate
}
