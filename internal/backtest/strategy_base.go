package backtest

import (
	"math"
	"time"

	"baofu/internal/logger"
)

// homeCurrency 是组合的本位币，现金按本位币计息。
const homeCurrency = "CNY"

// Extension 是挂在主策略上的扩展（融资、计息等），随主循环逐日执行。
type Extension interface {
	OpenTrade(date time.Time)
	CloseTrade(date time.Time)
	Next(tick Tick)
}

// FinancingPosition 记录单个货币对的融资份额与累计利息。
type FinancingPosition struct {
	Shares        float64 `json:"shares"`
	TotalInterest float64 `json:"total_interest"`
}

// FinancingTrade 记录一笔融资开仓或调整。
type FinancingTrade struct {
	ID      int       `json:"trade_id"`
	Date    time.Time `json:"date"`
	Product string    `json:"product"`
	Type    string    `json:"type"` // financing_open / financing_increase / financing_decrease
	Amount  float64   `json:"amount"`
	Shares  float64   `json:"executed_size"`
	Price   float64   `json:"executed_price"`
	Rate    float64   `json:"rate"`
	Status  string    `json:"status"`
	Message string    `json:"order_message,omitempty"`
}

// BaseStrategy 承载策略公共机制：开平仓日期推导、分红处理与扩展调度。
// 主策略逻辑由嵌入方通过回调注入。
type BaseStrategy struct {
	broker *Broker
	feeds  *FeedSet
	params StrategyParams

	openTradeDate  time.Time
	closeTradeDate time.Time
	hasClose       bool
	isOpenTraded   bool
	isCloseTraded  bool

	dividendMethod string
	extensions     []Extension

	financingInfo    map[string]*FinancingPosition
	financingTrades  []FinancingTrade
	currentInterests map[string]float64
}

// newBaseStrategy 解析开平仓日期并挂载扩展。rateOf 为融资利率查询。
func newBaseStrategy(params StrategyParams, rateOf func(pair string) float64) *BaseStrategy {
	base := &BaseStrategy{
		params:           params,
		dividendMethod:   params.DividendMethod,
		financingInfo:    make(map[string]*FinancingPosition),
		currentInterests: make(map[string]float64),
	}
	if len(params.ForexFinancing) > 0 {
		base.extensions = append(base.extensions, newFinancingExtension(base, params, rateOf))
	}
	if len(params.CurrentRate) > 0 {
		base.extensions = append(base.extensions, newCurrentRateExtension(base, params))
	}
	return base
}

// bind 在循环开始前绑定 broker 与数据源，并推导开平仓交易日。
func (s *BaseStrategy) bind(b *Broker, feeds *FeedSet) error {
	s.broker = b
	s.feeds = feeds

	openDay, hasOpen, err := s.params.OpenDay()
	if err != nil {
		return err
	}
	primary := feeds.Primary()
	if hasOpen {
		// 取主数据源中不早于开仓日期的首个交易日。
		bar, ok := primary.Next(openDay.AddDate(0, 0, -1))
		if !ok {
			return configErrorf("开仓日期 %s 之后没有交易日", openDay.Format("2006-01-02"))
		}
		s.openTradeDate = bar.Date
		logger.Infof("开仓日期: %s, 开仓交易日期: %s", openDay.Format("2006-01-02"), s.openTradeDate.Format("2006-01-02"))
	} else {
		// 未指定时取各数据源首个有效交易日中最晚的一个。
		var latest time.Time
		for _, f := range feeds.All() {
			first, ok := f.FirstDate()
			if !ok {
				continue
			}
			if latest.IsZero() || first.After(latest) {
				latest = first
			}
		}
		if latest.IsZero() {
			return configErrorf("所有数据源均为空")
		}
		s.openTradeDate = latest
		logger.Infof("开仓交易日期: %s（各产品有效净值的最近日期）", s.openTradeDate.Format("2006-01-02"))
	}

	closeDay, hasClose, err := s.params.CloseDay()
	if err != nil {
		return err
	}
	if hasClose {
		bar, ok := primary.Latest(closeDay)
		if !ok {
			return configErrorf("平仓日期 %s 之前没有交易日", closeDay.Format("2006-01-02"))
		}
		s.hasClose = true
		s.closeTradeDate = bar.Date
		logger.Infof("平仓日期: %s, 平仓交易日期: %s", closeDay.Format("2006-01-02"), s.closeTradeDate.Format("2006-01-02"))
	} else {
		logger.Infof("未指定平仓日期，不执行平仓")
	}
	return nil
}

// OpenTradeDate 返回实际开仓交易日。
func (s *BaseStrategy) OpenTradeDate() time.Time { return s.openTradeDate }

// CloseTradeDate 返回实际平仓交易日，未指定平仓时 ok 为 false。
func (s *BaseStrategy) CloseTradeDate() (time.Time, bool) {
	return s.closeTradeDate, s.hasClose
}

// tick 执行公共逐日流程：开/平仓触发、分红、扩展。
// onOpen 在开仓交易日触发一次；onTick 在持仓期内每日触发。
func (s *BaseStrategy) tick(t Tick, onOpen func(Tick) error, onTick func(Tick) error) error {
	if !s.isOpenTraded && !t.Date.Before(s.openTradeDate) {
		for _, ext := range s.extensions {
			ext.OpenTrade(t.Date)
		}
		if onOpen != nil {
			if err := onOpen(t); err != nil {
				return err
			}
		}
		s.isOpenTraded = true
	}
	if !s.isCloseTraded && s.hasClose && !t.Date.Before(s.closeTradeDate) {
		for _, ext := range s.extensions {
			ext.CloseTrade(t.Date)
		}
		s.isCloseTraded = true
	}
	if !(s.isOpenTraded && !s.isCloseTraded) {
		return nil
	}

	s.handleDividends(t)

	if onTick != nil {
		if err := onTick(t); err != nil {
			return err
		}
	}

	for _, ext := range s.extensions {
		ext.Next(t)
	}
	return nil
}

// handleDividends 把当日分红入账；reinvest 模式按下一交易日收盘再投资。
func (s *BaseStrategy) handleDividends(t Tick) {
	for _, feed := range s.feeds.All() {
		bar, ok := feed.At(t.Date)
		if !ok || bar.Dividend <= 0 {
			continue
		}
		size := s.broker.Position(feed.Name())
		if size <= 0 {
			continue
		}
		dividendAmount := math.Round(bar.Dividend*size*1e4) / 1e4
		logger.Infof("基金：%s 当前日期: %s, 分红: %.4f, 持仓数量: %.4f, 分红金额: %.4f",
			feed.Name(), t.Date.Format("2006-01-02"), bar.Dividend, size, dividendAmount)
		s.broker.AddCash(dividendAmount)

		if s.dividendMethod == "reinvest" {
			next, ok := feed.Next(t.Date)
			if !ok || next.Close <= 0 {
				logger.Warnf("基金：%s 无下一交易日价格，分红保留为现金", feed.Name())
				continue
			}
			reinvestSize := math.Floor(dividendAmount / next.Close)
			if reinvestSize > 0 {
				s.broker.Buy(next.Date, feed.Name(), reinvestSize, next.Close, "分红再投资")
				logger.Infof("将分红再投资: %.0f 份 %s，价格: %.4f", reinvestSize, feed.Name(), next.Close)
			}
		}
	}
}

// totalAsset 返回当前总资产（现金 + 持仓市值）。
func (s *BaseStrategy) totalAsset(date time.Time) float64 {
	return totalAsset(s.broker, s.feeds, date)
}

func (s *BaseStrategy) recordFinancingTrade(t FinancingTrade) {
	t.ID = len(s.financingTrades) + 1
	s.financingTrades = append(s.financingTrades, t)
	logger.Infof("记录融资交易: %+v", t)
}

// FinancingTrades 返回全部融资交易记录。
func (s *BaseStrategy) FinancingTrades() []FinancingTrade {
	out := make([]FinancingTrade, len(s.financingTrades))
	copy(out, s.financingTrades)
	return out
}

// FinancingValue 返回 date 当日融资份额的市值合计。
func (s *BaseStrategy) FinancingValue(date time.Time) float64 {
	var total float64
	for pair, info := range s.financingInfo {
		feed, ok := s.feeds.Get(pair)
		if !ok {
			continue
		}
		bar, ok := feed.Latest(date)
		if !ok {
			continue
		}
		total += info.Shares * bar.Close
	}
	return total
}

// FinancingInterest 返回累计融资利息合计。
func (s *BaseStrategy) FinancingInterest() float64 {
	var total float64
	for _, info := range s.financingInfo {
		total += info.TotalInterest
	}
	return total
}

// CurrencyInterests 返回各货币累计计息。
func (s *BaseStrategy) CurrencyInterests() map[string]float64 {
	if len(s.currentInterests) == 0 {
		return nil
	}
	out := make(map[string]float64, len(s.currentInterests))
	for k, v := range s.currentInterests {
		out[k] = v
	}
	return out
}
