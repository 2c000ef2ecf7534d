package backtest

import (
	"context"
	"time"
)

// Tick 是事件循环推进到某个交易日时传给策略的上下文。
type Tick struct {
	Index  int
	Date   time.Time
	IsLast bool
}

// Strategy 是事件循环驱动的策略接口。
// Start 在循环开始前调用，做参数校验与引用绑定，校验失败即终止任务。
type Strategy interface {
	Start(b *Broker, feeds *FeedSet) error
	OnTick(tick Tick) error
}

// ExtensionReport 由携带扩展的策略实现，供引擎在快照中落融资与计息数据。
type ExtensionReport interface {
	FinancingValue(date time.Time) float64
	FinancingInterest() float64
	CurrencyInterests() map[string]float64
}

// DailyAsset 是单个交易日收盘后的资产快照。
type DailyAsset struct {
	Date  time.Time `json:"date"`
	Cash  float64   `json:"cash"`
	Asset float64   `json:"asset"`
	Total float64   `json:"total"`
	// Products 为各标的持仓市值。
	Products          map[string]float64 `json:"products,omitempty"`
	FinancingValue    float64            `json:"financing_value,omitempty"`
	FinancingInterest float64            `json:"financing_interest,omitempty"`
	CurrencyInterest  map[string]float64 `json:"currency_interest,omitempty"`
}

// Engine 以主数据源的交易日为时钟逐日驱动策略，单线程确定性执行。
type Engine struct {
	broker    *Broker
	feeds     *FeedSet
	strategy  Strategy
	snapshots []DailyAsset
}

func NewEngine(broker *Broker, feeds *FeedSet, strategy Strategy) (*Engine, error) {
	if broker == nil {
		return nil, configErrorf("broker 不能为空")
	}
	if feeds == nil || len(feeds.All()) == 0 {
		return nil, configErrorf("数据源不能为空")
	}
	if strategy == nil {
		return nil, configErrorf("strategy 不能为空")
	}
	return &Engine{broker: broker, feeds: feeds, strategy: strategy}, nil
}

// Run 执行完整回测。配置类错误在策略 Start 阶段返回；
// 循环中的错误原样返回，调用方决定如何落盘。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.strategy.Start(e.broker, e.feeds); err != nil {
		return err
	}
	bars := e.feeds.Primary().Bars()
	e.snapshots = make([]DailyAsset, 0, len(bars))
	for idx, bar := range bars {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		tick := Tick{Index: idx, Date: bar.Date, IsLast: idx == len(bars)-1}
		if err := e.strategy.OnTick(tick); err != nil {
			return err
		}
		e.snapshots = append(e.snapshots, e.snapshot(bar.Date))
	}
	return nil
}

// Snapshots 返回资金曲线（逐日快照）。
func (e *Engine) Snapshots() []DailyAsset { return e.snapshots }

// TotalAsset 返回 date 收盘后的总资产：现金 + 各标的持仓市值。
func (e *Engine) TotalAsset(date time.Time) float64 {
	return totalAsset(e.broker, e.feeds, date)
}

func (e *Engine) snapshot(date time.Time) DailyAsset {
	snap := DailyAsset{Date: date, Cash: e.broker.Cash()}
	for product, size := range e.broker.Positions() {
		if size == 0 {
			continue
		}
		feed, ok := e.feeds.Get(product)
		if !ok {
			continue
		}
		bar, ok := feed.Latest(date)
		if !ok {
			continue
		}
		value := size * bar.Close
		if snap.Products == nil {
			snap.Products = make(map[string]float64)
		}
		snap.Products[product] = value
		snap.Asset += value
	}
	snap.Total = snap.Cash + snap.Asset
	if rep, ok := e.strategy.(ExtensionReport); ok {
		snap.FinancingValue = rep.FinancingValue(date)
		snap.FinancingInterest = rep.FinancingInterest()
		snap.CurrencyInterest = rep.CurrencyInterests()
	}
	return snap
}

// totalAsset 为策略与扩展共用的估值口径：现金 + 持仓按最近收盘的市值。
func totalAsset(b *Broker, feeds *FeedSet, date time.Time) float64 {
	total := b.Cash()
	for product, size := range b.Positions() {
		if size == 0 {
			continue
		}
		feed, ok := feeds.Get(product)
		if !ok {
			continue
		}
		bar, ok := feed.Latest(date)
		if !ok {
			continue
		}
		total += size * bar.Close
	}
	return total
}
