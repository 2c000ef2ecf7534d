package backtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"baofu/internal/config"
	"baofu/internal/logger"
	"baofu/internal/market"

	"golang.org/x/sync/errgroup"
)

const defaultInitialCash = 1_000_000

// Result 是一次回测的完整产出。配置错误不会产生 Result，
// 运行期错误以 IsSuccess=false 的 Result 形式落盘。
type Result struct {
	IsSuccess bool   `json:"is_success"`
	Error     string `json:"error,omitempty"`

	StrategyName string    `json:"strategy_name"`
	StrategyType string    `json:"strategy_type"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`

	InitialValue float64 `json:"initial_value"`
	FinalValue   float64 `json:"final_value"`
	ReturnRate   float64 `json:"return_rate"`

	DailyAssets       []DailyAsset       `json:"daily_assets"`
	Trades            []Trade            `json:"trades"`
	FinancingTrades   []FinancingTrade   `json:"financing_trades,omitempty"`
	CurrencyInterests map[string]float64 `json:"currency_interests,omitempty"`
	Positions         map[string]float64 `json:"positions,omitempty"`
}

// Task 负责一次回测的数据装载、事件循环执行与结果组装。
type Task struct {
	store *market.Store
	cfg   config.BacktestConfig
}

func NewTask(store *market.Store, cfg config.BacktestConfig) *Task {
	return &Task{store: store, cfg: cfg}
}

// Run 执行回测。参数问题返回 ConfigError；
// 运行期失败返回 IsSuccess=false 的 Result 且 error 为 nil。
func (t *Task) Run(ctx context.Context, name string, params StrategyParams, initialCash float64) (*Result, error) {
	if t.store == nil {
		return nil, configErrorf("行情库未初始化")
	}
	if initialCash <= 0 {
		initialCash = t.cfg.InitialCash
	}
	if initialCash <= 0 {
		initialCash = defaultInitialCash
	}

	feeds, err := t.loadFeeds(ctx, params)
	if err != nil {
		return nil, err
	}

	strategy, err := NewStrategy(params, t.cfg.RebalanceDays, FinancingRateFunc(t.cfg))
	if err != nil {
		return nil, err
	}

	broker := NewBroker(initialCash)
	engine, err := NewEngine(broker, feeds, strategy)
	if err != nil {
		return nil, err
	}

	result := &Result{
		StrategyName: name,
		StrategyType: params.Type,
		InitialValue: initialCash,
	}
	if first, ok := feeds.Primary().FirstDate(); ok {
		result.StartDate = first
	}
	if last, ok := feeds.Primary().LastDate(); ok {
		result.EndDate = last
	}

	logger.Infof("回测开始: %s (%s), 初始资金=%.2f, 数据源=%v",
		name, DescribeParams(params), initialCash, feeds.Names())
	if err := engine.Run(ctx); err != nil {
		if IsConfigError(err) {
			return nil, err
		}
		logger.Errorf("回测失败: %s: %v", name, err)
		result.Error = err.Error()
		return result, nil
	}

	result.IsSuccess = true
	result.DailyAssets = engine.Snapshots()
	result.Trades = broker.Trades()
	result.Positions = broker.Positions()
	if rep, ok := strategy.(interface{ FinancingTrades() []FinancingTrade }); ok {
		result.FinancingTrades = rep.FinancingTrades()
	}
	if rep, ok := strategy.(ExtensionReport); ok {
		result.CurrencyInterests = rep.CurrencyInterests()
	}
	if n := len(result.DailyAssets); n > 0 {
		result.FinalValue = result.DailyAssets[n-1].Total
		result.ReturnRate = (result.FinalValue - result.InitialValue) / result.InitialValue * 100
	}
	logger.Infof("回测完成: %s, 期末资产=%.2f, 收益率=%.2f%%", name, result.FinalValue, result.ReturnRate)
	return result, nil
}

// loadFeeds 并发加载本次回测涉及的全部行情：
// 产品与外汇对走行情表，计息货币的债券代码走利率表。
func (t *Task) loadFeeds(ctx context.Context, params StrategyParams) (*FeedSet, error) {
	start, _, err := params.OpenDay()
	if err != nil {
		return nil, err
	}
	end, _, err := params.CloseDay()
	if err != nil {
		return nil, err
	}

	bondTypes := make(map[string]struct{}, len(params.CurrentRate))
	for _, bondType := range params.CurrentRate {
		bondTypes[strings.ToUpper(strings.TrimSpace(bondType))] = struct{}{}
	}

	symbols := params.Symbols()
	if len(symbols) == 0 {
		return nil, configErrorf("没有需要加载的行情标的")
	}

	feeds := make([]*Feed, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			var feed *Feed
			if _, isBond := bondTypes[symbol]; isBond {
				rates, err := t.store.GetBondRates(gctx, symbol, start, end)
				if err != nil {
					return err
				}
				series := make(market.Series, len(rates))
				for j, r := range rates {
					series[j] = market.PricePoint{Symbol: symbol, Date: r.Date, Close: r.Rate}
				}
				feed = NewFeed(symbol, series, nil)
			} else {
				series, err := t.store.GetSeries(gctx, symbol, start, end)
				if err != nil {
					return err
				}
				feed = NewFeed(symbol, series, nil)
			}
			if feed.Len() == 0 {
				return configErrorf("标的 %s 在回测区间内没有行情数据", symbol)
			}
			mu.Lock()
			feeds[i] = feed
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewFeedSet(feeds...)
}
