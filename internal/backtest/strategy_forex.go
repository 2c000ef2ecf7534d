package backtest

import (
	"math"
	"strings"

	"baofu/internal/logger"
)

// rebalanceThreshold 为触发调仓的最小价值差额。
const rebalanceThreshold = 0.01

// ForexRebalanceStrategy 按设定权重定期再平衡各外汇对的持仓。
type ForexRebalanceStrategy struct {
	*BaseStrategy

	pairs            []ForexPair
	baseCurrency     string
	initialPositions []InitialPosition
	rebalanceDays    int

	initialized  bool
	lastRebalBar int
}

func newForexRebalanceStrategy(base *BaseStrategy, params StrategyParams, defaultRebalanceDays int) *ForexRebalanceStrategy {
	days := params.RebalanceDays
	if days <= 0 {
		days = defaultRebalanceDays
	}
	if days <= 0 {
		days = 5
	}
	return &ForexRebalanceStrategy{
		BaseStrategy:     base,
		pairs:            params.ForexPairs,
		baseCurrency:     strings.ToUpper(strings.TrimSpace(params.BaseCurrency)),
		initialPositions: params.InitialPositions,
		rebalanceDays:    days,
	}
}

// Start 校验每个外汇对都有数据源并绑定运行环境。
func (s *ForexRebalanceStrategy) Start(b *Broker, feeds *FeedSet) error {
	for _, pair := range s.pairs {
		if _, ok := feeds.Get(pair.Symbol); !ok {
			return configErrorf("找不到外汇对 %s 的数据", pair.Symbol)
		}
	}
	return s.bind(b, feeds)
}

func (s *ForexRebalanceStrategy) OnTick(tick Tick) error {
	return s.tick(tick, s.initializePositions, s.rebalance)
}

// initializePositions 把初始币种头寸按首个汇率换成外汇对持仓。
func (s *ForexRebalanceStrategy) initializePositions(tick Tick) error {
	if s.initialized {
		return nil
	}
	for _, position := range s.initialPositions {
		currency := strings.ToUpper(strings.TrimSpace(position.Currency))
		if currency == s.baseCurrency {
			continue
		}
		pairSymbol := s.baseCurrency + currency
		feed, ok := s.feeds.Get(pairSymbol)
		if !ok {
			return configErrorf("找不到将%s转换为%s的汇率数据", currency, s.baseCurrency)
		}
		bar, ok := feed.Latest(tick.Date)
		if !ok || bar.Close <= 0 {
			logger.Warnf("外汇对 %s 在 %s 无有效汇率，跳过初始买入", pairSymbol, tick.Date.Format("2006-01-02"))
			continue
		}
		size := math.Trunc(position.Amount / bar.Close)
		if size > 0 {
			logger.Infof("初始买入 %s: %.0f 单位", pairSymbol, size)
			s.broker.Buy(tick.Date, pairSymbol, size, bar.Close, "初始建仓")
		}
	}
	s.initialized = true
	return nil
}

// rebalance 每 rebalanceDays 个交易日把各外汇对调回目标权重，整数份额。
func (s *ForexRebalanceStrategy) rebalance(tick Tick) error {
	barCount := tick.Index + 1
	if barCount-s.lastRebalBar < s.rebalanceDays {
		return nil
	}
	s.lastRebalBar = barCount

	totalValue := s.totalAsset(tick.Date)
	for _, pair := range s.pairs {
		feed, _ := s.feeds.Get(pair.Symbol)
		bar, ok := feed.Latest(tick.Date)
		if !ok || bar.Close <= 0 {
			logger.Warnf("外汇对 %s 在 %s 无有效汇率，跳过调仓", pair.Symbol, tick.Date.Format("2006-01-02"))
			continue
		}
		currentValue := s.broker.PositionValue(pair.Symbol, bar.Close)
		targetValue := totalValue * pair.Weight
		valueDiff := targetValue - currentValue
		if math.Abs(valueDiff) <= rebalanceThreshold {
			continue
		}
		size := math.Trunc(valueDiff / bar.Close)
		if size > 0 {
			logger.Infof("买入 %s: %.0f 单位", pair.Symbol, size)
			s.broker.Buy(tick.Date, pair.Symbol, size, bar.Close, "定期调仓")
		} else if size < 0 {
			logger.Infof("卖出 %s: %.0f 单位", pair.Symbol, -size)
			s.broker.Sell(tick.Date, pair.Symbol, -size, bar.Close, "定期调仓")
		}
	}
	return nil
}
