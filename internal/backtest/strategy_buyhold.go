package backtest

import (
	"baofu/internal/logger"
)

// BuyAndHoldStrategy 在开仓日按权重一次性买入并持有，
// 分红与扩展由 BaseStrategy 公共机制处理。
type BuyAndHoldStrategy struct {
	*BaseStrategy

	products []string
	weights  []float64
	opened   bool
}

func newBuyAndHoldStrategy(base *BaseStrategy, params StrategyParams) *BuyAndHoldStrategy {
	return &BuyAndHoldStrategy{
		BaseStrategy: base,
		products:     params.Products,
		weights:      params.Weights,
	}
}

// Start 校验每个产品都有数据源并绑定运行环境。
func (s *BuyAndHoldStrategy) Start(b *Broker, feeds *FeedSet) error {
	for _, product := range s.products {
		if _, ok := feeds.Get(product); !ok {
			return configErrorf("未找到产品%s对应的数据源", product)
		}
	}
	if err := s.bind(b, feeds); err != nil {
		return err
	}
	logger.Infof("策略参数解析成功: 开仓日期=%s, 投资组合=%v, 权重=%v",
		s.openTradeDate.Format("2006-01-02"), s.products, s.weights)
	return nil
}

func (s *BuyAndHoldStrategy) OnTick(tick Tick) error {
	return s.tick(tick, s.openPositions, nil)
}

// openPositions 按可用现金与目标权重买入各产品。
func (s *BuyAndHoldStrategy) openPositions(tick Tick) error {
	if s.opened {
		return nil
	}
	availableCash := s.broker.Cash()
	for i, product := range s.products {
		weight := s.weights[i]
		feed, _ := s.feeds.Get(product)
		bar, ok := feed.Latest(tick.Date)
		if !ok || bar.Close <= 0 {
			logger.Warnf("产品%s在 %s 无有效价格，跳过买入", product, tick.Date.Format("2006-01-02"))
			continue
		}
		targetValue := availableCash * weight
		size := targetValue / bar.Close
		logger.Infof("产品%s: 权重=%v, 目标金额=%.2f, 价格=%.4f, 数量=%.4f",
			product, weight, targetValue, bar.Close, size)
		s.broker.Buy(tick.Date, product, size, bar.Close, "建仓买入")
	}
	s.opened = true
	return nil
}
