package backtest

import (
	"strings"

	"baofu/internal/config"
)

// 内置融资利率表，配置未覆盖的货币对回落到缺省利率。
var builtinFinancingRates = map[string]float64{
	"JPYCNH": 0.01843,
	"CHFCNH": 0.01567,
}

const builtinFinancingDefaultRate = 0.05

// FinancingRateFunc 根据配置构造货币对→年化融资利率的查询函数。
func FinancingRateFunc(cfg config.BacktestConfig) func(pair string) float64 {
	defaultRate := cfg.FinancingDefaultRate
	if defaultRate <= 0 {
		defaultRate = builtinFinancingDefaultRate
	}
	return func(pair string) float64 {
		pair = strings.ToUpper(strings.TrimSpace(pair))
		if rate, ok := cfg.FinancingRates[pair]; ok && rate > 0 {
			return rate
		}
		if rate, ok := builtinFinancingRates[pair]; ok {
			return rate
		}
		return defaultRate
	}
}

// NewStrategy 按参数类型构造策略实例。参数应已通过 ParseStrategyParams 校验。
func NewStrategy(params StrategyParams, defaultRebalanceDays int, rateOf func(pair string) float64) (Strategy, error) {
	if rateOf == nil {
		rateOf = FinancingRateFunc(config.BacktestConfig{})
	}
	base := newBaseStrategy(params, rateOf)
	switch params.Type {
	case StrategyBuyAndHold:
		return newBuyAndHoldStrategy(base, params), nil
	case StrategyForexRebalance:
		return newForexRebalanceStrategy(base, params, defaultRebalanceDays), nil
	default:
		return nil, configErrorf("未知策略类型: %s", params.Type)
	}
}
