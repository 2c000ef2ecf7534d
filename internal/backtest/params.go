package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"baofu/internal/market"

	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const (
	StrategyBuyAndHold     = "buy_and_hold"
	StrategyForexRebalance = "forex_rebalance"
)

// ForexPair 把一个外汇对绑定到目标权重。
type ForexPair struct {
	Symbol string  `mapstructure:"symbol" json:"symbol"`
	Weight float64 `mapstructure:"weight" json:"weight"`
}

// InitialPosition 是外汇再平衡策略的初始币种头寸。
type InitialPosition struct {
	Currency string  `mapstructure:"currency" json:"currency"`
	Amount   float64 `mapstructure:"amount" json:"amount"`
}

// StrategyParams 是策略 JSON 解码后的参数载体。
type StrategyParams struct {
	Type           string `mapstructure:"type"`
	OpenDate       string `mapstructure:"open_date"`
	CloseDate      string `mapstructure:"close_date"`
	DividendMethod string `mapstructure:"dividend_method"`

	// buy_and_hold
	Products []string  `mapstructure:"products"`
	Weights  []float64 `mapstructure:"weights"`

	// forex_rebalance
	ForexPairs       []ForexPair       `mapstructure:"forex_pairs"`
	BaseCurrency     string            `mapstructure:"base_currency"`
	InitialPositions []InitialPosition `mapstructure:"initial_positions"`
	RebalanceDays    int               `mapstructure:"rebalance_days"`

	// 扩展
	ForexFinancing    map[string]float64 `mapstructure:"forex_financing"`
	FinancingLeverage float64            `mapstructure:"financing_leverage"`
	CurrentRate       map[string]string  `mapstructure:"current_rate"`
}

const strategySchemaJSON = `{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["buy_and_hold", "forex_rebalance"]},
    "open_date": {"type": "string"},
    "close_date": {"type": "string"},
    "dividend_method": {"type": "string", "enum": ["cash", "reinvest"]},
    "products": {"type": "array", "items": {"type": "string"}},
    "weights": {"type": "array", "items": {"type": "number"}},
    "forex_pairs": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "symbol": {"type": "string"},
          "weight": {"type": "number"}
        },
        "required": ["symbol", "weight"]
      }
    },
    "base_currency": {"type": "string"},
    "initial_positions": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "currency": {"type": "string"},
          "amount": {"type": "number"}
        },
        "required": ["currency", "amount"]
      }
    },
    "rebalance_days": {"type": "integer", "minimum": 1},
    "forex_financing": {"type": "object", "additionalProperties": {"type": "number"}},
    "financing_leverage": {"type": "number"},
    "current_rate": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "required": ["type"]
}`

var strategySchema = jsonschema.MustCompileString("strategy.json", strategySchemaJSON)

// ParseStrategyParams 校验并解码策略 JSON，任何问题都按配置错误返回。
func ParseStrategyParams(raw string) (StrategyParams, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StrategyParams{}, configErrorf("策略参数为空")
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return StrategyParams{}, configErrorf("策略 JSON 解析失败: %v", err)
	}
	if err := strategySchema.Validate(doc); err != nil {
		return StrategyParams{}, configErrorf("策略 JSON 校验失败: %v", err)
	}
	var params StrategyParams
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &params,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return StrategyParams{}, err
	}
	if err := dec.Decode(doc); err != nil {
		return StrategyParams{}, configErrorf("策略参数解码失败: %v", err)
	}
	if params.DividendMethod == "" {
		params.DividendMethod = "cash"
	}
	if err := params.validate(); err != nil {
		return StrategyParams{}, err
	}
	return params, nil
}

func (p *StrategyParams) validate() error {
	switch p.Type {
	case StrategyBuyAndHold:
		if len(p.Products) == 0 {
			return configErrorf("products 不能为空")
		}
		if len(p.Products) != len(p.Weights) {
			return configErrorf("产品列表和权重列表长度不匹配: %d != %d", len(p.Products), len(p.Weights))
		}
		if err := checkWeightSum(p.Weights); err != nil {
			return err
		}
	case StrategyForexRebalance:
		if len(p.ForexPairs) == 0 {
			return configErrorf("forex_pairs 不能为空")
		}
		if strings.TrimSpace(p.BaseCurrency) == "" {
			return configErrorf("base_currency 不能为空")
		}
		if len(p.InitialPositions) == 0 {
			return configErrorf("initial_positions 不能为空")
		}
		weights := make([]float64, len(p.ForexPairs))
		for i, pair := range p.ForexPairs {
			weights[i] = pair.Weight
		}
		if err := checkWeightSum(weights); err != nil {
			return err
		}
	default:
		return configErrorf("未知策略类型: %s", p.Type)
	}
	for pair, ratio := range p.ForexFinancing {
		if ratio <= 0 {
			return configErrorf("forex_financing.%s 比例必须为正: %v", pair, ratio)
		}
	}
	if _, _, err := p.OpenDay(); err != nil {
		return err
	}
	if _, _, err := p.CloseDay(); err != nil {
		return err
	}
	return nil
}

// checkWeightSum 要求权重和为 1，允许 1e-4 的浮点误差。
func checkWeightSum(weights []float64) error {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-4 {
		return configErrorf("权重之和必须为1，当前为 %v", sum)
	}
	return nil
}

// OpenDay 返回解析后的开仓日期，未指定时 ok 为 false。
func (p StrategyParams) OpenDay() (time.Time, bool, error) {
	return parseDay(p.OpenDate)
}

// CloseDay 返回解析后的平仓日期，未指定时 ok 为 false。
func (p StrategyParams) CloseDay() (time.Time, bool, error) {
	return parseDay(p.CloseDate)
}

func parseDay(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	day, err := market.ParseDay(s)
	if err != nil {
		return time.Time{}, false, configErrorf("日期格式非法: %q", s)
	}
	return day, true, nil
}

// Symbols 收集本次回测需要加载行情的全部标的：
// 产品、外汇对、融资货币对、计息货币及其债券代码。
func (p StrategyParams) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			return
		}
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	for _, prod := range p.Products {
		add(prod)
	}
	for _, pair := range p.ForexPairs {
		add(pair.Symbol)
	}
	for pair := range p.ForexFinancing {
		add(pair)
	}
	for currency, bondType := range p.CurrentRate {
		if !strings.EqualFold(currency, homeCurrency) {
			add(currency)
		}
		add(bondType)
	}
	return out
}

// SubstitutePlaceholders 把模板 JSON 里的 <name> 占位符替换为实际值。
// 模板常用 <open_date>/<close_date> 把统计区间延后绑定。
func SubstitutePlaceholders(raw string, values map[string]string) string {
	for name, v := range values {
		raw = strings.ReplaceAll(raw, "<"+name+">", v)
	}
	return raw
}

// ExtractField 从策略 JSON 中按路径取字段文本，路径语法见 gjson。
func ExtractField(raw, path string) (string, bool) {
	res := gjson.Get(raw, path)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// DescribeParams 生成一行参数摘要，供运行记录与日志使用。
func DescribeParams(p StrategyParams) string {
	switch p.Type {
	case StrategyBuyAndHold:
		return fmt.Sprintf("%s products=%v weights=%v dividend=%s",
			p.Type, p.Products, p.Weights, p.DividendMethod)
	case StrategyForexRebalance:
		return fmt.Sprintf("%s pairs=%d base=%s rebalance=%dd",
			p.Type, len(p.ForexPairs), p.BaseCurrency, p.RebalanceDays)
	default:
		return p.Type
	}
}
