package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategyParamsBuyAndHold(t *testing.T) {
	raw := `{
		"type": "buy_and_hold",
		"open_date": "2024-01-01",
		"products": ["fund_a", "fund_b"],
		"weights": [0.6, 0.4]
	}`
	params, err := ParseStrategyParams(raw)
	require.NoError(t, err)
	assert.Equal(t, StrategyBuyAndHold, params.Type)
	assert.Equal(t, "cash", params.DividendMethod)
	assert.Equal(t, []string{"fund_a", "fund_b"}, params.Products)

	open, ok, err := params.OpenDay()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-01", open.Format("2006-01-02"))
	_, ok, err = params.CloseDay()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseStrategyParamsWeightSum(t *testing.T) {
	_, err := ParseStrategyParams(`{"type":"buy_and_hold","products":["a","b"],"weights":[0.6,0.37]}`)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "权重之和必须为1")

	// 浮点误差在容差内放行。
	_, err = ParseStrategyParams(`{"type":"buy_and_hold","products":["a","b"],"weights":[0.6,0.40003]}`)
	require.NoError(t, err)
}

func TestParseStrategyParamsRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"空参数", ""},
		{"非法 JSON", `{"type":`},
		{"未知类型", `{"type":"martingale"}`},
		{"schema 拒绝类型", `{"type":"buy_and_hold","products":"a"}`},
		{"产品权重长度不一致", `{"type":"buy_and_hold","products":["a"],"weights":[0.5,0.5]}`},
		{"缺 base_currency", `{"type":"forex_rebalance","forex_pairs":[{"symbol":"CNYJPY","weight":1}],"initial_positions":[{"currency":"JPY","amount":1}]}`},
		{"融资比例非正", `{"type":"buy_and_hold","products":["a"],"weights":[1],"forex_financing":{"JPYCNH":0}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseStrategyParams(tc.raw)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "应为配置错误: %v", err)
		})
	}
}

func TestParseStrategyParamsForexRebalance(t *testing.T) {
	raw := `{
		"type": "forex_rebalance",
		"base_currency": "CNY",
		"forex_pairs": [
			{"symbol": "CNYJPY", "weight": 0.7},
			{"symbol": "CNYUSD", "weight": 0.3}
		],
		"initial_positions": [{"currency": "JPY", "amount": 1000000}],
		"rebalance_days": 10,
		"current_rate": {"CNY": "CN10Y", "JPY": "JP10Y"}
	}`
	params, err := ParseStrategyParams(raw)
	require.NoError(t, err)
	assert.Equal(t, 10, params.RebalanceDays)

	symbols := params.Symbols()
	assert.Contains(t, symbols, "CNYJPY")
	assert.Contains(t, symbols, "CNYUSD")
	assert.Contains(t, symbols, "CN10Y")
	assert.Contains(t, symbols, "JP10Y")
	// 本位币现金计息不需要行情，只需要其债券利率。
	assert.NotContains(t, symbols, "CNY")
	assert.Contains(t, symbols, "JPY")
}

func TestSubstitutePlaceholders(t *testing.T) {
	raw := `{"open_date":"<open_date>","close_date":"<close_date>"}`
	got := SubstitutePlaceholders(raw, map[string]string{
		"open_date":  "2024-01-01",
		"close_date": "2024-06-30",
	})
	assert.Equal(t, `{"open_date":"2024-01-01","close_date":"2024-06-30"}`, got)
}

func TestExtractField(t *testing.T) {
	raw := `{"type":"buy_and_hold","weights":[0.6,0.4]}`
	v, ok := ExtractField(raw, "type")
	require.True(t, ok)
	assert.Equal(t, "buy_and_hold", v)

	v, ok = ExtractField(raw, "weights.1")
	require.True(t, ok)
	assert.Equal(t, "0.4", v)

	_, ok = ExtractField(raw, "missing")
	assert.False(t, ok)
}
