package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerBuySell(t *testing.T) {
	b := NewBroker(1000)
	date := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	trade := b.Buy(date, "fund_a", 5, 100, "建仓买入")
	assert.Equal(t, TradeStatusCompleted, trade.Status)
	assert.Equal(t, 500.0, b.Cash())
	assert.Equal(t, 5.0, b.Position("FUND_A"))
	assert.Equal(t, 550.0, b.PositionValue("fund_a", 110))

	// 卖出超过持仓的部分被截断。
	trade = b.Sell(date, "FUND_A", 8, 110, "减仓")
	assert.Equal(t, TradeStatusCompleted, trade.Status)
	assert.Equal(t, 5.0, trade.Size)
	assert.Equal(t, 0.0, b.Position("FUND_A"))
	assert.InDelta(t, 1050.0, b.Cash(), 1e-9)

	// 无持仓时卖出记为拒单。
	trade = b.Sell(date, "FUND_A", 1, 110, "")
	assert.Equal(t, TradeStatusRejected, trade.Status)

	trade = b.Buy(date, "FUND_A", -1, 100, "")
	assert.Equal(t, TradeStatusRejected, trade.Status)
	trade = b.Buy(date, "FUND_A", 1, 0, "")
	assert.Equal(t, TradeStatusRejected, trade.Status)

	trades := b.Trades()
	require.Len(t, trades, 5)
	for i, tr := range trades {
		assert.Equal(t, int64(i+1), tr.ID)
	}
}

func TestBrokerCashAdjustments(t *testing.T) {
	b := NewBroker(100)
	b.AddCash(-30)
	assert.Equal(t, 70.0, b.Cash())
	b.SetCash(500)
	assert.Equal(t, 500.0, b.Cash())

	var notified []Trade
	b.SetTradeCallback(func(tr Trade) { notified = append(notified, tr) })
	b.Buy(time.Now(), "x", 1, 10, "")
	require.Len(t, notified, 1)
	assert.Equal(t, TradeActionBuy, notified[0].Action)
}
