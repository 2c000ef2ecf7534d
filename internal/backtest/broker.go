package backtest

import (
	"strings"
	"time"

	"baofu/internal/logger"
)

const (
	TradeActionBuy  = "buy"
	TradeActionSell = "sell"

	TradeStatusCompleted = "completed"
	TradeStatusRejected  = "rejected"
)

// Trade 记录一笔模拟成交（或被拒绝的委托）。
type Trade struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	Product string    `json:"product"`
	Action  string    `json:"action"`
	Size    float64   `json:"size"`
	Price   float64   `json:"price"`
	Value   float64   `json:"value"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
}

// Broker 维护现金账本与各标的持仓，成交即时清算，零佣金。
type Broker struct {
	cash      float64
	positions map[string]float64
	trades    []Trade
	nextID    int64
	onTrade   func(Trade)
}

func NewBroker(initialCash float64) *Broker {
	return &Broker{
		cash:      initialCash,
		positions: make(map[string]float64),
	}
}

// SetTradeCallback 注册成交回调（成交与拒单都会通知）。
func (b *Broker) SetTradeCallback(fn func(Trade)) { b.onTrade = fn }

func (b *Broker) Cash() float64 { return b.cash }

// SetCash 直接改写现金余额，融资与计息扩展使用。
func (b *Broker) SetCash(v float64) { b.cash = v }

// AddCash 以增量方式调整现金余额。
func (b *Broker) AddCash(delta float64) { b.cash += delta }

// Position 返回某标的当前持仓份额。
func (b *Broker) Position(product string) float64 {
	return b.positions[normalizeProduct(product)]
}

// PositionValue 返回某标的按 price 计的持仓市值。
func (b *Broker) PositionValue(product string, price float64) float64 {
	return b.Position(product) * price
}

// Positions 返回持仓份额快照。
func (b *Broker) Positions() map[string]float64 {
	out := make(map[string]float64, len(b.positions))
	for k, v := range b.positions {
		out[k] = v
	}
	return out
}

// Buy 按收盘价买入。价格或数量非法时记录拒单并返回。
func (b *Broker) Buy(date time.Time, product string, size, price float64, message string) Trade {
	product = normalizeProduct(product)
	if size <= 0 || price <= 0 {
		return b.reject(date, product, TradeActionBuy, size, price, message)
	}
	value := size * price
	b.cash -= value
	b.positions[product] += size
	return b.complete(date, product, TradeActionBuy, size, price, value, message)
}

// Sell 按收盘价卖出，超出持仓的部分被截断；无持仓时记录拒单。
func (b *Broker) Sell(date time.Time, product string, size, price float64, message string) Trade {
	product = normalizeProduct(product)
	held := b.positions[product]
	if size <= 0 || price <= 0 || held <= 0 {
		return b.reject(date, product, TradeActionSell, size, price, message)
	}
	if size > held {
		size = held
	}
	value := size * price
	b.cash += value
	b.positions[product] = held - size
	return b.complete(date, product, TradeActionSell, size, price, value, message)
}

// Trades 返回全部成交记录。
func (b *Broker) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

func (b *Broker) complete(date time.Time, product, action string, size, price, value float64, message string) Trade {
	b.nextID++
	t := Trade{
		ID:      b.nextID,
		Date:    date,
		Product: product,
		Action:  action,
		Size:    size,
		Price:   price,
		Value:   value,
		Status:  TradeStatusCompleted,
		Message: message,
	}
	b.trades = append(b.trades, t)
	if b.onTrade != nil {
		b.onTrade(t)
	}
	return t
}

func (b *Broker) reject(date time.Time, product, action string, size, price float64, message string) Trade {
	b.nextID++
	t := Trade{
		ID:      b.nextID,
		Date:    date,
		Product: product,
		Action:  action,
		Size:    size,
		Price:   price,
		Status:  TradeStatusRejected,
		Message: message,
	}
	b.trades = append(b.trades, t)
	logger.Warnf("[backtest] 拒单 %s %s size=%.4f price=%.4f (%s)", action, product, size, price, message)
	if b.onTrade != nil {
		b.onTrade(t)
	}
	return t
}

func normalizeProduct(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}
