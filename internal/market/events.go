package market

import (
	"time"

	"papertrade/internal/bus"
)

// TradeTickEvent is published for every ingested trade.
type TradeTickEvent struct {
	Symbol string
	Tick   TradeTick
}

// OrderBookTopEvent is published for every top-of-book replacement.
type OrderBookTopEvent struct {
	Symbol string
	Top    OrderBookTop
}

// BarClosedEvent is published exactly once per closed bar.
type BarClosedEvent struct {
	Symbol     string
	Resolution Resolution
	BarTime    time.Time
	Bar        Bar
}

// Bus carries the three market data event streams on typed hubs.
type Bus struct {
	trades *bus.Hub[TradeTickEvent]
	books  *bus.Hub[OrderBookTopEvent]
	bars   *bus.Hub[BarClosedEvent]
}

// NewBus creates an empty market data bus.
func NewBus() *Bus {
	return &Bus{
		trades: bus.NewHub[TradeTickEvent](),
		books:  bus.NewHub[OrderBookTopEvent](),
		bars:   bus.NewHub[BarClosedEvent](),
	}
}

// SubscribeTrades registers a trade handler and returns its unsubscribe func.
func (b *Bus) SubscribeTrades(fn func(TradeTickEvent)) func() {
	return b.trades.Subscribe(fn)
}

// SubscribeBooks registers a top-of-book handler and returns its unsubscribe func.
func (b *Bus) SubscribeBooks(fn func(OrderBookTopEvent)) func() {
	return b.books.Subscribe(fn)
}

// SubscribeBars registers a bar-closed handler and returns its unsubscribe func.
func (b *Bus) SubscribeBars(fn func(BarClosedEvent)) func() {
	return b.bars.Subscribe(fn)
}

// PublishTrade notifies trade subscribers.
func (b *Bus) PublishTrade(e TradeTickEvent) { b.trades.Publish(e) }

// PublishBook notifies top-of-book subscribers.
func (b *Bus) PublishBook(e OrderBookTopEvent) { b.books.Publish(e) }

// PublishBar notifies bar subscribers.
func (b *Bus) PublishBar(e BarClosedEvent) { b.bars.Publish(e) }
