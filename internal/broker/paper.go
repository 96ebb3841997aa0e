package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/bus"
	"papertrade/internal/market"
	"papertrade/internal/obs"
)

// MarketView is the slice of the market query surface the engine needs.
type MarketView interface {
	Now() time.Time
	GetLastOrderBookTop(symbol string) (market.OrderBookTop, bool)
}

// PaperConfig tunes the simulated execution venue.
type PaperConfig struct {
	Name           string
	QuoteCurrency  string
	InitialBalance decimal.Decimal
	TakerFeeRate   decimal.Decimal
	MakerFeeRate   decimal.Decimal
	SlippageBps    decimal.Decimal
	Latency        time.Duration
}

func (c *PaperConfig) normalize() {
	if c.Name == "" {
		c.Name = "paper"
	}
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USDT"
	}
	if c.InitialBalance.IsZero() {
		c.InitialBalance = decimal.NewFromInt(1_000_000_000)
	}
}

type paperOrder struct {
	Order
	seq           uint64
	remaining     decimal.Decimal
	reservedQuote decimal.Decimal
	reservedBase  decimal.Decimal
}

type positionState struct {
	quantity decimal.Decimal
	avgPrice decimal.Decimal
}

// Paper is a simulated broker filling orders against the latest top-of-book.
// Placements reserve funds or inventory up front so concurrent open orders can
// never overspend; fills consume reservations and cancels release them.
// All events are published outside the engine lock.
type Paper struct {
	cfg     PaperConfig
	view    MarketView
	events  *bus.Hub[Event]
	metrics *obs.Metrics

	mu           sync.Mutex
	seq          uint64
	cashFree     decimal.Decimal
	cashReserved decimal.Decimal
	positions    map[string]*positionState
	baseReserved map[string]decimal.Decimal
	orders       map[string]*paperOrder
}

// NewPaper creates an engine reading prices from view.
func NewPaper(cfg PaperConfig, view MarketView, metrics *obs.Metrics) *Paper {
	cfg.normalize()
	return &Paper{
		cfg:          cfg,
		view:         view,
		events:       bus.NewHub[Event](),
		metrics:      metrics,
		cashFree:     cfg.InitialBalance,
		cashReserved: decimal.Zero,
		positions:    make(map[string]*positionState),
		baseReserved: make(map[string]decimal.Decimal),
		orders:       make(map[string]*paperOrder),
	}
}

// Name returns the venue name.
func (p *Paper) Name() string { return p.cfg.Name }

// SubscribeEvents registers an event handler and returns its unsubscribe func.
func (p *Paper) SubscribeEvents(fn func(Event)) func() {
	return p.events.Subscribe(fn)
}

// PlaceOrder validates, reserves, registers and, for Market and IOC/FOK
// orders, immediately matches against the latest top-of-book. The unfilled
// IOC/FOK remainder is canceled after the attempt. The returned error is
// non-nil only for context cancellation; business rejections come back as an
// unaccepted ack.
func (p *Paper) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderAck, error) {
	req.Symbol = strings.ToUpper(req.Symbol)

	if !req.Quantity.IsPositive() {
		return OrderAck{ClientOrderID: req.ClientOrderID, Message: "quantity must be positive"}, nil
	}
	if req.Type == Limit && !req.LimitPrice.IsPositive() {
		return OrderAck{ClientOrderID: req.ClientOrderID, Message: "limit price must be positive for limit orders"}, nil
	}

	if err := p.wait(ctx); err != nil {
		return OrderAck{}, err
	}

	p.mu.Lock()
	now := p.view.Now()
	o, reserveErr := p.admitLocked(req, now)
	if o == nil {
		p.mu.Unlock()
		p.metrics.IncOrdersRejected()
		return OrderAck{ClientOrderID: req.ClientOrderID, Message: reserveErr}, nil
	}

	events := []Event{OrderUpdatedEvent{Time: now, Order: o.Order}}

	if req.Type == Market || req.TimeInForce == IOC || req.TimeInForce == FOK {
		events = append(events, p.matchLocked(req.Symbol)...)
		if req.TimeInForce == IOC || req.TimeInForce == FOK {
			if o.remaining.IsPositive() && o.Status.Cancelable() {
				reason := fmt.Sprintf("tif=%s not fully filled immediately", req.TimeInForce)
				events = append(events, p.cancelLocked(o, reason)...)
			}
		}
	}
	p.mu.Unlock()

	p.publish(events)
	p.metrics.IncOrdersPlaced()
	return OrderAck{Accepted: true, OrderID: o.OrderID, ClientOrderID: req.ClientOrderID}, nil
}

// CancelOrder cancels one open order.
func (p *Paper) CancelOrder(ctx context.Context, orderID string) (CancelAck, error) {
	if err := p.wait(ctx); err != nil {
		return CancelAck{}, err
	}

	p.mu.Lock()
	o, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		return CancelAck{OrderID: orderID, Message: "order not found"}, nil
	}
	if !o.Status.Cancelable() {
		status := o.Status
		p.mu.Unlock()
		return CancelAck{OrderID: orderID, Message: fmt.Sprintf("cannot cancel order in state %s", status)}, nil
	}
	events := p.cancelLocked(o, "canceled by user")
	p.mu.Unlock()

	p.publish(events)
	return CancelAck{Accepted: true, OrderID: orderID}, nil
}

// CancelAll cancels every open order.
func (p *Paper) CancelAll(ctx context.Context) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	var events []Event
	p.mu.Lock()
	for _, o := range p.openLocked("") {
		events = append(events, p.cancelLocked(o, "canceled by cancel-all")...)
	}
	p.mu.Unlock()

	p.publish(events)
	return nil
}

// GetOrder returns a snapshot of the order.
func (p *Paper) GetOrder(orderID string) (Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return o.Order, true
}

// GetOpenOrders returns the symbol's open orders, oldest first.
func (p *Paper) GetOpenOrders(symbol string) []Order {
	symbol = strings.ToUpper(symbol)
	p.mu.Lock()
	defer p.mu.Unlock()
	open := p.openLocked(symbol)
	out := make([]Order, 0, len(open))
	for _, o := range open {
		out = append(out, o.Order)
	}
	return out
}

// GetPosition returns the symbol's position.
func (p *Paper) GetPosition(symbol string) (Position, bool) {
	symbol = strings.ToUpper(symbol)
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return Position{Symbol: symbol, Quantity: pos.quantity, AvgPrice: pos.avgPrice}, true
}

// Account returns a snapshot of balances and positions.
func (p *Paper) Account() AccountSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := AccountSnapshot{
		Time: p.view.Now(),
		Balance: Balance{
			Currency: p.cfg.QuoteCurrency,
			Free:     p.cashFree,
			Reserved: p.cashReserved,
		},
	}
	for symbol, pos := range p.positions {
		snap.Positions = append(snap.Positions, Position{
			Symbol:   symbol,
			Quantity: pos.quantity,
			AvgPrice: pos.avgPrice,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Symbol < snap.Positions[j].Symbol
	})
	return snap
}

// OnOrderBookTop matches the symbol's open orders against the new top.
func (p *Paper) OnOrderBookTop(e market.OrderBookTopEvent) {
	p.mu.Lock()
	events := p.matchLocked(e.Symbol)
	p.mu.Unlock()
	p.publish(events)
}

// admitLocked reserves funds or inventory and registers the order. It returns
// nil and a reason when the reservation fails.
func (p *Paper) admitLocked(req PlaceOrderRequest, now time.Time) (*paperOrder, string) {
	top, ok := p.view.GetLastOrderBookTop(req.Symbol)
	if !ok {
		return nil, "no orderbook available for reserve"
	}

	o := &paperOrder{
		Order: Order{
			OrderID:       uuid.NewString(),
			ClientOrderID: req.ClientOrderID,
			SourceID:      req.SourceID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Type:          req.Type,
			TimeInForce:   req.TimeInForce,
			Quantity:      req.Quantity,
			LimitPrice:    req.LimitPrice,
			Status:        StatusNew,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		seq:       p.seq,
		remaining: req.Quantity,
	}
	p.seq++

	if req.Side == Buy {
		refPrice := req.LimitPrice
		if req.Type == Market {
			refPrice = top.AskPrice
		}
		feeRate := p.cfg.MakerFeeRate
		if req.Type == Market {
			feeRate = p.cfg.TakerFeeRate
		}
		notional := refPrice.Mul(req.Quantity)
		reserve := notional.Add(notional.Mul(feeRate))

		if p.cashFree.LessThan(reserve) {
			return nil, fmt.Sprintf("insufficient %s", p.cfg.QuoteCurrency)
		}
		p.cashFree = p.cashFree.Sub(reserve)
		p.cashReserved = p.cashReserved.Add(reserve)
		o.reservedQuote = reserve
	} else {
		pos, ok := p.positions[req.Symbol]
		if !ok || !pos.quantity.IsPositive() {
			return nil, "no position to sell"
		}
		available := pos.quantity.Sub(p.baseReserved[req.Symbol])
		if available.LessThan(req.Quantity) {
			return nil, "insufficient available position"
		}
		p.baseReserved[req.Symbol] = p.baseReserved[req.Symbol].Add(req.Quantity)
		o.reservedBase = req.Quantity
	}

	p.orders[o.OrderID] = o
	return o, ""
}

// matchLocked scans the symbol's open orders, oldest first, against the
// latest top-of-book. Top liquidity is shared across the scan: each fill
// depletes it for the orders behind.
func (p *Paper) matchLocked(symbol string) []Event {
	top, ok := p.view.GetLastOrderBookTop(symbol)
	if !ok {
		return nil
	}

	askAvail := top.AskQuantity
	bidAvail := top.BidQuantity

	var events []Event
	for _, o := range p.openLocked(symbol) {
		if !o.remaining.IsPositive() {
			continue
		}

		var price, avail, feeRate decimal.Decimal
		if o.Type == Market {
			feeRate = p.cfg.TakerFeeRate
			if o.Side == Buy {
				price, avail = top.AskPrice, askAvail
			} else {
				price, avail = top.BidPrice, bidAvail
			}
		} else {
			marketable := o.Side == Buy && o.LimitPrice.GreaterThanOrEqual(top.AskPrice) ||
				o.Side == Sell && o.LimitPrice.LessThanOrEqual(top.BidPrice)
			if !marketable {
				continue
			}
			feeRate = p.cfg.MakerFeeRate
			if o.Side == Buy {
				price, avail = top.AskPrice, askAvail
			} else {
				price, avail = top.BidPrice, bidAvail
			}
		}

		qty := decimal.Min(o.remaining, avail)
		if !qty.IsPositive() {
			continue
		}
		price = p.applySlippage(price, o.Side)

		fillEvents, filled := p.fillLocked(o, price, qty, feeRate)
		if !filled {
			events = append(events, p.rejectLocked(o, "insufficient funds or position during fill")...)
			continue
		}
		events = append(events, fillEvents...)

		if o.Side == Buy {
			askAvail = askAvail.Sub(qty)
		} else {
			bidAvail = bidAvail.Sub(qty)
		}
	}
	return events
}

// fillLocked executes qty at price against the order's reservation. It
// returns false when the reservation or position cannot cover the fill.
func (p *Paper) fillLocked(o *paperOrder, price, qty, feeRate decimal.Decimal) ([]Event, bool) {
	if o.Status.Terminal() || !o.remaining.IsPositive() {
		return nil, true
	}
	qty = decimal.Min(qty, o.remaining)

	now := p.view.Now()
	notional := price.Mul(qty)
	fee := notional.Mul(feeRate)

	if o.Side == Buy {
		spend := notional.Add(fee)
		if o.reservedQuote.LessThan(spend) {
			return nil, false
		}
		o.reservedQuote = o.reservedQuote.Sub(spend)
		p.cashReserved = p.cashReserved.Sub(spend)

		pos, ok := p.positions[o.Symbol]
		if !ok {
			pos = &positionState{quantity: decimal.Zero, avgPrice: decimal.Zero}
			p.positions[o.Symbol] = pos
		}
		newQty := pos.quantity.Add(qty)
		pos.avgPrice = pos.quantity.Mul(pos.avgPrice).Add(qty.Mul(price)).Div(newQty)
		pos.quantity = newQty
	} else {
		pos, ok := p.positions[o.Symbol]
		if !ok || o.reservedBase.LessThan(qty) || pos.quantity.LessThan(qty) {
			return nil, false
		}
		o.reservedBase = o.reservedBase.Sub(qty)
		p.baseReserved[o.Symbol] = decimal.Max(decimal.Zero, p.baseReserved[o.Symbol].Sub(qty))

		pos.quantity = pos.quantity.Sub(qty)
		if !pos.quantity.IsPositive() {
			delete(p.positions, o.Symbol)
		}

		proceeds := notional.Sub(fee)
		p.cashFree = p.cashFree.Add(proceeds)
	}

	newFilled := o.FilledQuantity.Add(qty)
	if o.FilledQuantity.IsPositive() {
		o.AvgFillPrice = o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(qty)).Div(newFilled)
	} else {
		o.AvgFillPrice = price
	}
	o.FilledQuantity = newFilled
	o.remaining = o.remaining.Sub(qty)
	o.UpdatedAt = now
	if o.remaining.IsPositive() {
		o.Status = StatusPartiallyFilled
	} else {
		o.Status = StatusFilled
	}

	fill := Fill{
		TradeID:     uuid.NewString(),
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Price:       price,
		Quantity:    qty,
		Fee:         fee,
		FeeCurrency: p.cfg.QuoteCurrency,
		Time:        now,
	}
	events := []Event{
		FillEvent{Time: now, Fill: fill},
		OrderUpdatedEvent{Time: now, Order: o.Order},
	}

	p.metrics.IncFills()
	if o.Status == StatusFilled {
		p.releaseRemainderLocked(o)
		p.metrics.IncOrdersFilled()
	}
	return events, true
}

// cancelLocked moves the order to Canceled, releases its remaining
// reservation and emits the order update plus an informational notice.
func (p *Paper) cancelLocked(o *paperOrder, reason string) []Event {
	if o.Status.Terminal() {
		return nil
	}
	now := p.view.Now()
	o.Status = StatusCanceled
	o.UpdatedAt = now
	p.releaseRemainderLocked(o)
	p.metrics.IncOrdersCanceled()
	return []Event{
		OrderUpdatedEvent{Time: now, Order: o.Order},
		BrokerErrorEvent{Time: now, Code: CodeOrderCanceled, OrderID: o.OrderID,
			Message: fmt.Sprintf("order canceled: %s", reason)},
	}
}

func (p *Paper) rejectLocked(o *paperOrder, reason string) []Event {
	if o.Status.Terminal() {
		return nil
	}
	now := p.view.Now()
	o.Status = StatusRejected
	o.UpdatedAt = now
	p.releaseRemainderLocked(o)
	p.metrics.IncOrdersRejected()
	return []Event{
		OrderUpdatedEvent{Time: now, Order: o.Order},
		BrokerErrorEvent{Time: now, Code: CodeFillRejected, OrderID: o.OrderID,
			Message: fmt.Sprintf("order rejected: %s", reason)},
	}
}

func (p *Paper) releaseRemainderLocked(o *paperOrder) {
	if o.reservedQuote.IsPositive() {
		p.cashReserved = p.cashReserved.Sub(o.reservedQuote)
		p.cashFree = p.cashFree.Add(o.reservedQuote)
		o.reservedQuote = decimal.Zero
	}
	if o.reservedBase.IsPositive() {
		p.baseReserved[o.Symbol] = decimal.Max(decimal.Zero, p.baseReserved[o.Symbol].Sub(o.reservedBase))
		o.reservedBase = decimal.Zero
	}
}

// openLocked returns open orders sorted by creation time then admission
// order. An empty symbol matches all symbols.
func (p *Paper) openLocked(symbol string) []*paperOrder {
	var open []*paperOrder
	for _, o := range p.orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if o.Status.Cancelable() {
			open = append(open, o)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].CreatedAt.Equal(open[j].CreatedAt) {
			return open[i].CreatedAt.Before(open[j].CreatedAt)
		}
		return open[i].seq < open[j].seq
	})
	return open
}

func (p *Paper) applySlippage(price decimal.Decimal, side Side) decimal.Decimal {
	if !p.cfg.SlippageBps.IsPositive() {
		return price
	}
	factor := decimal.NewFromInt(1).Add(p.cfg.SlippageBps.Div(decimal.NewFromInt(10_000)))
	if side == Buy {
		return price.Mul(factor)
	}
	return price.Div(factor)
}

func (p *Paper) wait(ctx context.Context) error {
	if p.cfg.Latency <= 0 {
		return nil
	}
	timer := time.NewTimer(p.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Paper) publish(events []Event) {
	for _, e := range events {
		p.events.Publish(e)
	}
}
