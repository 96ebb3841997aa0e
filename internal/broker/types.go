package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side int

const (
	Buy Side = iota
	Sell
)

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType selects the execution style.
type OrderType int

const (
	Market OrderType = iota
	Limit
)

// String implements fmt.Stringer.
func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	default:
		return "unknown"
	}
}

// TimeInForce controls what happens to the unfilled remainder.
type TimeInForce int

const (
	// GTC rests the remainder until filled or canceled.
	GTC TimeInForce = iota
	// IOC fills what is immediately available and cancels the rest.
	IOC
	// FOK is treated like IOC: the remainder after the immediate attempt is
	// canceled rather than left resting.
	FOK
)

// String implements fmt.Stringer.
func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "gtc"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

// Status is the order lifecycle state.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPartiallyFilled:
		return "partially-filled"
	case StatusFilled:
		return "filled"
	case StatusCanceled:
		return "canceled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the order can never change again.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Cancelable reports whether a cancel request can still take effect.
func (s Status) Cancelable() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// PlaceOrderRequest describes a new order submission.
type PlaceOrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal // required for Limit, ignored for Market
	ClientOrderID string
	SourceID      string
	TimeInForce   TimeInForce
}

// OrderAck is the synchronous answer to a placement.
type OrderAck struct {
	Accepted      bool
	OrderID       string
	ClientOrderID string
	Message       string
}

// CancelAck is the synchronous answer to a cancel request.
type CancelAck struct {
	Accepted bool
	OrderID  string
	Message  string
}

// Order is a snapshot of one order's state.
type Order struct {
	OrderID        string
	ClientOrderID  string
	SourceID       string
	Symbol         string
	Side           Side
	Type           OrderType
	TimeInForce    TimeInForce
	Quantity       decimal.Decimal
	LimitPrice     decimal.Decimal
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fill is one execution against an order.
type Fill struct {
	TradeID     string
	OrderID     string
	Symbol      string
	Side        Side
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency string
	Time        time.Time
}

// Position is base inventory with its weighted average entry price.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
}

// Balance is one currency's funds split into free and reserved parts.
type Balance struct {
	Currency string
	Free     decimal.Decimal
	Reserved decimal.Decimal
}

// Total returns free plus reserved.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Reserved)
}

// AccountSnapshot is a point-in-time view of balances and positions.
type AccountSnapshot struct {
	Time      time.Time
	Balance   Balance
	Positions []Position
}
