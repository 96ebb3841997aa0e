package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeTick is one executed trade on the reference market.
type TradeTick struct {
	Time     time.Time
	Price    decimal.Decimal
	Quantity decimal.Decimal
	IsBuy    bool
}

// OrderBookTop is the best bid/ask snapshot for a symbol. Only the latest
// top per symbol is kept; there is no history.
type OrderBookTop struct {
	Time        time.Time
	BidPrice    decimal.Decimal
	BidQuantity decimal.Decimal
	AskPrice    decimal.Decimal
	AskQuantity decimal.Decimal
}

// Spread returns ask minus bid.
func (t OrderBookTop) Spread() decimal.Decimal {
	return t.AskPrice.Sub(t.BidPrice)
}

// Mid returns the bid/ask midpoint.
func (t OrderBookTop) Mid() decimal.Decimal {
	return t.BidPrice.Add(t.AskPrice).Div(decimal.NewFromInt(2))
}

// Bar is an immutable OHLCV candle. Time is the bucket start.
type Bar struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// TradeSummary aggregates recent trade volume over a time window.
type TradeSummary struct {
	From        time.Time
	To          time.Time
	TotalVolume decimal.Decimal
	BuyVolume   decimal.Decimal
	SellVolume  decimal.Decimal
	TradeCount  int
}

// Resolution is a bar interval in whole minutes.
type Resolution struct {
	Minutes int
}

var (
	// M1 is the one-minute resolution produced by the aggregator.
	M1 = Resolution{Minutes: 1}
	// M5 is the five-minute resolution.
	M5 = Resolution{Minutes: 5}
)

// Duration returns the interval length.
func (r Resolution) Duration() time.Duration {
	return time.Duration(r.Minutes) * time.Minute
}

// String implements fmt.Stringer.
func (r Resolution) String() string {
	return fmt.Sprintf("%dm", r.Minutes)
}
