package market

import (
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/clock"
)

// summaryScanDepth bounds how many recent trades a summary window scans.
const summaryScanDepth = 1000

// View is the read-only query surface strategies consult. All reads are
// consistent with the session clock.
type View struct {
	clk   clock.Clock
	store *Store
}

// NewView creates a view over the store.
func NewView(clk clock.Clock, store *Store) *View {
	return &View{clk: clk, store: store}
}

// Now returns the current session time.
func (v *View) Now() time.Time { return v.clk.Now() }

// GetBars returns up to size most recent closed bars, oldest first.
func (v *View) GetBars(symbol string, size int, res Resolution) []Bar {
	return v.store.Bars(symbol, size, res)
}

// GetLastBar returns the most recent closed bar for the series.
func (v *View) GetLastBar(symbol string, res Resolution) (Bar, bool) {
	return v.store.LastBar(symbol, res)
}

// GetRecentTrades returns up to maxCount most recent trades, oldest first.
func (v *View) GetRecentTrades(symbol string, maxCount int) []TradeTick {
	return v.store.RecentTrades(symbol, maxCount)
}

// GetLastOrderBookTop returns the latest top-of-book for the symbol.
func (v *View) GetLastOrderBookTop(symbol string) (OrderBookTop, bool) {
	return v.store.LastTopOfBook(symbol)
}

// GetTradeSummary aggregates trades in the window (now-window, now]. It scans
// the most recent trades only, so very deep windows on busy symbols may
// undercount.
func (v *View) GetTradeSummary(symbol string, window time.Duration) TradeSummary {
	to := v.clk.Now()
	from := to.Add(-window)
	out := TradeSummary{
		From:        from,
		To:          to,
		TotalVolume: decimal.Zero,
		BuyVolume:   decimal.Zero,
		SellVolume:  decimal.Zero,
	}
	for _, t := range v.store.RecentTrades(symbol, summaryScanDepth) {
		if !t.Time.After(from) || t.Time.After(to) {
			continue
		}
		out.TradeCount++
		out.TotalVolume = out.TotalVolume.Add(t.Quantity)
		if t.IsBuy {
			out.BuyVolume = out.BuyVolume.Add(t.Quantity)
		} else {
			out.SellVolume = out.SellVolume.Add(t.Quantity)
		}
	}
	return out
}

// HasSymbol reports whether the symbol has a known top-of-book.
func (v *View) HasSymbol(symbol string) bool {
	_, ok := v.store.LastTopOfBook(symbol)
	return ok
}

// Symbols lists every symbol with a known top-of-book.
func (v *View) Symbols() []string {
	return v.store.Symbols()
}
