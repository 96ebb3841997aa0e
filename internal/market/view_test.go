package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/clock"
)

func TestViewTradeSummaryWindow(t *testing.T) {
	clk := clock.NewVirtual()
	store := NewStore(StoreConfig{})
	v := NewView(clk, store)

	base := at("2024-01-01T10:00:00Z")
	store.AppendTrade("BTCUSDT", TradeTick{Time: base.Add(-90 * time.Second), Price: d("100"), Quantity: d("5"), IsBuy: true})
	store.AppendTrade("BTCUSDT", TradeTick{Time: base.Add(-30 * time.Second), Price: d("101"), Quantity: d("2"), IsBuy: true})
	store.AppendTrade("BTCUSDT", TradeTick{Time: base.Add(-10 * time.Second), Price: d("99"), Quantity: d("3"), IsBuy: false})
	clk.SetUTC(base)

	sum := v.GetTradeSummary("BTCUSDT", time.Minute)
	assert.Equal(t, 2, sum.TradeCount, "trade outside the window must not count")
	assert.True(t, sum.TotalVolume.Equal(d("5")))
	assert.True(t, sum.BuyVolume.Equal(d("2")))
	assert.True(t, sum.SellVolume.Equal(d("3")))
	assert.Equal(t, base.Add(-time.Minute), sum.From)
	assert.Equal(t, base, sum.To)
}

func TestViewReadsFollowClock(t *testing.T) {
	clk := clock.NewVirtual()
	store := NewStore(StoreConfig{})
	v := NewView(clk, store)

	clk.SetUTC(at("2024-01-01T10:00:00Z"))
	assert.Equal(t, at("2024-01-01T10:00:00Z"), v.Now())

	require.False(t, v.HasSymbol("BTCUSDT"))
	store.UpdateTopOfBook("BTCUSDT", OrderBookTop{Time: v.Now(), BidPrice: d("99"), AskPrice: d("101")})
	require.True(t, v.HasSymbol("BTCUSDT"))

	top, ok := v.GetLastOrderBookTop("btcusdt")
	require.True(t, ok)
	assert.True(t, top.BidPrice.Equal(d("99")))
}

func TestViewBars(t *testing.T) {
	clk := clock.NewVirtual()
	store := NewStore(StoreConfig{})
	v := NewView(clk, store)

	_, ok := v.GetLastBar("BTCUSDT", M1)
	require.False(t, ok)

	for i := 0; i < 3; i++ {
		store.AppendBar("BTCUSDT", M1, Bar{
			Time:  at("2024-01-01T10:00:00Z").Add(time.Duration(i) * time.Minute),
			Open:  d("100"), High: d("101"), Low: d("99"), Close: d("100"), Volume: d("1"),
		})
	}

	bars := v.GetBars("BTCUSDT", 2, M1)
	require.Len(t, bars, 2)
	assert.Equal(t, at("2024-01-01T10:01:00Z"), bars[0].Time)
	assert.Equal(t, at("2024-01-01T10:02:00Z"), bars[1].Time)

	last, ok := v.GetLastBar("BTCUSDT", M1)
	require.True(t, ok)
	assert.Equal(t, at("2024-01-01T10:02:00Z"), last.Time)
}
