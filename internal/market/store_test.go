package market

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestStoreRecentTradesOrder(t *testing.T) {
	s := NewStore(StoreConfig{TradeCapacityPerSymbol: 4})
	for i := 0; i < 6; i++ {
		s.AppendTrade("btcusdt", TradeTick{
			Time:     at("2024-01-01T10:00:00Z").Add(time.Duration(i) * time.Second),
			Price:    decimal.NewFromInt(int64(100 + i)),
			Quantity: decimal.NewFromInt(1),
		})
	}

	got := s.RecentTrades("BTCUSDT", 10)
	require.Len(t, got, 4)
	for i, tick := range got {
		assert.True(t, tick.Price.Equal(decimal.NewFromInt(int64(102+i))),
			"index %d: got %s", i, tick.Price)
	}

	got = s.RecentTrades("BTCUSDT", 2)
	require.Len(t, got, 2)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(104)))
	assert.True(t, got[1].Price.Equal(decimal.NewFromInt(105)))
}

func TestStoreTopOfBookLastWriteWins(t *testing.T) {
	s := NewStore(StoreConfig{})

	_, ok := s.LastTopOfBook("BTCUSDT")
	require.False(t, ok)

	s.UpdateTopOfBook("BTCUSDT", OrderBookTop{Time: at("2024-01-01T10:00:00Z"), BidPrice: d("99"), AskPrice: d("101")})
	s.UpdateTopOfBook("btcusdt", OrderBookTop{Time: at("2024-01-01T10:00:01Z"), BidPrice: d("100"), AskPrice: d("102")})

	top, ok := s.LastTopOfBook("BTCUSDT")
	require.True(t, ok)
	assert.True(t, top.BidPrice.Equal(d("100")))
	assert.True(t, top.AskPrice.Equal(d("102")))
	assert.True(t, top.Spread().Equal(d("2")))
	assert.True(t, top.Mid().Equal(d("101")))
}

func TestStoreBarsPerResolution(t *testing.T) {
	s := NewStore(StoreConfig{})
	bar := Bar{Time: at("2024-01-01T10:00:00Z"), Open: d("1"), High: d("2"), Low: d("1"), Close: d("2"), Volume: d("3")}
	s.AppendBar("ETHUSDT", M1, bar)

	require.Len(t, s.Bars("ETHUSDT", 10, M1), 1)
	require.Empty(t, s.Bars("ETHUSDT", 10, M5))

	last, ok := s.LastBar("ETHUSDT", M1)
	require.True(t, ok)
	assert.True(t, last.Close.Equal(d("2")))

	_, ok = s.LastBar("ETHUSDT", M5)
	assert.False(t, ok)
}

func TestStoreSymbols(t *testing.T) {
	s := NewStore(StoreConfig{})
	s.UpdateTopOfBook("ethusdt", OrderBookTop{BidPrice: d("1"), AskPrice: d("2")})
	s.UpdateTopOfBook("BTCUSDT", OrderBookTop{BidPrice: d("1"), AskPrice: d("2")})

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, s.Symbols())
}

func TestStoreConcurrentAppend(t *testing.T) {
	s := NewStore(StoreConfig{TradeCapacityPerSymbol: 1024})
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				s.AppendTrade(fmt.Sprintf("SYM%d", g), TradeTick{
					Price:    decimal.NewFromInt(int64(i)),
					Quantity: decimal.NewFromInt(1),
				})
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	for g := 0; g < 4; g++ {
		require.Len(t, s.RecentTrades(fmt.Sprintf("SYM%d", g), 1024), 100)
	}
}
