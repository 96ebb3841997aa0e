package market

import (
	"sort"
	"strings"
	"sync"
)

const (
	defaultTradeCapacity = 200_000
	defaultBarCapacity   = 50_000
)

// StoreConfig sizes the per-series ring buffers.
type StoreConfig struct {
	TradeCapacityPerSymbol int
	BarCapacityPerSeries   int
}

type barKey struct {
	symbol     string
	resolution Resolution
}

type topCell struct {
	mu  sync.Mutex
	top OrderBookTop
	set bool
}

// Store keeps recent trades per symbol, the latest top-of-book per symbol,
// and recent bars per (symbol, resolution). Each logical series has its own
// lock; readers always receive copies.
type Store struct {
	tradeCap int
	barCap   int

	mu     sync.Mutex // guards the series maps only
	trades map[string]*ring[TradeTick]
	books  map[string]*topCell
	bars   map[barKey]*ring[Bar]
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.TradeCapacityPerSymbol <= 0 {
		cfg.TradeCapacityPerSymbol = defaultTradeCapacity
	}
	if cfg.BarCapacityPerSeries <= 0 {
		cfg.BarCapacityPerSeries = defaultBarCapacity
	}
	return &Store{
		tradeCap: cfg.TradeCapacityPerSymbol,
		barCap:   cfg.BarCapacityPerSeries,
		trades:   make(map[string]*ring[TradeTick]),
		books:    make(map[string]*topCell),
		bars:     make(map[barKey]*ring[Bar]),
	}
}

func normSymbol(symbol string) string {
	return strings.ToUpper(symbol)
}

func (s *Store) tradeSeries(symbol string) *ring[TradeTick] {
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.trades[symbol]
	if !ok {
		rb = newRing[TradeTick](s.tradeCap)
		s.trades[symbol] = rb
	}
	return rb
}

func (s *Store) barSeries(symbol string, res Resolution) *ring[Bar] {
	key := barKey{symbol: symbol, resolution: res}
	s.mu.Lock()
	defer s.mu.Unlock()
	rb, ok := s.bars[key]
	if !ok {
		rb = newRing[Bar](s.barCap)
		s.bars[key] = rb
	}
	return rb
}

func (s *Store) bookCell(symbol string) *topCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.books[symbol]
	if !ok {
		c = &topCell{}
		s.books[symbol] = c
	}
	return c
}

// AppendTrade appends a trade tick to the symbol's series.
func (s *Store) AppendTrade(symbol string, tick TradeTick) {
	s.tradeSeries(normSymbol(symbol)).add(tick)
}

// UpdateTopOfBook replaces the symbol's latest top-of-book, last write wins.
func (s *Store) UpdateTopOfBook(symbol string, top OrderBookTop) {
	c := s.bookCell(normSymbol(symbol))
	c.mu.Lock()
	c.top = top
	c.set = true
	c.mu.Unlock()
}

// AppendBar appends a closed bar to the (symbol, resolution) series.
func (s *Store) AppendBar(symbol string, res Resolution, bar Bar) {
	s.barSeries(normSymbol(symbol), res).add(bar)
}

// RecentTrades returns up to maxCount most recent trades, oldest first.
func (s *Store) RecentTrades(symbol string, maxCount int) []TradeTick {
	return s.tradeSeries(normSymbol(symbol)).tail(maxCount)
}

// LastTopOfBook returns the latest top-of-book for the symbol.
func (s *Store) LastTopOfBook(symbol string) (OrderBookTop, bool) {
	c := s.bookCell(normSymbol(symbol))
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.top, c.set
}

// Bars returns up to size most recent bars for the series, oldest first.
func (s *Store) Bars(symbol string, size int, res Resolution) []Bar {
	return s.barSeries(normSymbol(symbol), res).tail(size)
}

// LastBar returns the most recent bar for the series.
func (s *Store) LastBar(symbol string, res Resolution) (Bar, bool) {
	return s.barSeries(normSymbol(symbol), res).last()
}

// Symbols lists every symbol with a known top-of-book, sorted.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.books))
	for sym, c := range s.books {
		c.mu.Lock()
		set := c.set
		c.mu.Unlock()
		if set {
			out = append(out, sym)
		}
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}
