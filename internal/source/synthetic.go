package source

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/market"
)

// Ingestor is the pipeline surface a data source feeds.
type Ingestor interface {
	IngestTrade(symbol string, tick market.TradeTick)
	IngestOrderBookTop(symbol string, top market.OrderBookTop)
	FlushBars()
}

// SyntheticConfig tunes the generated stream.
type SyntheticConfig struct {
	Symbols       []string
	Start         time.Time
	StartPrice    decimal.Decimal // default 50,000
	TradeInterval time.Duration   // default 200ms of simulated time
	BookInterval  time.Duration   // default 100ms of simulated time
	TimeStep      time.Duration   // simulated time per step, default 50ms
	Seed          int64           // default 7 for reproducible runs
}

func (c *SyntheticConfig) normalize() {
	if c.StartPrice.IsZero() {
		c.StartPrice = decimal.NewFromInt(50_000)
	}
	if c.TradeInterval <= 0 {
		c.TradeInterval = 200 * time.Millisecond
	}
	if c.BookInterval <= 0 {
		c.BookInterval = 100 * time.Millisecond
	}
	if c.TimeStep <= 0 {
		c.TimeStep = 50 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = 7
	}
}

// Synthetic generates a seeded random-walk stream of quotes and trades and
// feeds it into the pipeline on simulated timestamps. The same seed always
// produces the same stream.
type Synthetic struct {
	cfg      SyntheticConfig
	ingestor Ingestor
	rng      *rand.Rand

	prices    map[string]decimal.Decimal
	now       time.Time
	nextTrade time.Time
	nextBook  time.Time
}

// NewSynthetic creates a generator feeding the ingestor.
func NewSynthetic(cfg SyntheticConfig, ingestor Ingestor) *Synthetic {
	cfg.normalize()
	start := cfg.Start.UTC()
	prices := make(map[string]decimal.Decimal, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		prices[sym] = cfg.StartPrice
	}
	return &Synthetic{
		cfg:       cfg,
		ingestor:  ingestor,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		prices:    prices,
		now:       start,
		nextTrade: start,
		nextBook:  start,
	}
}

// Now returns the generator's current simulated time.
func (s *Synthetic) Now() time.Time { return s.now }

// Step advances simulated time by one step and emits whatever became due.
func (s *Synthetic) Step() {
	s.now = s.now.Add(s.cfg.TimeStep)

	if !s.now.Before(s.nextBook) {
		for _, sym := range s.cfg.Symbols {
			mid := s.prices[sym]
			// spread wanders between 1 and 3 quote units
			spread := decimal.NewFromFloat(1 + s.rng.Float64()*2)
			half := spread.Div(decimal.NewFromInt(2))
			s.ingestor.IngestOrderBookTop(sym, market.OrderBookTop{
				Time:        s.now,
				BidPrice:    mid.Sub(half),
				BidQuantity: decimal.NewFromFloat(1.2),
				AskPrice:    mid.Add(half),
				AskQuantity: decimal.NewFromFloat(1.1),
			})
		}
		s.nextBook = s.nextBook.Add(s.cfg.BookInterval)
	}

	if !s.now.Before(s.nextTrade) {
		for _, sym := range s.cfg.Symbols {
			last := s.prices[sym]
			// +-0.1% shock per trade
			shock := decimal.NewFromFloat((s.rng.Float64() - 0.5) * 0.002)
			price := decimal.Max(decimal.NewFromInt(1), last.Mul(decimal.NewFromInt(1).Add(shock)))
			qty := decimal.NewFromFloat(s.rng.Float64()*0.5 + 0.01)
			s.prices[sym] = price

			s.ingestor.IngestTrade(sym, market.TradeTick{
				Time:     s.now,
				Price:    price,
				Quantity: qty,
				IsBuy:    s.rng.Intn(2) == 0,
			})
		}
		s.nextTrade = s.nextTrade.Add(s.cfg.TradeInterval)
	}

	s.ingestor.FlushBars()
}

// RunSteps emits a fixed number of steps, typically for scripted sessions.
func (s *Synthetic) RunSteps(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

// Run steps until ctx is canceled, pausing wallDelay between steps so a
// replay session does not spin.
func (s *Synthetic) Run(ctx context.Context, wallDelay time.Duration) {
	ticker := time.NewTicker(wallDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}
