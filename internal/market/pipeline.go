package market

import (
	"time"

	"papertrade/internal/clock"
	"papertrade/internal/obs"
)

// TimeAdvancer receives the timestamp of every ingested event so simulated
// time can follow the data.
type TimeAdvancer interface {
	AdvanceTo(t time.Time)
}

// Pipeline is the single ingestion path for market data. Every event aligns
// the clock to its timestamp, lands in the store, fans out on the bus, and
// drives bar aggregation.
type Pipeline struct {
	clk      clock.Settable
	advancer TimeAdvancer
	store    *Store
	bus      *Bus
	agg      *Aggregator
	metrics  *obs.Metrics
}

// NewPipeline wires the ingestion path. advancer may be nil when no time flow
// is attached; the clock is still aligned directly.
func NewPipeline(clk clock.Settable, advancer TimeAdvancer, store *Store, bus *Bus, agg *Aggregator, metrics *obs.Metrics) *Pipeline {
	return &Pipeline{
		clk:      clk,
		advancer: advancer,
		store:    store,
		bus:      bus,
		agg:      agg,
		metrics:  metrics,
	}
}

// IngestTrade processes one trade tick.
func (p *Pipeline) IngestTrade(symbol string, tick TradeTick) {
	tick.Time = tick.Time.UTC()
	p.advance(tick.Time)

	p.store.AppendTrade(symbol, tick)
	p.metrics.IncTradesIngested()
	p.bus.PublishTrade(TradeTickEvent{Symbol: normSymbol(symbol), Tick: tick})

	p.agg.OnTrade(symbol, tick)
	p.agg.FlushDue(tick.Time)
}

// IngestOrderBookTop processes one top-of-book update.
func (p *Pipeline) IngestOrderBookTop(symbol string, top OrderBookTop) {
	top.Time = top.Time.UTC()
	p.advance(top.Time)

	p.store.UpdateTopOfBook(symbol, top)
	p.metrics.IncQuotesIngested()
	p.bus.PublishBook(OrderBookTopEvent{Symbol: normSymbol(symbol), Top: top})

	p.agg.FlushDue(top.Time)
}

// FlushBars closes every bar whose interval has elapsed at the current
// session time, covering symbols whose ticks went quiet.
func (p *Pipeline) FlushBars() {
	p.agg.FlushDue(p.clk.Now())
}

// CloseSession force-closes all in-progress bars at session end.
func (p *Pipeline) CloseSession() {
	p.agg.FlushAll()
}

func (p *Pipeline) advance(t time.Time) {
	if p.advancer != nil {
		p.advancer.AdvanceTo(t)
		return
	}
	if t.After(p.clk.Now()) {
		p.clk.SetUTC(t)
	}
}
