package market

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"papertrade/internal/obs"
)

type openBucket struct {
	start time.Time
	bar   Bar
}

// Aggregator folds trade ticks into fixed-interval bars. It keeps at most one
// in-progress bucket per symbol; a bucket closes when a later trade arrives or
// when the clock passes its end. A bucket only exists once a trade has folded
// into it, so empty intervals never produce bars.
type Aggregator struct {
	res     Resolution
	store   *Store
	bus     *Bus
	metrics *obs.Metrics

	mu      sync.Mutex
	buckets map[string]*openBucket
}

// NewAggregator creates an aggregator publishing bars to the store and bus.
func NewAggregator(res Resolution, store *Store, bus *Bus, metrics *obs.Metrics) *Aggregator {
	return &Aggregator{
		res:     res,
		store:   store,
		bus:     bus,
		metrics: metrics,
		buckets: make(map[string]*openBucket),
	}
}

// Resolution returns the bar interval.
func (a *Aggregator) Resolution() Resolution { return a.res }

func (a *Aggregator) bucketStart(t time.Time) time.Time {
	return t.UTC().Truncate(a.res.Duration())
}

// OnTrade folds one trade into the symbol's bucket. A trade in a later bucket
// closes the current one first; a trade earlier than the current bucket is
// discarded.
func (a *Aggregator) OnTrade(symbol string, tick TradeTick) {
	symbol = normSymbol(symbol)
	start := a.bucketStart(tick.Time)

	var closed []BarClosedEvent

	a.mu.Lock()
	b, ok := a.buckets[symbol]
	switch {
	case !ok:
		a.buckets[symbol] = newBucket(start, tick)
	case start.After(b.start):
		closed = append(closed, a.closeLocked(symbol, b))
		a.buckets[symbol] = newBucket(start, tick)
	case start.Equal(b.start):
		foldTrade(b, tick)
	default:
		logs.Warnf("discard late trade for %s: trade bucket %s before open bucket %s",
			symbol, start.Format(time.RFC3339), b.start.Format(time.RFC3339))
	}
	a.mu.Unlock()

	a.publish(closed)
}

// FlushDue closes every bucket whose interval has fully elapsed at now.
func (a *Aggregator) FlushDue(now time.Time) {
	now = now.UTC()

	var closed []BarClosedEvent

	a.mu.Lock()
	for symbol, b := range a.buckets {
		if !now.Before(b.start.Add(a.res.Duration())) {
			closed = append(closed, a.closeLocked(symbol, b))
			delete(a.buckets, symbol)
		}
	}
	a.mu.Unlock()

	a.publish(closed)
}

// FlushAll force-closes every in-progress bucket, typically at session end.
func (a *Aggregator) FlushAll() {
	var closed []BarClosedEvent

	a.mu.Lock()
	for symbol, b := range a.buckets {
		closed = append(closed, a.closeLocked(symbol, b))
		delete(a.buckets, symbol)
	}
	a.mu.Unlock()

	a.publish(closed)
}

// closeLocked stores the finished bar and returns its event for deferred
// publication outside the aggregator lock.
func (a *Aggregator) closeLocked(symbol string, b *openBucket) BarClosedEvent {
	bar := b.bar
	a.store.AppendBar(symbol, a.res, bar)
	a.metrics.IncBarsClosed()
	return BarClosedEvent{
		Symbol:     symbol,
		Resolution: a.res,
		BarTime:    bar.Time,
		Bar:        bar,
	}
}

func (a *Aggregator) publish(events []BarClosedEvent) {
	for _, e := range events {
		a.bus.PublishBar(e)
	}
}

func newBucket(start time.Time, tick TradeTick) *openBucket {
	return &openBucket{
		start: start,
		bar: Bar{
			Time:   start,
			Open:   tick.Price,
			High:   tick.Price,
			Low:    tick.Price,
			Close:  tick.Price,
			Volume: tick.Quantity,
		},
	}
}

func foldTrade(b *openBucket, tick TradeTick) {
	if tick.Price.GreaterThan(b.bar.High) {
		b.bar.High = tick.Price
	}
	if tick.Price.LessThan(b.bar.Low) {
		b.bar.Low = tick.Price
	}
	b.bar.Close = tick.Price
	b.bar.Volume = b.bar.Volume.Add(tick.Quantity)
}
