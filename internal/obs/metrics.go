package obs

import "sync/atomic"

// Metrics collects lightweight in-process counters for the trading session.
// All methods are safe on a nil receiver so components can treat metrics as
// optional.
type Metrics struct {
	tradesIngested uint64
	quotesIngested uint64
	barsClosed     uint64

	ordersPlaced   uint64
	ordersFilled   uint64
	ordersCanceled uint64
	ordersRejected uint64
	fills          uint64
	guardBlocks    uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TradesIngested uint64
	QuotesIngested uint64
	BarsClosed     uint64
	OrdersPlaced   uint64
	OrdersFilled   uint64
	OrdersCanceled uint64
	OrdersRejected uint64
	Fills          uint64
	GuardBlocks    uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) inc(p *uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(p, 1)
}

// IncTradesIngested counts one ingested trade tick.
func (m *Metrics) IncTradesIngested() { m.inc(&m.tradesIngested) }

// IncQuotesIngested counts one ingested top-of-book update.
func (m *Metrics) IncQuotesIngested() { m.inc(&m.quotesIngested) }

// IncBarsClosed counts one published bar.
func (m *Metrics) IncBarsClosed() { m.inc(&m.barsClosed) }

// IncOrdersPlaced counts one accepted order placement.
func (m *Metrics) IncOrdersPlaced() { m.inc(&m.ordersPlaced) }

// IncOrdersFilled counts one fully filled order.
func (m *Metrics) IncOrdersFilled() { m.inc(&m.ordersFilled) }

// IncOrdersCanceled counts one canceled order.
func (m *Metrics) IncOrdersCanceled() { m.inc(&m.ordersCanceled) }

// IncOrdersRejected counts one rejected order.
func (m *Metrics) IncOrdersRejected() { m.inc(&m.ordersRejected) }

// IncFills counts one fill.
func (m *Metrics) IncFills() { m.inc(&m.fills) }

// IncGuardBlocks counts one submission blocked by the guard layer.
func (m *Metrics) IncGuardBlocks() { m.inc(&m.guardBlocks) }

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TradesIngested: atomic.LoadUint64(&m.tradesIngested),
		QuotesIngested: atomic.LoadUint64(&m.quotesIngested),
		BarsClosed:     atomic.LoadUint64(&m.barsClosed),
		OrdersPlaced:   atomic.LoadUint64(&m.ordersPlaced),
		OrdersFilled:   atomic.LoadUint64(&m.ordersFilled),
		OrdersCanceled: atomic.LoadUint64(&m.ordersCanceled),
		OrdersRejected: atomic.LoadUint64(&m.ordersRejected),
		Fills:          atomic.LoadUint64(&m.fills),
		GuardBlocks:    atomic.LoadUint64(&m.guardBlocks),
	}
}
