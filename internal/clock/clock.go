package clock

import (
	"sync/atomic"
	"time"
)

// Clock provides the current time of a trading session.
type Clock interface {
	Now() time.Time
}

// Settable is a clock whose current time can be aligned to ingested data
// timestamps. Components that move time depend on this interface explicitly.
type Settable interface {
	Clock
	SetUTC(t time.Time)
}

// System reads the wall clock.
type System struct{}

// Now returns the current wall-clock time in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Virtual is a settable simulation clock backed by a single atomic word.
type Virtual struct {
	unixNano atomic.Int64
}

// NewVirtual creates a virtual clock positioned at the zero time.
func NewVirtual() *Virtual {
	return &Virtual{}
}

// Now returns the current virtual time in UTC.
func (c *Virtual) Now() time.Time {
	return time.Unix(0, c.unixNano.Load()).UTC()
}

// SetUTC overrides the current time. There is no backward guard: it is used
// to align the clock to ingested data timestamps.
func (c *Virtual) SetUTC(t time.Time) {
	c.unixNano.Store(t.UnixNano())
}

// AdvanceTo moves the clock forward to t. Calls with an earlier or equal time
// are no-ops, so the clock stays monotonic under concurrent advances.
func (c *Virtual) AdvanceTo(t time.Time) {
	target := t.UnixNano()
	for {
		cur := c.unixNano.Load()
		if target <= cur {
			return
		}
		if c.unixNano.CompareAndSwap(cur, target) {
			return
		}
	}
}
