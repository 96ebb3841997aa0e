package timeflow

import (
	"context"
	"sync"
	"time"

	"papertrade/internal/clock"
)

// Tick is one discrete advance of simulated time.
type Tick struct {
	Time time.Time
}

// Mode selects how simulated time advances.
type Mode int

const (
	// Backtest jumps instantly to each market event time.
	Backtest Mode = iota
	// RealTimeReplay follows market time at wall-clock pace, capped by the
	// latest ingested event time.
	RealTimeReplay
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Backtest:
		return "backtest"
	case RealTimeReplay:
		return "realtime-replay"
	default:
		return "unknown"
	}
}

// Config controls tick granularity and replay pacing.
type Config struct {
	Mode     Mode
	Step     time.Duration // tick granularity, default 1s
	Poll     time.Duration // replay loop wake interval, default 100ms
	Capacity int           // tick channel capacity, default 8192
}

// Flow turns market event times into discrete time ticks on a channel.
//
// In Backtest mode AdvanceTo synchronously emits one tick per step boundary
// up to the target and then forces the clock to the target. In RealTimeReplay
// mode AdvanceTo only raises the cap; a background loop paces the virtual
// clock at wall-clock speed, never past the cap. The mode is switchable at
// runtime.
type Flow struct {
	clk  *clock.Virtual
	step time.Duration
	poll time.Duration
	ch   chan Tick

	mu            sync.Mutex
	mode          Mode
	initialized   bool
	cap           time.Time
	anchored      bool
	anchorVirtual time.Time
	anchorWall    time.Time
}

// New creates a flow over the given virtual clock.
func New(clk *clock.Virtual, cfg Config) *Flow {
	if cfg.Step <= 0 {
		cfg.Step = time.Second
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 8192
	}
	return &Flow{
		clk:  clk,
		step: cfg.Step,
		poll: cfg.Poll,
		ch:   make(chan Tick, cfg.Capacity),
		mode: cfg.Mode,
	}
}

// Ticks returns the tick channel. Ticks are strictly increasing and the
// clock is updated at or before each tick's publication.
func (f *Flow) Ticks() <-chan Tick { return f.ch }

// Clock returns the underlying virtual clock.
func (f *Flow) Clock() *clock.Virtual { return f.clk }

// Start launches the replay pacing loop. The loop sleeps between polls
// without holding the flow lock and stops when ctx is canceled.
func (f *Flow) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(f.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.pace()
			}
		}
	}()
}

// AdvanceTo raises the market-time cap to t. The first call establishes the
// baseline tick at exactly t. In Backtest mode subsequent calls emit
// synchronously; in RealTimeReplay mode the background loop does the work.
func (f *Flow) AdvanceTo(t time.Time) {
	t = t.UTC()

	f.mu.Lock()
	defer f.mu.Unlock()

	if t.After(f.cap) {
		f.cap = t
	}

	if !f.initialized {
		f.clk.SetUTC(t)
		f.send(Tick{Time: t})
		f.initialized = true
		if f.mode == RealTimeReplay {
			f.anchorLocked()
		}
		return
	}

	if f.mode == Backtest {
		f.emitUpToLocked(t)
		return
	}
	f.anchorLocked()
}

// SetMode switches the advance strategy at runtime. Switching to Backtest
// makes the next AdvanceTo emit synchronously; switching to RealTimeReplay
// re-anchors pacing at the current virtual time.
func (f *Flow) SetMode(m Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mode == m {
		return
	}
	f.mode = m
	if m == RealTimeReplay {
		f.anchored = false
		f.anchorLocked()
	}
}

// Mode returns the current advance strategy.
func (f *Flow) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *Flow) pace() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode != RealTimeReplay || !f.initialized || f.cap.IsZero() {
		return
	}
	f.anchorLocked()

	target := f.anchorVirtual.Add(time.Since(f.anchorWall))
	if target.After(f.cap) {
		target = f.cap
	}
	if target.After(f.clk.Now()) {
		f.emitUpToLocked(target)
	}
}

func (f *Flow) anchorLocked() {
	if f.anchored || !f.initialized {
		return
	}
	f.anchorVirtual = f.clk.Now()
	f.anchorWall = time.Now()
	f.anchored = true
}

// emitUpToLocked emits one tick per step boundary in (now, target], then
// forces the clock to target even between boundaries.
func (f *Flow) emitUpToLocked(target time.Time) {
	next := alignNext(f.clk.Now(), f.step)
	for !next.After(target) {
		f.clk.AdvanceTo(next)
		f.send(Tick{Time: next})
		next = next.Add(f.step)
	}
	f.clk.AdvanceTo(target)
}

// send never blocks: when the channel is full the oldest tick is dropped.
func (f *Flow) send(t Tick) {
	for {
		select {
		case f.ch <- t:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func alignNext(t time.Time, step time.Duration) time.Time {
	return t.Truncate(step).Add(step)
}
