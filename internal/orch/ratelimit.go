package orch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"papertrade/internal/clock"
)

// RateLimiter is a fixed one-second-window counter on session time. The
// window rolls over via compare-and-set on the second boundary, so it never
// blocks.
type RateLimiter struct {
	clk         clock.Clock
	maxPerSec   int64
	windowStart atomic.Int64 // unix second
	count       atomic.Int64
}

// NewRateLimiter creates a limiter allowing maxPerSec calls per window.
// maxPerSec <= 0 disables the limit.
func NewRateLimiter(clk clock.Clock, maxPerSec int) *RateLimiter {
	return &RateLimiter{clk: clk, maxPerSec: int64(maxPerSec)}
}

// Allow consumes one slot in the current window.
func (r *RateLimiter) Allow() bool {
	if r.maxPerSec <= 0 {
		return true
	}
	sec := r.clk.Now().Unix()
	for {
		start := r.windowStart.Load()
		if sec == start {
			break
		}
		if r.windowStart.CompareAndSwap(start, sec) {
			r.count.Store(0)
			break
		}
	}
	return r.count.Add(1) <= r.maxPerSec
}

// Name identifies the limiter in trip reasons.
func (r *RateLimiter) Name() string {
	return fmt.Sprintf("FixedWindow(%d/sec)", r.maxPerSec)
}

// LimiterPool lazily creates one rate limiter per source.
type LimiterPool struct {
	clk       clock.Clock
	maxPerSec int

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewLimiterPool creates a pool stamping out per-source limiters.
func NewLimiterPool(clk clock.Clock, maxPerSec int) *LimiterPool {
	return &LimiterPool{
		clk:       clk,
		maxPerSec: maxPerSec,
		limiters:  make(map[string]*RateLimiter),
	}
}

// For returns the source's limiter, creating it on first use.
func (p *LimiterPool) For(sourceID string) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[sourceID]
	if !ok {
		l = NewRateLimiter(p.clk, p.maxPerSec)
		p.limiters[sourceID] = l
	}
	return l
}
