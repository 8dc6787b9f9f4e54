package threads

import (
	"sync"
	"time"
)

// RateLimiter no-ops refreshes that arrive within a fixed cooldown of the
// last executed one. It guards the explicit refresh path (opening the panel).
type RateLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
}

// NewRateLimiter constructs a RateLimiter with the given cooldown.
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{cooldown: cooldown}
}

// Allow reports whether a refresh may execute now, and records the execution
// when it may.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if !r.last.IsZero() && now.Sub(r.last) < r.cooldown {
		return false
	}
	r.last = now
	return true
}

// Record marks an execution performed outside Allow. The debounced refresh
// path calls it so both governor mechanisms share one last-executed time.
func (r *RateLimiter) Record() {
	r.mu.Lock()
	r.last = time.Now()
	r.mu.Unlock()
}

// Debouncer coalesces bursts of triggers into one run of fn after a quiet
// window with no further triggers. It guards the realtime-driven refresh
// path: N incoming messages cause one re-aggregation, not N.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
}

// NewDebouncer constructs a Debouncer around fn.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger (re)starts the quiet window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

// Stop cancels any pending run.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
