package admin

import (
	"sync"
	"time"

	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// Debouncer applies only the last value pushed within a quiet window.
type Debouncer[T any] struct {
	clock  clock.Clock
	window time.Duration
	apply  func(T)

	mu     sync.Mutex
	timer  clock.Timer
	gen    uint64
	closed bool
}

// NewDebouncer calls apply with the latest value once window has passed
// without another Push.
func NewDebouncer[T any](clk clock.Clock, window time.Duration, apply func(T)) *Debouncer[T] {
	return &Debouncer[T]{clock: clk, window: window, apply: apply}
}

// Push restarts the quiet window with v as the pending value.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A timer that lost the Stop race must not apply a stale value.
		stale := d.closed || gen != d.gen
		if !stale {
			d.timer = nil
		}
		d.mu.Unlock()
		if !stale {
			d.apply(v)
		}
	})
}

// Pending reports whether a value is waiting to be applied.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Close cancels any pending value. Later pushes are ignored.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
