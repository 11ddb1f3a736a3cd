// Package debounce delays a rapidly changing value until it has been stable
// for a fixed duration.
//
// A Debouncer owns at most one armed timer. Every Set cancels the armed timer
// before arming a new one, and Close cancels it for good, so a value that was
// superseded or outlived its consumer is never observed.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is used when a non-positive delay is given.
const DefaultDelay = 300 * time.Millisecond

// afterFunc arms a timer and returns its stop function.
// Swapped in tests for a manual clock.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// Debouncer holds the debounced view of a value of type T.
type Debouncer[T any] struct {
	mu       sync.Mutex
	delay    time.Duration
	value    T
	stop     func() bool
	gen      uint64
	closed   bool
	onSettle func(T)
	after    afterFunc
}

// New returns a Debouncer whose observed value starts at initial.
//
// onSettle, if non-nil, is called with the new observed value each time a
// timer fires. It runs on the timer goroutine, never while the Debouncer's
// lock is held, and is not started once Close has returned.
func New[T any](initial T, delay time.Duration, onSettle func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{
		delay:    delay,
		value:    initial,
		onSettle: onSettle,
		after:    realAfterFunc,
	}
}

// Set supplies a new input. Any pending input is dropped and the delay starts
// over. Equal values are not deduplicated.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.cancelLocked()
	d.gen++
	gen := d.gen
	d.stop = d.after(d.delay, func() { d.fire(gen, v) })
}

// fire publishes v if gen is still the most recent arming.
func (d *Debouncer[T]) fire(gen uint64, v T) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		// Stop lost the race with the timer goroutine.
		d.mu.Unlock()
		return
	}
	d.value = v
	d.stop = nil
	cb := d.onSettle
	d.mu.Unlock()

	if cb != nil {
		cb(v)
	}
}

// Value returns the current debounced value.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Delay returns the configured quiet period.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

// Pending reports whether an input is waiting for its timer.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

// Close cancels any pending input. After Close returns no further value is
// published. Close is safe to call more than once.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.cancelLocked()
	d.closed = true
}

func (d *Debouncer[T]) cancelLocked() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	// Invalidate a timer that already fired and is waiting on the lock.
	d.gen++
}
