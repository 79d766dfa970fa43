package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces trigger bursts: the callback fires once the quiet
// window elapses without a new trigger, or once maxDelay has passed since
// the first trigger of the burst so a continuous stream of saves cannot
// starve the relaunch forever.
type Debouncer struct {
	mu       sync.Mutex
	quiet    time.Duration
	maxDelay time.Duration
	fire     func()
	timer    *time.Timer
	deadline time.Time // zero when no burst is open
}

// NewDebouncer builds a debouncer invoking fire on the debounce goroutine.
func NewDebouncer(quiet, maxDelay time.Duration, fire func()) *Debouncer {
	if maxDelay < quiet {
		maxDelay = quiet
	}
	return &Debouncer{quiet: quiet, maxDelay: maxDelay, fire: fire}
}

// Trigger records an event. Safe for concurrent use.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if d.timer == nil {
		d.deadline = now.Add(d.maxDelay)
	} else {
		d.timer.Stop()
	}

	wait := d.quiet
	if remaining := d.deadline.Sub(now); remaining < wait {
		wait = remaining
	}
	if wait < 0 {
		wait = 0
	}
	d.timer = time.AfterFunc(wait, func() {
		d.mu.Lock()
		d.timer = nil
		d.deadline = time.Time{}
		d.mu.Unlock()
		d.fire()
	})
}

// Stop cancels a pending fire. A burst already past its window may still
// deliver.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.deadline = time.Time{}
	}
}
