package entity

import (
	"sync"
	"time"
)

// Debouncer coalesces triggers: only the most recent call within the delay
// window runs. A zero delay still supersedes any pending trigger.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	pending bool
	stopped bool
}

// Trigger schedules fn after delay, cancelling any trigger still pending.
func (d *Debouncer) Trigger(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = true
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		current := seq == d.seq && !d.stopped
		if current {
			d.pending = false
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Pending reports whether a trigger is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels any pending trigger and refuses new ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}
