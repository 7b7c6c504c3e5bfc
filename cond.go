package rwlock

import (
	"slices"
	"sync"
	"time"
)

// cond is a condition variable whose waits can be bounded by a Deadline or
// cut short by a done channel. It is guarded by the mutex passed to wait;
// signal and broadcast must be called with that mutex held.
//
// Waiters queue in arrival order, but callers must not depend on it: a
// waiter that times out races with the signal meant for it.
type cond struct {
	waiters []chan struct{}
}

// wait atomically unlocks mu and suspends the caller until it is signalled,
// d expires or done is closed, then locks mu again before returning. It
// reports whether the caller was woken by signal or broadcast. Like any
// condition variable, callers re-check their predicate in a loop.
func (c *cond) wait(mu sync.Locker, d Deadline, done <-chan struct{}) bool {
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	mu.Unlock()

	var timer *time.Timer
	var expired <-chan time.Time
	if !d.IsForever() {
		timer = time.NewTimer(d.Remaining())
		expired = timer.C
	}

	woken := true
	select {
	case <-ch:
	case <-expired:
		woken = false
	case <-done:
		woken = false
	}
	if timer != nil {
		timer.Stop()
	}

	mu.Lock()
	if !woken {
		if i := slices.Index(c.waiters, ch); i >= 0 {
			c.waiters = slices.Delete(c.waiters, i, i+1)
		} else {
			// Signalled between giving up and re-locking mu.
			woken = true
		}
	}
	return woken
}

// signal wakes one waiter, if any.
func (c *cond) signal() {
	if len(c.waiters) == 0 {
		return
	}
	close(c.waiters[0])
	c.waiters = slices.Delete(c.waiters, 0, 1)
}

// broadcast wakes all waiters.
func (c *cond) broadcast() {
	for _, ch := range c.waiters {
		close(ch)
	}
	clear(c.waiters)
	c.waiters = c.waiters[:0]
}

// waiting returns the number of suspended waiters.
func (c *cond) waiting() int {
	return len(c.waiters)
}
