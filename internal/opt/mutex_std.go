//go:build !rwlock_deadlock

package opt

import "sync"

// DeadlockEnabled is true if the slow-path mutex is the deadlock detector.
const DeadlockEnabled = false

// Mutex guards the heavyweight lock state. It is a plain sync.Mutex unless
// built with -tags=rwlock_deadlock.
type Mutex = sync.Mutex
