//go:build rwlock_deadlock

package opt

import "github.com/sasha-s/go-deadlock"

// DeadlockEnabled is true if the slow-path mutex is the deadlock detector.
const DeadlockEnabled = true

// Mutex guards the heavyweight lock state. Built with -tags=rwlock_deadlock
// it reports lock-order inversions and long waits on the state mutex.
type Mutex = deadlock.Mutex
