package rwlock

// ============================================================================
// Configuration
// ============================================================================

// Config defines the options applied by New.
type Config struct {
	// recursive makes the lock re-entrant per goroutine. Recursive locks
	// own a lock state for their whole life and never use the fast path.
	recursive bool

	// freeList supplies lock states on contention. If nil,
	// DefaultFreeList() is used.
	freeList *FreeList

	// noSpin disables the short adaptive spin a contended caller does
	// before escalating to a lock state and parking.
	noSpin bool
}

// WithRecursion configures a recursive lock: a goroutine may take the lock
// again in the mode it already holds, and must call Unlock once per
// acquisition. A goroutine holding it for write cannot take it for read,
// and vice versa.
func WithRecursion() func(*Config) {
	return func(c *Config) {
		c.recursive = true
	}
}

// WithFreeList makes the lock take its lock states from fl instead of
// DefaultFreeList().
func WithFreeList(fl *FreeList) func(*Config) {
	return func(c *Config) {
		c.freeList = fl
	}
}

// WithoutSpin disables adaptive spinning before escalation. Contended
// callers escalate and park right away.
func WithoutSpin() func(*Config) {
	return func(c *Config) {
		c.noSpin = true
	}
}
