package rwlock

// ReadLocker holds an RWLock for reading for the span of a scope.
//
// Usage:
//
//	locker := NewReadLocker(&mu)
//	defer locker.Unlock()
//
// Unlock and Relock may be used to leave and re-enter the lock early;
// Unlock is idempotent, so the deferred call stays correct. A ReadLocker
// over a nil lock does nothing.
type ReadLocker struct {
	l      *RWLock
	locked bool
}

// NewReadLocker locks l for reading and returns the locker holding it.
func NewReadLocker(l *RWLock) *ReadLocker {
	r := &ReadLocker{l: l}
	r.Relock()
	return r
}

// Unlock releases the lock if the locker holds it.
func (r *ReadLocker) Unlock() {
	if r.l != nil && r.locked {
		r.locked = false
		r.l.Unlock()
	}
}

// Relock locks the lock for reading again after Unlock.
func (r *ReadLocker) Relock() {
	if r.l != nil && !r.locked {
		r.l.LockForRead()
		r.locked = true
	}
}

// ReadWriteLock returns the lock passed to NewReadLocker.
func (r *ReadLocker) ReadWriteLock() *RWLock {
	return r.l
}

// WriteLocker holds an RWLock for writing for the span of a scope. It
// behaves like ReadLocker.
type WriteLocker struct {
	l      *RWLock
	locked bool
}

// NewWriteLocker locks l for writing and returns the locker holding it.
func NewWriteLocker(l *RWLock) *WriteLocker {
	w := &WriteLocker{l: l}
	w.Relock()
	return w
}

// Unlock releases the lock if the locker holds it.
func (w *WriteLocker) Unlock() {
	if w.l != nil && w.locked {
		w.locked = false
		w.l.Unlock()
	}
}

// Relock locks the lock for writing again after Unlock.
func (w *WriteLocker) Relock() {
	if w.l != nil && !w.locked {
		w.l.LockForWrite()
		w.locked = true
	}
}

// ReadWriteLock returns the lock passed to NewWriteLocker.
func (w *WriteLocker) ReadWriteLock() *RWLock {
	return w.l
}
