package rwlock

import (
	"context"
	"sync"
	"sync/atomic"
)

// RWLock is a reader/writer lock with writer priority and an optional
// recursive mode.
//
// Uncontended use costs a single CAS on one word: the word itself records
// "unlocked", "held for read by n goroutines" or "held for write". As soon
// as a caller has to wait, the lock escalates to a heavyweight lock state
// taken from a FreeList, with exact counters, a mutex and two condition
// variables. The state goes back to the free list when the last holder
// leaves and nobody waits.
//
// Properties:
//   - Writer priority: a new reader does not get in while a writer holds
//     the lock or waits for it, even if only readers hold it now.
//   - The order in which waiting writers get the lock is unspecified.
//   - A timed-out or cancelled TryLock leaves the lock as if it had never
//     been called.
//   - Unlock releases whichever mode the caller holds. Unlocking an unlocked
//     non-recursive lock is fatal.
//
// The zero value is an unlocked, non-recursive lock using DefaultFreeList.
// An RWLock must not be copied after first use.
type RWLock struct {
	_    noCopy
	word atomic.Uint64

	freeList *FreeList
	noSpin   bool
}

// New creates an RWLock configured by options.
func New(options ...func(*Config)) *RWLock {
	c := &Config{}
	for _, o := range options {
		o(c)
	}
	l := &RWLock{freeList: c.freeList, noSpin: c.noSpin}
	if c.recursive {
		s := l.states().allocate()
		s.recursive = true
		l.word.Store(uint64(stateWord(s.id)))
	}
	return l
}

// NewRecursive creates a recursive RWLock. It is New with WithRecursion.
func NewRecursive(options ...func(*Config)) *RWLock {
	return New(append(options, WithRecursion())...)
}

func (l *RWLock) states() *FreeList {
	if l.freeList != nil {
		return l.freeList
	}
	return DefaultFreeList()
}

func (l *RWLock) load() lockWord {
	return lockWord(l.word.Load())
}

func (l *RWLock) cas(old, next lockWord) bool {
	return l.word.CompareAndSwap(uint64(old), uint64(next))
}

// IsRecursive reports whether l was created in recursive mode.
func (l *RWLock) IsRecursive() bool {
	w := l.load()
	if w.kind() != wordState {
		return false
	}
	s := l.states().state(w)
	s.mu.Lock()
	defer s.mu.Unlock()
	return l.load() == w && s.recursive
}

// LockForRead locks l for reading, blocking while a writer holds or waits
// for it.
func (l *RWLock) LockForRead() {
	l.TryLockForRead(Forever())
}

// RLock is LockForRead.
func (l *RWLock) RLock() {
	l.TryLockForRead(Forever())
}

// TryLockForRead locks l for reading, waiting at most until d. It reports
// whether the lock was acquired. An expired d makes it a non-blocking
// attempt.
func (l *RWLock) TryLockForRead(d Deadline) bool {
	if l.word.Load() == uint64(unlockedWord) && l.cas(unlockedWord, singleReadWord) {
		return true
	}
	return l.contendedLockForRead(d, nil)
}

// TryLockForReadContext is TryLockForRead bounded by ctx: the wait ends
// when ctx is done, and the context deadline, if any, is the lock
// deadline. It returns nil once the lock is held.
func (l *RWLock) TryLockForReadContext(ctx context.Context) error {
	if l.word.Load() == uint64(unlockedWord) && l.cas(unlockedWord, singleReadWord) {
		return nil
	}
	if l.contendedLockForRead(deadlineOf(ctx), ctx.Done()) {
		return nil
	}
	return wrapContextErr(contextErr(ctx), "lock for read")
}

func (l *RWLock) contendedLockForRead(d Deadline, done <-chan struct{}) bool {
	var spins int
	w := l.load()
	for {
		switch w.kind() {
		case wordUnlocked:
			if !l.cas(w, singleReadWord) {
				w = l.load()
				continue
			}
			return true

		case wordRead:
			next, ok := w.addReader()
			if !ok {
				fatal(l.log(), "rwlock: reader count overflow")
			}
			if !l.cas(w, next) {
				w = l.load()
				continue
			}
			return true

		case wordWrite:
			if d.HasExpired() || isDone(done) {
				return false
			}
			if !l.noSpin && trySpin(&spins) {
				w = l.load()
				continue
			}
			// Held for write: escalate, so there is somewhere to wait.
			s := l.states().allocate()
			s.writerCount = 1
			next := stateWord(s.id)
			if !l.cas(w, next) {
				s.writerCount = 0
				l.states().release(s)
				w = l.load()
				continue
			}
			w = next
		}

		s := l.states().state(w)
		s.mu.Lock()
		if cur := l.load(); cur != w {
			// The state was released, and maybe reused, before we locked
			// its mutex. States are never freed, so just start over.
			s.mu.Unlock()
			w = cur
			continue
		}
		var ok bool
		if s.recursive {
			ok = s.recursiveLockForRead(d, done)
		} else {
			ok = s.lockForRead(d, done)
		}
		s.mu.Unlock()
		return ok
	}
}

// LockForWrite locks l for writing, blocking while anyone else holds it.
func (l *RWLock) LockForWrite() {
	l.TryLockForWrite(Forever())
}

// Lock is LockForWrite, so that *RWLock is a sync.Locker.
func (l *RWLock) Lock() {
	l.TryLockForWrite(Forever())
}

// TryLockForWrite locks l for writing, waiting at most until d. It reports
// whether the lock was acquired.
func (l *RWLock) TryLockForWrite(d Deadline) bool {
	if l.word.Load() == uint64(unlockedWord) && l.cas(unlockedWord, writeWord) {
		return true
	}
	return l.contendedLockForWrite(d, nil)
}

// TryLockForWriteContext is TryLockForWrite bounded by ctx. It returns nil
// once the lock is held.
func (l *RWLock) TryLockForWriteContext(ctx context.Context) error {
	if l.word.Load() == uint64(unlockedWord) && l.cas(unlockedWord, writeWord) {
		return nil
	}
	if l.contendedLockForWrite(deadlineOf(ctx), ctx.Done()) {
		return nil
	}
	return wrapContextErr(contextErr(ctx), "lock for write")
}

func (l *RWLock) contendedLockForWrite(d Deadline, done <-chan struct{}) bool {
	var spins int
	w := l.load()
	for {
		switch w.kind() {
		case wordUnlocked:
			if !l.cas(w, writeWord) {
				w = l.load()
				continue
			}
			return true

		case wordRead, wordWrite:
			if d.HasExpired() || isDone(done) {
				return false
			}
			if !l.noSpin && trySpin(&spins) {
				w = l.load()
				continue
			}
			// Held without a state: escalate, carrying the holders over.
			s := l.states().allocate()
			if w == writeWord {
				s.writerCount = 1
			} else {
				s.readerCount = int(w.readers())
			}
			next := stateWord(s.id)
			if !l.cas(w, next) {
				s.writerCount, s.readerCount = 0, 0
				l.states().release(s)
				w = l.load()
				continue
			}
			w = next
		}

		s := l.states().state(w)
		s.mu.Lock()
		if cur := l.load(); cur != w {
			s.mu.Unlock()
			w = cur
			continue
		}
		var ok bool
		if s.recursive {
			ok = s.recursiveLockForWrite(d, done)
		} else {
			ok = s.lockForWrite(d, done)
		}
		s.mu.Unlock()
		return ok
	}
}

// Unlock releases the hold the caller has, read or write.
//
// Unlocking a non-recursive lock that is not locked is fatal. Unlocking a
// recursive lock from a goroutine that holds nothing is logged and
// ignored.
func (l *RWLock) Unlock() {
	w := l.load()
	for {
		if w.kind() == wordUnlocked {
			fatal(l.log(), "rwlock: unlock of unlocked lock")
		}

		// Sole holder, nobody waiting.
		if w.uncontended() {
			if !l.cas(w, unlockedWord) {
				w = l.load()
				continue
			}
			return
		}

		// Several readers, nobody waiting.
		if w.kind() == wordRead {
			if !l.cas(w, w.dropReader()) {
				w = l.load()
				continue
			}
			return
		}

		l.unlockState(w)
		return
	}
}

// RUnlock is Unlock.
func (l *RWLock) RUnlock() {
	l.Unlock()
}

func (l *RWLock) unlockState(w lockWord) {
	s := l.states().state(w)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recursive {
		if !s.recursiveUnlock() {
			l.log().Warn("rwlock: unlock from a goroutine that did not lock")
		}
		return
	}

	switch {
	case s.writerCount > 0:
		s.writerCount = 0
	case s.readerCount > 0:
		s.readerCount--
		if s.readerCount > 0 {
			return
		}
	default:
		fatal(l.log().WithField("state", s.id), "rwlock: unlock of unlocked lock")
	}

	if s.waitingReaders > 0 || s.waitingWriters > 0 {
		s.wake()
		return
	}
	// Nobody left: drop back to the fast path. Still under s.mu, so a
	// waiter that read the old word finds it changed and starts over.
	l.word.Store(uint64(unlockedWord))
	l.states().release(s)
}

// Close releases the lock state a recursive lock owns. Closing an unlocked
// non-recursive lock is a no-op.
//
// Closing a lock that is held or waited for is a usage error: it is
// logged, nothing is released, and ErrLockHeld is returned. The lock must
// not be used after a successful Close.
func (l *RWLock) Close() error {
	w := l.load()
	switch w.kind() {
	case wordUnlocked:
		return nil
	case wordState:
		s := l.states().state(w)
		s.mu.Lock()
		if l.load() == w && s.recursive && s.idle() {
			s.resetRecursive()
			l.word.Store(uint64(unlockedWord))
			l.states().release(s)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
	l.log().Warn("rwlock: close of held lock")
	return ErrLockHeld
}

// RLocker returns a sync.Locker that locks l for reading.
func (l *RWLock) RLocker() sync.Locker {
	return (*rlocker)(l)
}

type rlocker RWLock

func (r *rlocker) Lock()   { (*RWLock)(r).LockForRead() }
func (r *rlocker) Unlock() { (*RWLock)(r).Unlock() }

// contextErr returns why ctx ended the wait. The wait may end on the
// deadline a moment before ctx notices it.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.DeadlineExceeded
}
