package rwlock

import (
	"slices"

	"github.com/llxisdsh/rwlock/internal/opt"
)

// lockState is the heavyweight representation of a contended or recursive
// RWLock. States live in a FreeList and are recycled, never freed.
//
// Everything but id is guarded by mu. id is written by the goroutine that
// pulls the state off the free list, before the state is published through
// RWLock.word.
type lockState struct {
	mu         opt.Mutex
	readerCond cond
	writerCond cond

	readerCount    int
	writerCount    int
	waitingReaders int
	waitingWriters int

	id        int
	recursive bool

	// Recursive mode only.
	currentWriter  int64
	currentReaders []recursiveReader
}

// recursiveReader records how many times a goroutine holds a recursive lock
// for read.
type recursiveReader struct {
	id    int64
	level int
}

// idle reports whether nobody holds or waits for the state.
func (s *lockState) idle() bool {
	return s.readerCount == 0 && s.writerCount == 0 &&
		s.waitingReaders == 0 && s.waitingWriters == 0
}

// lockForRead blocks until no writer holds or waits for the lock, then
// takes a read hold. It returns false once d expires or done is closed,
// with the waiting counters as they were on entry.
//
// s.mu must be held.
func (s *lockState) lockForRead(d Deadline, done <-chan struct{}) bool {
	for s.waitingWriters > 0 || s.writerCount > 0 {
		if d.HasExpired() || isDone(done) {
			return false
		}
		s.waitingReaders++
		s.readerCond.wait(&s.mu, d, done)
		s.waitingReaders--
	}
	s.readerCount++
	return true
}

// lockForWrite blocks until nobody holds the lock, then takes the write
// hold.
//
// s.mu must be held.
func (s *lockState) lockForWrite(d Deadline, done <-chan struct{}) bool {
	for s.readerCount > 0 || s.writerCount > 0 {
		if d.HasExpired() || isDone(done) {
			if s.waitingReaders > 0 && s.waitingWriters == 0 && s.writerCount == 0 {
				// Readers were queued behind us only. Let them in.
				s.readerCond.broadcast()
			}
			return false
		}
		s.waitingWriters++
		s.writerCond.wait(&s.mu, d, done)
		s.waitingWriters--
	}
	s.writerCount = 1
	return true
}

// wake hands the lock on after the last holder left: one writer if any is
// waiting, otherwise every waiting reader.
//
// s.mu must be held.
func (s *lockState) wake() {
	if s.waitingWriters > 0 {
		s.writerCond.signal()
	} else if s.waitingReaders > 0 {
		s.readerCond.broadcast()
	}
}

func (s *lockState) readerIndex(self int64) int {
	return slices.IndexFunc(s.currentReaders, func(r recursiveReader) bool {
		return r.id == self
	})
}

// recursiveLockForRead takes a read hold, or deepens the caller's existing
// one without any contention check.
//
// s.mu must be held.
func (s *lockState) recursiveLockForRead(d Deadline, done <-chan struct{}) bool {
	self := opt.CurrentID()
	if i := s.readerIndex(self); i >= 0 {
		s.currentReaders[i].level++
		return true
	}
	if !s.lockForRead(d, done) {
		return false
	}
	s.currentReaders = append(s.currentReaders, recursiveReader{id: self, level: 1})
	return true
}

// recursiveLockForWrite takes the write hold, or deepens it if the caller
// already owns it.
//
// s.mu must be held.
func (s *lockState) recursiveLockForWrite(d Deadline, done <-chan struct{}) bool {
	self := opt.CurrentID()
	if s.currentWriter == self {
		s.writerCount++
		return true
	}
	if !s.lockForWrite(d, done) {
		return false
	}
	s.currentWriter = self
	return true
}

// recursiveUnlock drops one level of the caller's hold. It reports false if
// the caller holds nothing, leaving the state untouched.
//
// s.mu must be held.
func (s *lockState) recursiveUnlock() bool {
	self := opt.CurrentID()
	if self == s.currentWriter {
		s.writerCount--
		if s.writerCount > 0 {
			return true
		}
		s.currentWriter = 0
	} else {
		i := s.readerIndex(self)
		if i < 0 {
			return false
		}
		s.currentReaders[i].level--
		if s.currentReaders[i].level <= 0 {
			s.currentReaders = slices.Delete(s.currentReaders, i, i+1)
			s.readerCount--
		}
		if s.readerCount > 0 {
			return true
		}
	}
	s.wake()
	return true
}

// resetRecursive clears the recursive bookkeeping before the state goes
// back to the free list.
//
// s.mu must be held.
func (s *lockState) resetRecursive() {
	s.recursive = false
	s.currentWriter = 0
	clear(s.currentReaders)
	s.currentReaders = s.currentReaders[:0]
}

func isDone(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
