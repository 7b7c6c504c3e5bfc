package rwlock

import (
	"fmt"
	"sync"

	"github.com/llxisdsh/rwlock/internal/freelist"
)

// FreeList is the pool of heavyweight lock states shared by the locks that
// use it. States are recycled and never freed, so a FreeList outlives every
// lock attached to it and has no teardown.
//
// Most programs use DefaultFreeList; a dedicated FreeList isolates a group
// of locks, mostly for tests and metrics.
type FreeList struct {
	l *freelist.List[lockState]
}

// FreeListStats is a snapshot of FreeList usage.
type FreeListStats = freelist.Stats

// NewFreeList creates a FreeList with the given tier sizes. Without sizes
// it uses tiers of 16, 128, 1024 and the remainder up to 65535 states.
func NewFreeList(sizes ...int) *FreeList {
	var options []func(*freelist.Config)
	if len(sizes) > 0 {
		options = append(options, freelist.WithSizes(sizes...))
	}
	return &FreeList{l: freelist.New[lockState](options...)}
}

var defaultFreeList = sync.OnceValue(func() *FreeList {
	return NewFreeList()
})

// DefaultFreeList returns the process-wide FreeList, creating it on first
// access. Locks without WithFreeList use it.
func DefaultFreeList() *FreeList {
	return defaultFreeList()
}

// Stats returns a snapshot of the FreeList counters.
func (f *FreeList) Stats() FreeListStats {
	return f.l.Stats()
}

// allocate takes a clean state off the free list.
func (f *FreeList) allocate() *lockState {
	id, ok := f.l.Next()
	if !ok {
		fatal(getLogger().WithField("capacity", f.l.Len()),
			"rwlock: lock state free list exhausted")
	}
	s := f.l.At(id)
	if s.recursive || !s.idle() {
		fatal(getLogger().WithField("state", id),
			fmt.Sprintf("rwlock: dirty lock state on allocation: %+v", s.counters()))
	}
	s.id = id
	return s
}

// release returns an idle, non-recursive state to the free list.
func (f *FreeList) release(s *lockState) {
	if s.recursive || !s.idle() {
		fatal(getLogger().WithField("state", s.id),
			fmt.Sprintf("rwlock: release of busy lock state: %+v", s.counters()))
	}
	f.l.Release(s.id)
}

// state returns the state escalated word w refers to.
func (f *FreeList) state(w lockWord) *lockState {
	return f.l.At(w.slot())
}

type stateCounters struct {
	Readers, Writers, WaitingReaders, WaitingWriters int
	Recursive                                        bool
}

func (s *lockState) counters() stateCounters {
	return stateCounters{
		Readers:        s.readerCount,
		Writers:        s.writerCount,
		WaitingReaders: s.waitingReaders,
		WaitingWriters: s.waitingWriters,
		Recursive:      s.recursive,
	}
}
