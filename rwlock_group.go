package rwlock

import (
	"github.com/llxisdsh/pb"
)

// RWLockGroup allows Reader-Writer locking on arbitrary keys.
//
// Features:
//   - LockForRead/Unlock for shared read access.
//   - LockForWrite/Unlock for exclusive write access.
//   - Infinite Keys & Auto-Cleanup: a key's RWLock exists only while
//     someone holds or waits for it.
//
// Usage:
//
//	var group RWLockGroup[string]
//
//	// Readers
//	group.LockForRead("config")
//	read(config)
//	group.Unlock("config")
//
//	// Writer
//	group.LockForWrite("config")
//	write(config)
//	group.Unlock("config")
//
// The zero value is ready to use; its locks take lock states from
// DefaultFreeList.
type RWLockGroup[K comparable] struct {
	_        noCopy
	m        pb.MapOf[K, *rwLockGroupEntry]
	freeList *FreeList
}

type rwLockGroupEntry struct {
	mu RWLock
	// ref counts holders and waiters. Only changed inside ProcessEntry.
	ref int32
}

// NewRWLockGroup creates a group whose locks take lock states from fl.
// A nil fl means DefaultFreeList.
func NewRWLockGroup[K comparable](fl *FreeList) *RWLockGroup[K] {
	return &RWLockGroup[K]{freeList: fl}
}

func (g *RWLockGroup[K]) acquire(k K) *rwLockGroupEntry {
	v, _ := g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *rwLockGroupEntry]) (*pb.EntryOf[K, *rwLockGroupEntry], *rwLockGroupEntry, bool) {
			if l != nil {
				l.Value.ref++
				return l, l.Value, true
			}
			v := &rwLockGroupEntry{ref: 1}
			v.mu.freeList = g.freeList
			return &pb.EntryOf[K, *rwLockGroupEntry]{Value: v}, v, false
		},
	)
	return v
}

// release drops a reference taken by acquire and deletes the entry when it
// was the last one.
func (g *RWLockGroup[K]) release(k K) {
	_, _ = g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *rwLockGroupEntry]) (*pb.EntryOf[K, *rwLockGroupEntry], *rwLockGroupEntry, bool) {
			if l == nil {
				return nil, nil, false
			}
			l.Value.ref--
			if l.Value.ref <= 0 {
				return nil, l.Value, true
			}
			return l, l.Value, true
		},
	)
}

// LockForRead locks k for reading.
func (g *RWLockGroup[K]) LockForRead(k K) {
	g.acquire(k).mu.LockForRead()
}

// LockForWrite locks k for writing.
func (g *RWLockGroup[K]) LockForWrite(k K) {
	g.acquire(k).mu.LockForWrite()
}

// RLock is LockForRead.
func (g *RWLockGroup[K]) RLock(k K) {
	g.LockForRead(k)
}

// Lock is LockForWrite.
func (g *RWLockGroup[K]) Lock(k K) {
	g.LockForWrite(k)
}

// TryLockForRead locks k for reading, waiting at most until d.
func (g *RWLockGroup[K]) TryLockForRead(k K, d Deadline) bool {
	if g.acquire(k).mu.TryLockForRead(d) {
		return true
	}
	g.release(k)
	return false
}

// TryLockForWrite locks k for writing, waiting at most until d.
func (g *RWLockGroup[K]) TryLockForWrite(k K, d Deadline) bool {
	if g.acquire(k).mu.TryLockForWrite(d) {
		return true
	}
	g.release(k)
	return false
}

// Unlock releases the caller's hold on k. Unlocking a key nobody holds is
// fatal, like RWLock.Unlock.
func (g *RWLockGroup[K]) Unlock(k K) {
	v, ok := g.m.Load(k)
	if !ok {
		fatal(getLogger().WithField("key", k), "rwlock: unlock of unlocked group key")
	}
	// Unlock before dropping the reference, so the entry cannot be
	// replaced while it is still held.
	v.mu.Unlock()
	g.release(k)
}

// RUnlock is Unlock.
func (g *RWLockGroup[K]) RUnlock(k K) {
	g.Unlock(k)
}

// Len returns the number of keys currently held or waited for.
func (g *RWLockGroup[K]) Len() int {
	return g.m.Size()
}
