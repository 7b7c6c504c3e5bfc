package rwlock

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// stateOf returns the counters of l's lock state, if l is escalated.
func stateOf(l *RWLock) (stateCounters, bool) {
	w := l.load()
	if w.kind() != wordState {
		return stateCounters{}, false
	}
	s := l.states().state(w)
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.load() != w {
		return stateCounters{}, false
	}
	return s.counters(), true
}

func waitForState(t *testing.T, l *RWLock, pred func(stateCounters) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, ok := stateOf(l)
		return ok && pred(c)
	}, 5*time.Second, time.Millisecond)
}

// nullLogger installs a non-exiting logger for the duration of the test.
func nullLogger(t *testing.T) *test.Hook {
	t.Helper()
	l, hook := test.NewNullLogger()
	l.ExitFunc = func(int) {}
	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })
	return hook
}

func TestRWLock_Basic(t *testing.T) {
	var a int
	var rw RWLock
	rw.Lock()
	a = 1
	rw.Unlock()
	rw.RLock()
	_ = a
	rw.RUnlock()
	require.Equal(t, unlockedWord, rw.load())
	require.False(t, rw.IsRecursive())
}

func TestRWLock_FastPathWord(t *testing.T) {
	var rw RWLock

	rw.LockForRead()
	require.Equal(t, singleReadWord, rw.load())
	rw.LockForRead()
	rw.LockForRead()
	require.Equal(t, wordRead, rw.load().kind())
	require.Equal(t, uint64(3), rw.load().readers())

	rw.Unlock()
	rw.Unlock()
	require.Equal(t, singleReadWord, rw.load())
	rw.Unlock()
	require.Equal(t, unlockedWord, rw.load())

	rw.LockForWrite()
	require.Equal(t, writeWord, rw.load())
	rw.RUnlock() // Unlock releases whichever mode is held.
	require.Equal(t, unlockedWord, rw.load())
}

func TestRWLock_ReadersAndWriters(t *testing.T) {
	tests := []struct {
		name string
		new  func(fl *FreeList) *RWLock
	}{
		{"default", func(fl *FreeList) *RWLock { return New(WithFreeList(fl)) }},
		{"nospin", func(fl *FreeList) *RWLock { return New(WithFreeList(fl), WithoutSpin()) }},
		{"recursive", func(fl *FreeList) *RWLock { return NewRecursive(WithFreeList(fl)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := NewFreeList()
			rw := tt.new(fl)
			var readers int32
			var writers int32

			const loops = 1000
			readerN := runtime.GOMAXPROCS(0)
			writerN := 2

			var wg sync.WaitGroup
			wg.Add(readerN + writerN)

			for range readerN {
				go func() {
					defer wg.Done()
					for range loops {
						rw.LockForRead()
						n := atomic.AddInt32(&readers, 1)
						if atomic.LoadInt32(&writers) != 0 {
							t.Errorf("reader observed active writer")
							rw.Unlock()
							return
						}
						if n <= 0 {
							t.Errorf("invalid reader count")
							rw.Unlock()
							return
						}
						atomic.AddInt32(&readers, -1)
						rw.Unlock()
					}
				}()
			}

			for range writerN {
				go func() {
					defer wg.Done()
					for range loops {
						rw.LockForWrite()
						if atomic.AddInt32(&writers, 1) != 1 {
							t.Errorf("multiple writers active")
							rw.Unlock()
							return
						}
						if atomic.LoadInt32(&readers) != 0 {
							t.Errorf("writer observed active readers")
							rw.Unlock()
							return
						}
						atomic.AddInt32(&writers, -1)
						rw.Unlock()
					}
				}()
			}

			wg.Wait()
			require.NoError(t, rw.Close())
			st := fl.Stats()
			require.Zero(t, st.InUse, "every lock state must be back on the free list")
			require.Equal(t, st.Allocations, st.Releases)
		})
	}
}

func TestRWLock_ConcurrentReaders(t *testing.T) {
	const n = 16
	rw := New(WithFreeList(NewFreeList()))
	var inside atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			rw.LockForRead()
			inside.Add(1)
			<-release
			rw.Unlock()
		}()
	}

	require.Eventually(t, func() bool { return inside.Load() == n }, 5*time.Second, time.Millisecond,
		"all readers must hold the lock at once")
	require.False(t, rw.TryLockForWrite(Deadline{}))
	close(release)
	wg.Wait()
	require.Equal(t, unlockedWord, rw.load())
}

func TestRWLock_WriterExcludes(t *testing.T) {
	rw := New(WithFreeList(NewFreeList()))
	rw.LockForWrite()

	start := time.Now()
	require.False(t, rw.TryLockForRead(Deadline{}))
	require.False(t, rw.TryLockForWrite(Deadline{}))
	require.Less(t, time.Since(start), time.Second, "expired deadline must not block")
	require.Equal(t, writeWord, rw.load(), "a non-blocking attempt must not escalate")

	rw.Unlock()
	require.True(t, rw.TryLockForWrite(Deadline{}))
	rw.Unlock()
}

func TestRWLock_WriterPriority(t *testing.T) {
	fl := NewFreeList()
	rw := New(WithFreeList(fl), WithoutSpin())
	rw.LockForRead()

	wrote := make(chan struct{})
	go func() {
		rw.LockForWrite()
		close(wrote)
		rw.Unlock()
	}()
	waitForState(t, rw, func(c stateCounters) bool { return c.WaitingWriters == 1 })

	// The lock is only read-held, but a writer is queued.
	require.False(t, rw.TryLockForRead(After(20*time.Millisecond)))
	c, ok := stateOf(rw)
	require.True(t, ok)
	require.Equal(t, stateCounters{Readers: 1, WaitingWriters: 1}, c)

	rw.Unlock()
	<-wrote
	require.Eventually(t, func() bool { return rw.load() == unlockedWord }, 5*time.Second, time.Millisecond)
	require.Zero(t, fl.Stats().InUse)
}

func TestRWLock_TimeoutLeavesNoTrace(t *testing.T) {
	fl := NewFreeList()
	rw := New(WithFreeList(fl), WithoutSpin())
	rw.LockForWrite()

	start := time.Now()
	require.False(t, rw.TryLockForWrite(After(20*time.Millisecond)))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.False(t, rw.TryLockForRead(After(5*time.Millisecond)))

	c, ok := stateOf(rw)
	require.True(t, ok, "the timed-out waiters escalated the lock")
	require.Equal(t, stateCounters{Writers: 1}, c)

	rw.Unlock()
	require.Equal(t, unlockedWord, rw.load())
	require.Zero(t, fl.Stats().InUse)

	require.True(t, rw.TryLockForRead(Deadline{}))
	rw.Unlock()
}

func TestRWLock_WriterTimeoutWakesReaders(t *testing.T) {
	rw := New(WithFreeList(NewFreeList()), WithoutSpin())
	rw.LockForRead()

	writerDone := make(chan bool)
	go func() {
		writerDone <- rw.TryLockForWrite(After(500 * time.Millisecond))
	}()
	waitForState(t, rw, func(c stateCounters) bool { return c.WaitingWriters == 1 })

	readerIn := make(chan struct{})
	go func() {
		rw.LockForRead()
		close(readerIn)
	}()
	waitForState(t, rw, func(c stateCounters) bool { return c.WaitingReaders == 1 })

	require.False(t, <-writerDone)
	select {
	case <-readerIn:
	case <-time.After(5 * time.Second):
		t.Fatal("reader queued behind a timed-out writer was never woken")
	}

	c, ok := stateOf(rw)
	require.True(t, ok)
	require.Equal(t, stateCounters{Readers: 2}, c)
	rw.Unlock()
	rw.Unlock()
	require.Equal(t, unlockedWord, rw.load())
}

func TestRWLock_WritersHandOff(t *testing.T) {
	const n = 8
	fl := NewFreeList()
	rw := New(WithFreeList(fl), WithoutSpin())
	rw.LockForWrite()

	var order []int
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			rw.LockForWrite()
			order = append(order, i)
			rw.Unlock()
		}()
	}
	waitForState(t, rw, func(c stateCounters) bool { return c.WaitingWriters == n })

	rw.Unlock()
	wg.Wait()
	require.Len(t, order, n)
	require.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	require.Zero(t, fl.Stats().InUse)
}

func TestRWLock_Context(t *testing.T) {
	rw := New(WithFreeList(NewFreeList()), WithoutSpin())

	require.NoError(t, rw.TryLockForWriteContext(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := rw.TryLockForReadContext(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "lock for read")

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = rw.TryLockForWriteContext(ctx)
	require.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	err = rw.TryLockForWriteContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "lock for write")

	rw.Unlock()
	require.NoError(t, rw.TryLockForReadContext(context.Background()))
	rw.Unlock()
	require.Equal(t, unlockedWord, rw.load())
}

func TestRWLock_ManyLocksShareFreeList(t *testing.T) {
	const (
		locks   = 64
		workers = 8
		loops   = 500
	)
	fl := NewFreeList()
	rws := make([]*RWLock, locks)
	for i := range rws {
		rws[i] = New(WithFreeList(fl))
	}
	counters := make([]int, locks)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func() {
			defer wg.Done()
			for i := range loops {
				k := (w*7 + i) % locks
				if i%4 == 0 {
					rws[k].LockForWrite()
					counters[k]++
				} else {
					rws[k].LockForRead()
					_ = counters[k]
				}
				rws[k].Unlock()
			}
		}()
	}
	wg.Wait()

	total := 0
	for i, rw := range rws {
		require.Equal(t, unlockedWord, rw.load(), "lock %d", i)
		total += counters[i]
	}
	require.Equal(t, workers*loops/4, total)
	require.Zero(t, fl.Stats().InUse)
}

func TestRWLock_Close(t *testing.T) {
	hook := nullLogger(t)
	fl := NewFreeList()

	var plain RWLock
	require.NoError(t, plain.Close())

	rw := New(WithFreeList(fl))
	rw.LockForRead()
	require.ErrorIs(t, rw.Close(), ErrLockHeld)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "rwlock: close of held lock", hook.LastEntry().Message)
	rw.Unlock()
	require.NoError(t, rw.Close())

	rec := NewRecursive(WithFreeList(fl))
	require.True(t, rec.IsRecursive())
	require.Equal(t, 1, fl.Stats().InUse)
	require.NoError(t, rec.Close())
	require.Zero(t, fl.Stats().InUse)
	require.False(t, rec.IsRecursive())
}

func TestRWLock_RLocker(t *testing.T) {
	var rw RWLock
	var l sync.Locker = rw.RLocker()

	l.Lock()
	require.Equal(t, singleReadWord, rw.load())
	require.True(t, rw.TryLockForRead(Deadline{}))
	require.False(t, rw.TryLockForWrite(Deadline{}))
	rw.Unlock()
	l.Unlock()

	var wl sync.Locker = &rw
	wl.Lock()
	require.Equal(t, writeWord, rw.load())
	wl.Unlock()
}
