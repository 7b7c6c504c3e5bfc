// Package freelist implements a lock-free pool of recycled blocks addressed
// by a small integer id.
//
// Storage is split into tiers that are materialised on first use, so the
// first few allocations only pay for a small tier and growth pauses stay
// bounded. Blocks are never freed: once a tier exists it lives as long as
// the List, and an id always refers to the same memory. A stale id is
// therefore never dangling, only possibly reused.
//
// The free stack head is a single 64-bit word holding the index of the first
// free element in the low 32 bits and an ABA serial in the high 32 bits. The
// serial is bumped on every Release.
package freelist

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/rwlock/internal/opt"
)

// MaxIndex is the default number of ids a List can hand out.
const MaxIndex = 0xffff

// DefaultSizes are the default tier sizes. They add up to MaxIndex.
var DefaultSizes = []int{16, 128, 1024, MaxIndex - (16 + 128 + 1024)}

const (
	indexMask  = uint64(1)<<32 - 1
	serialUnit = uint64(1) << 32
)

// Config holds the tier layout of a List.
type Config struct {
	sizes []int
}

// WithSizes sets the tier sizes. Each size must be positive and the total
// must fit in 32 bits.
func WithSizes(sizes ...int) func(*Config) {
	return func(c *Config) {
		c.sizes = append([]int(nil), sizes...)
	}
}

type element[T any] struct {
	// next is the index of the following free element. Only meaningful
	// while the element sits on the free stack.
	next atomic.Uint32
	v    T
}

type tier[T any] struct {
	elems []element[T]
}

// Stats is a point-in-time snapshot of a List.
type Stats struct {
	// Capacity is the number of elements in materialised tiers.
	Capacity int
	// InUse is the number of ids handed out and not yet released.
	InUse int
	// Allocations counts successful Next calls.
	Allocations uint64
	// Releases counts Release calls.
	Releases uint64
}

// List is a lock-free free list of T. The zero value is not usable; create
// instances with New.
type List[T any] struct {
	head atomic.Uint64
	//lint:ignore U1000 prevents false sharing
	hpad [opt.CacheLineSize_ - unsafe.Sizeof(atomic.Uint64{})]byte

	inUse    atomic.Int64
	allocs   atomic.Uint64
	releases atomic.Uint64
	capacity atomic.Int64

	tiers   []atomic.Pointer[tier[T]]
	offsets []int
	sizes   []int
	total   int
}

// New creates a List. Without options it uses DefaultSizes.
func New[T any](options ...func(*Config)) *List[T] {
	c := &Config{sizes: DefaultSizes}
	for _, o := range options {
		o(c)
	}
	if len(c.sizes) == 0 {
		panic("freelist: no tiers configured")
	}

	l := &List[T]{
		tiers:   make([]atomic.Pointer[tier[T]], len(c.sizes)),
		offsets: make([]int, len(c.sizes)),
		sizes:   append([]int(nil), c.sizes...),
	}
	for i, sz := range c.sizes {
		if sz <= 0 {
			panic(fmt.Sprintf("freelist: tier %d has non-positive size %d", i, sz))
		}
		l.offsets[i] = l.total
		l.total += sz
	}
	if uint64(l.total) >= indexMask {
		panic(fmt.Sprintf("freelist: %d elements exceed the index width", l.total))
	}
	return l
}

// Len returns the number of ids the List can hand out.
func (l *List[T]) Len() int {
	return l.total
}

// Next pops a free id. It reports false when every id is in use.
func (l *List[T]) Next() (int, bool) {
	for {
		h := l.head.Load()
		id := int(h & indexMask)
		if id >= l.total {
			return 0, false
		}
		e := l.element(id)
		next := uint64(e.next.Load())
		if l.head.CompareAndSwap(h, next|h&^indexMask) {
			l.inUse.Add(1)
			l.allocs.Add(1)
			return id, true
		}
	}
}

// Release pushes id back on the free stack. The caller must have finished
// with At(id); the element is handed out again as is.
func (l *List[T]) Release(id int) {
	e := l.element(id)
	for {
		h := l.head.Load()
		e.next.Store(uint32(h & indexMask))
		if l.head.CompareAndSwap(h, uint64(id)|(h&^indexMask+serialUnit)) {
			l.inUse.Add(-1)
			l.releases.Add(1)
			return
		}
	}
}

// At returns the element for id. The pointer stays valid for the life of
// the List.
func (l *List[T]) At(id int) *T {
	return &l.element(id).v
}

// Stats returns a snapshot of the List counters.
func (l *List[T]) Stats() Stats {
	return Stats{
		Capacity:    int(l.capacity.Load()),
		InUse:       int(l.inUse.Load()),
		Allocations: l.allocs.Load(),
		Releases:    l.releases.Load(),
	}
}

func (l *List[T]) element(id int) *element[T] {
	i, off := l.tierFor(id)
	t := l.tiers[i].Load()
	if t == nil {
		t = l.materialize(i)
	}
	return &t.elems[off]
}

// tierFor maps id to its tier and the offset inside it.
func (l *List[T]) tierFor(id int) (int, int) {
	for i := len(l.offsets) - 1; i >= 0; i-- {
		if id >= l.offsets[i] {
			if id-l.offsets[i] >= l.sizes[i] {
				break
			}
			return i, id - l.offsets[i]
		}
	}
	panic(fmt.Sprintf("freelist: index %d out of range", id))
}

// materialize allocates tier i with every element linked to its successor.
// Concurrent callers race with a CAS; losers drop their copy.
func (l *List[T]) materialize(i int) *tier[T] {
	t := &tier[T]{elems: make([]element[T], l.sizes[i])}
	for j := range t.elems {
		t.elems[j].next.Store(uint32(l.offsets[i] + j + 1))
	}
	if l.tiers[i].CompareAndSwap(nil, t) {
		l.capacity.Add(int64(len(t.elems)))
		return t
	}
	return l.tiers[i].Load()
}
