package uhash

import (
	"fmt"
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/valyala/bytebufferpool"
)

// Allocator is the unmanaged memory interface tables draw their storage from.
//
// Implementations must not block on I/O and must report exhaustion by
// returning nil rather than panicking. Memory returned by Alloc is zeroed.
type Allocator interface {
	// Alloc returns size bytes of zeroed memory, or nil.
	Alloc(size uintptr) unsafe.Pointer
	// Realloc resizes a block returned by Alloc. The common prefix is kept
	// and any growth is zeroed. On failure it returns nil and p stays valid.
	Realloc(p unsafe.Pointer, oldSize, newSize uintptr) unsafe.Pointer
	// Free releases a block. size must be the size it was allocated with.
	Free(p unsafe.Pointer, size uintptr)
}

// DefaultAllocator returns the allocator used when none is configured:
// anonymous mappings where the platform supports them, pooled heap blocks
// otherwise.
func DefaultAllocator() Allocator {
	return defaultAllocator
}

// maxHeapBlock is mcache's largest pool: 1<<45 on 64-bit platforms, 1<<29
// on 32-bit ones. defaultHeapBlock is the default cap below it, since the
// runtime throws instead of failing when it cannot back a huge block.
const (
	maxHeapBlock     = 1 << (bits.UintSize/2 + 13)
	defaultHeapBlock = 1 << (bits.UintSize/8 + 22)
)

type heapAllocator struct {
	max uintptr
}

// HeapAllocator returns an allocator backed by pooled, pointer-free heap
// blocks of at most 1GiB (64MiB on 32-bit platforms). The blocks are
// never scanned by the garbage collector and stay alive as long as the
// table references them.
func HeapAllocator() Allocator {
	return heapAllocator{max: defaultHeapBlock}
}

// NewHeapAllocator is HeapAllocator with a different per-block cap.
// Requests above maxBlock fail with nil. maxBlock is clamped to the
// largest pooled size.
func NewHeapAllocator(maxBlock uintptr) Allocator {
	return heapAllocator{max: min(maxBlock, maxHeapBlock)}
}

func (a heapAllocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 || size > a.max {
		return nil
	}
	buf := mcache.Malloc(int(size))
	clear(buf)
	return unsafe.Pointer(unsafe.SliceData(buf))
}

func (a heapAllocator) Realloc(p unsafe.Pointer, oldSize, newSize uintptr) unsafe.Pointer {
	if p != nil && newSize != 0 && newSize <= a.max &&
		nextPowOf2(int(oldSize)) == nextPowOf2(int(newSize)) {
		// Same size class: the block already has room.
		if newSize > oldSize {
			clear(unsafe.Slice((*byte)(unsafe.Add(p, oldSize)), newSize-oldSize))
		}
		return p
	}
	return reallocCopy(a, p, oldSize, newSize)
}

func (heapAllocator) Free(p unsafe.Pointer, size uintptr) {
	if p == nil || size == 0 {
		return
	}
	mcache.Free(unsafe.Slice((*byte)(p), nextPowOf2(int(size)))[:size])
}

// reallocCopy implements Realloc as allocate, copy, free.
func reallocCopy(a Allocator, p unsafe.Pointer, oldSize, newSize uintptr) unsafe.Pointer {
	if p == nil {
		return a.Alloc(newSize)
	}
	if newSize == 0 {
		a.Free(p, oldSize)
		return nil
	}
	q := a.Alloc(newSize)
	if q == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(q), newSize), unsafe.Slice((*byte)(p), min(oldSize, newSize)))
	a.Free(p, oldSize)
	return q
}

// TrackingAllocator accounts for every byte handed out by a base allocator
// and can cap the total. It is safe for concurrent use.
type TrackingAllocator struct {
	base     Allocator
	limit    uintptr
	live     atomic.Uintptr
	peak     atomic.Uintptr
	allocs   atomic.Uint64
	frees    atomic.Uint64
	failures atomic.Uint64
}

// NewTrackingAllocator wraps base. A zero limit means unlimited.
func NewTrackingAllocator(base Allocator, limit uintptr) *TrackingAllocator {
	if base == nil {
		base = DefaultAllocator()
	}
	return &TrackingAllocator{base: base, limit: limit}
}

func (a *TrackingAllocator) reserve(size uintptr) bool {
	for {
		cur := a.live.Load()
		next := cur + size
		if next < cur || (a.limit != 0 && next > a.limit) {
			return false
		}
		if a.live.CompareAndSwap(cur, next) {
			for {
				p := a.peak.Load()
				if next <= p || a.peak.CompareAndSwap(p, next) {
					return true
				}
			}
		}
	}
}

// Alloc fails when size would push Live past the limit.
func (a *TrackingAllocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 || !a.reserve(size) {
		a.failures.Add(1)
		return nil
	}
	p := a.base.Alloc(size)
	if p == nil {
		a.live.Add(-size)
		a.failures.Add(1)
		return nil
	}
	a.allocs.Add(1)
	return p
}

// Realloc reserves only the growth against the limit.
func (a *TrackingAllocator) Realloc(p unsafe.Pointer, oldSize, newSize uintptr) unsafe.Pointer {
	if p == nil {
		return a.Alloc(newSize)
	}
	if newSize > oldSize && !a.reserve(newSize-oldSize) {
		a.failures.Add(1)
		return nil
	}
	q := a.base.Realloc(p, oldSize, newSize)
	switch {
	case q == nil && newSize != 0:
		if newSize > oldSize {
			a.live.Add(-(newSize - oldSize))
		}
		a.failures.Add(1)
	case q == nil:
		a.live.Add(-oldSize)
		a.frees.Add(1)
	case newSize < oldSize:
		a.live.Add(-(oldSize - newSize))
	}
	return q
}

// Free returns size bytes to the base allocator.
func (a *TrackingAllocator) Free(p unsafe.Pointer, size uintptr) {
	if p == nil {
		return
	}
	a.base.Free(p, size)
	a.live.Add(-size)
	a.frees.Add(1)
}

// Usage returns a snapshot of the allocator's counters.
func (a *TrackingAllocator) Usage() Usage {
	return Usage{
		Live:     a.live.Load(),
		Peak:     a.peak.Load(),
		Limit:    a.limit,
		Allocs:   a.allocs.Load(),
		Frees:    a.frees.Load(),
		Failures: a.failures.Load(),
	}
}

// Usage is a TrackingAllocator snapshot.
type Usage struct {
	// Live is the number of bytes currently allocated.
	Live uintptr
	// Peak is the high-water mark of Live.
	Peak uintptr
	// Limit is the configured cap, 0 when unlimited.
	Limit uintptr
	// Allocs and Frees count successful calls.
	Allocs uint64
	Frees  uint64
	// Failures counts allocations refused by the limit or the base allocator.
	Failures uint64
}

// String renders every counter on one line.
func (u Usage) String() string {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	fmt.Fprintf(b, "Usage{Live: %d, Peak: %d, Limit: %d, Allocs: %d, Frees: %d, Failures: %d}",
		u.Live, u.Peak, u.Limit, u.Allocs, u.Frees, u.Failures)
	return b.String()
}
