package uhash

import (
	"fmt"
	"math"
	"unsafe"
)

// arena is a fixed pool of EntryOf[T] slots carved out of one allocator
// block. Slot r lives at offset (r-1)*slotSize; Nil is never a valid slot.
//
// Allocation pops the free list or bumps the high-water mark. Neither path
// touches the allocator or the Go heap, so both are safe under a
// no-transition lock.
type arena[T any] struct {
	mem      unsafe.Pointer
	bytes    uintptr
	slotSize uintptr
	capacity uint32
	bump     uint32 // slots handed out at least once since the last reset
	free     Ref
	live     uint32
}

func newArena[T any](a Allocator, capacity int) (arena[T], error) {
	if capacity <= 0 || uint64(capacity) >= math.MaxUint32 {
		return arena[T]{}, fmt.Errorf("%w: capacity %d out of range", ErrInvalidConfig, capacity)
	}
	slot := unsafe.Sizeof(EntryOf[T]{})
	if uintptr(capacity) > ^uintptr(0)/slot {
		return arena[T]{}, fmt.Errorf("%w: capacity %d overflows", ErrInvalidConfig, capacity)
	}
	bytes := slot * uintptr(capacity)
	mem := a.Alloc(bytes)
	if mem == nil {
		return arena[T]{}, fmt.Errorf("%w: entry arena of %d bytes", ErrOutOfMemory, bytes)
	}
	return arena[T]{
		mem:      mem,
		bytes:    bytes,
		slotSize: slot,
		capacity: uint32(capacity),
	}, nil
}

//go:nosplit
func (a *arena[T]) at(r Ref) *EntryOf[T] {
	return (*EntryOf[T])(unsafe.Add(a.mem, uintptr(r-1)*a.slotSize))
}

func (a *arena[T]) contains(r Ref) bool {
	return r != Nil && uint32(r) <= a.bump
}

// get returns a zeroed slot, or Nil when the arena is exhausted.
func (a *arena[T]) get() Ref {
	r := a.free
	if r != Nil {
		a.free = a.at(r).next
	} else {
		if a.bump == a.capacity {
			return Nil
		}
		a.bump++
		r = Ref(a.bump)
	}
	*a.at(r) = EntryOf[T]{}
	a.live++
	return r
}

func (a *arena[T]) put(r Ref) {
	e := a.at(r)
	e.hash = 0
	e.next = a.free
	a.free = r
	a.live--
}

// reset forgets every slot. Only valid once nothing references them.
func (a *arena[T]) reset() {
	a.free = Nil
	a.bump = 0
	a.live = 0
}

// detach hands the backing block to the caller and leaves an arena that
// can't allocate.
func (a *arena[T]) detach() (unsafe.Pointer, uintptr) {
	mem, bytes := a.mem, a.bytes
	*a = arena[T]{slotSize: a.slotSize}
	return mem, bytes
}
