//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package uhash

import (
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

var defaultAllocator Allocator = osAllocator{}

type osAllocator struct{}

// OSAllocator returns an allocator backed by anonymous private mappings.
// Pages are zero on first touch and never seen by the garbage collector.
func OSAllocator() Allocator {
	return osAllocator{}
}

func (osAllocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 || size > math.MaxInt {
		return nil
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}

// Realloc always moves: munmap needs the exact length of the original mapping.
func (a osAllocator) Realloc(p unsafe.Pointer, oldSize, newSize uintptr) unsafe.Pointer {
	return reallocCopy(a, p, oldSize, newSize)
}

func (osAllocator) Free(p unsafe.Pointer, size uintptr) {
	if p == nil || size == 0 {
		return
	}
	_ = unix.Munmap(unsafe.Slice((*byte)(p), size))
}
