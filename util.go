package uhash

import (
	"math/bits"
	"unsafe"
)

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal
// to n. Sizes the pooled blocks handed out by HeapAllocator.
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}

	if bits.UintSize == 32 {
		v := uint32(n)
		v--
		v |= v >> 1
		v |= v >> 2
		v |= v >> 4
		v |= v >> 8
		v |= v >> 16
		v++
		return int(v)
	}

	v := uint64(n)
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	v++
	return int(v)
}

// noescape hides a pointer from escape analysis. noescape is
// the identity function but escape analysis doesn't think the
// output depends on the input. Probes handed to a Policy go
// through it so that callers can keep them on the stack.
// USE CAREFULLY!
//
//go:nosplit
//goland:noinspection ALL
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

// hasPointers reports whether values of T may hold Go pointers.
// Interface types always may.
func hasPointers[T any]() bool {
	typ := iTypeOf(*new(T))
	return typ == nil || typ.PtrBytes != 0
}

// iType mirrors the leading fields of the runtime type descriptor
// (internal/abi.Type).
type iType struct {
	Size_    uintptr
	PtrBytes uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash     uint32  // hash of type; avoids computation in hash tables
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	// Types are either static (for compiler-created types) or
	// heap-allocated but always reachable (for reflection-created
	// types, held in the central map). So there is no need to
	// escape types.
	return (*iType)(noescape(unsafe.Pointer(eface.Type)))
}
