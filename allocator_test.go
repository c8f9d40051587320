package uhash

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func bytesAt(p unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(p), n)
}

func testAllocator(t *testing.T, a Allocator) {
	t.Helper()
	require.Nil(t, a.Alloc(0))

	const size = 1000
	p := a.Alloc(size)
	require.NotNil(t, p)
	b := bytesAt(p, size)
	require.Equal(t, make([]byte, size), b)
	for i := range b {
		b[i] = byte(i)
	}
	a.Free(p, size)

	// Recycled memory comes back zeroed.
	p = a.Alloc(size)
	require.NotNil(t, p)
	require.Equal(t, make([]byte, size), bytesAt(p, size))
	for i := range bytesAt(p, size) {
		bytesAt(p, size)[i] = 0xAB
	}

	q := a.Realloc(p, size, 5000)
	require.NotNil(t, q)
	grown := bytesAt(q, 5000)
	for i := 0; i < size; i++ {
		require.Equal(t, byte(0xAB), grown[i])
	}
	require.Equal(t, make([]byte, 5000-size), grown[size:])

	r := a.Realloc(q, 5000, 10)
	require.NotNil(t, r)
	require.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB, 0xAB}, bytesAt(r, 10))
	require.Nil(t, a.Realloc(r, 10, 0))

	n := a.Realloc(nil, 0, 64)
	require.NotNil(t, n)
	a.Free(n, 64)
	a.Free(nil, 64)
}

func TestHeapAllocator(t *testing.T) {
	testAllocator(t, HeapAllocator())

	// Growth inside the same size class stays in place.
	a := HeapAllocator()
	p := a.Alloc(100)
	bytesAt(p, 100)[99] = 1
	q := a.Realloc(p, 100, 120)
	require.Equal(t, p, q)
	require.Equal(t, byte(1), bytesAt(q, 120)[99])
	require.Equal(t, make([]byte, 20), bytesAt(q, 120)[100:])
	a.Free(q, 120)
}

func TestHeapAllocator_OversizedFails(t *testing.T) {
	// The runtime cannot back these; the allocator refuses up front.
	require.Nil(t, HeapAllocator().Alloc(defaultHeapBlock+1))
	require.Nil(t, NewHeapAllocator(^uintptr(0)).Alloc(maxHeapBlock+1))

	a := NewHeapAllocator(4096)
	require.Nil(t, a.Alloc(8192))
	p := a.Alloc(4096)
	require.NotNil(t, p)
	require.Nil(t, a.Realloc(p, 4096, 4097))
	bytesAt(p, 4096)[4095] = 7
	a.Free(p, 4096)

	_, err := NewTable[kv, kv](&kvPolicy{}, WithAllocator(HeapAllocator()), WithCapacity(1<<27))
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestOSAllocator(t *testing.T) {
	testAllocator(t, OSAllocator())
}

func TestTrackingAllocator(t *testing.T) {
	a := NewTrackingAllocator(HeapAllocator(), 8192)
	testAllocator(t, a)
	require.Zero(t, a.Usage().Live)
	require.Equal(t, uintptr(5000), a.Usage().Peak)

	p := a.Alloc(3000)
	require.NotNil(t, p)
	require.Nil(t, a.Alloc(6000))
	require.Nil(t, a.Realloc(p, 3000, 9000))
	require.Equal(t, uintptr(3000), a.Usage().Live)

	p = a.Realloc(p, 3000, 1000)
	require.NotNil(t, p)
	q := a.Alloc(3000)
	require.NotNil(t, q)
	require.Equal(t, uintptr(4000), a.Usage().Live)
	a.Free(p, 1000)
	a.Free(q, 3000)

	u := a.Usage()
	require.Zero(t, u.Live)
	require.Equal(t, uintptr(8192), u.Limit)
	require.Equal(t, uintptr(5000), u.Peak)
	require.Equal(t, uint64(3), u.Failures)
	require.Equal(t, "Usage{Live: 0, Peak: 5000, Limit: 8192, Allocs: 5, Frees: 5, Failures: 3}", u.String())
}

func TestDefaultAllocator(t *testing.T) {
	require.Equal(t, OSAllocator(), DefaultAllocator())
}
