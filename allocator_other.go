//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package uhash

var defaultAllocator = HeapAllocator()

// OSAllocator falls back to HeapAllocator where anonymous mappings are
// unavailable.
func OSAllocator() Allocator {
	return HeapAllocator()
}
