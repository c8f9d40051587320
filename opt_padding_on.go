//go:build !uhash_opt_nopadding

package uhash

import "unsafe"

// paddedMutex keeps a SyncTable's lock word on its own cache line, so
// spinning waiters don't contend with readers of the table header.
// Build with -tags uhash_opt_nopadding to drop the padding.
type paddedMutex struct {
	Mutex
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(Mutex{})%CacheLineSize) % CacheLineSize]byte
}
