package uhash

import (
	"math/bits"

	"github.com/bytedance/gopkg/util/xxhash3"
)

// HashString returns a non-zero probe hash for s.
func HashString(s string) uint32 {
	return fold(xxhash3.HashString(s))
}

// HashBytes returns a non-zero probe hash for b.
func HashBytes(b []byte) uint32 {
	return fold(xxhash3.Hash(b))
}

// HashUintptr returns a non-zero probe hash for an address or integer key,
// taking the high bits of a golden-ratio multiply.
func HashUintptr(v uintptr) uint32 {
	h := v * hashPrime
	return nonZero(uint32(h >> (bits.UintSize - 32)))
}

func fold(h uint64) uint32 {
	return nonZero(uint32(h) ^ uint32(h>>32))
}

// nonZero maps 0 to 1. Zero is reserved and never a valid probe hash.
//
//go:nosplit
func nonZero(h uint32) uint32 {
	if h == 0 {
		return 1
	}
	return h
}
