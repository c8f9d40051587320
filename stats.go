package uhash

import (
	"fmt"

	"github.com/valyala/bytebufferpool"
)

// Stats is a snapshot of a table's shape.
//
// Warning: table statistics are intended to be used for diagnostic
// purposes, not for production code. This means that breaking changes
// may be introduced into this struct even between minor releases.
type Stats struct {
	// Name is the table label set by WithName.
	Name string
	// Buckets is the fixed number of buckets, 0 after Teardown.
	Buckets int
	// EmptyBuckets is the number of buckets that hold no entries.
	EmptyBuckets int
	// Capacity is the number of entry slots reserved at construction.
	Capacity int
	// Size is the number of entries found by walking every chain.
	Size int
	// Counter is the table's own entry count. It differs from Size only
	// when the table was modified during the walk.
	Counter int
	// Used is the number of arena slots currently handed out.
	Used int
	// HighWater is the number of slots touched since the last Clear.
	HighWater int
	// MinEntries is the length of the shortest chain.
	MinEntries int
	// MaxEntries is the length of the longest chain.
	MaxEntries int
	// FailedInserts counts GetOrPut calls that returned Failed.
	FailedInserts uint64
	// Reserved is the number of bytes held from the allocator.
	Reserved uintptr
	// TornDown is set once the table released its memory.
	TornDown bool
}

// LoadFactor returns the average chain length.
func (s *Stats) LoadFactor() float64 {
	if s.Buckets == 0 {
		return 0
	}
	return float64(s.Size) / float64(s.Buckets)
}

// ToString returns string representation of table stats.
func (s *Stats) ToString() string {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	b.WriteString("Stats{\n")
	fmt.Fprintf(b, "Name:          %s\n", s.Name)
	fmt.Fprintf(b, "Buckets:       %d\n", s.Buckets)
	fmt.Fprintf(b, "EmptyBuckets:  %d\n", s.EmptyBuckets)
	fmt.Fprintf(b, "Capacity:      %d\n", s.Capacity)
	fmt.Fprintf(b, "Size:          %d\n", s.Size)
	fmt.Fprintf(b, "Counter:       %d\n", s.Counter)
	fmt.Fprintf(b, "Used:          %d\n", s.Used)
	fmt.Fprintf(b, "HighWater:     %d\n", s.HighWater)
	fmt.Fprintf(b, "MinEntries:    %d\n", s.MinEntries)
	fmt.Fprintf(b, "MaxEntries:    %d\n", s.MaxEntries)
	fmt.Fprintf(b, "LoadFactor:    %.3f\n", s.LoadFactor())
	fmt.Fprintf(b, "FailedInserts: %d\n", s.FailedInserts)
	fmt.Fprintf(b, "Reserved:      %d\n", s.Reserved)
	fmt.Fprintf(b, "TornDown:      %t\n", s.TornDown)
	b.WriteString("}\n")
	return b.String()
}
