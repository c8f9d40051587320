package uhash

import (
	"fmt"
	"math"
	"unsafe"

	"go.uber.org/zap"
)

// Policy is the use-site half of a table: how a probe matches a stored
// payload and how it is materialized into table memory.
//
// Both methods run inside table operations, possibly under a no-transition
// lock. They must not block or perform I/O, and must not call back into
// the table. Under a SyncTable they must not panic either: a panic while
// the lock is held is a fatal runtime error, not a recoverable one.
type Policy[P, T any] interface {
	// Equal reports whether probe describes stored. It is only consulted
	// when the hashes already match.
	Equal(probe *P, stored *T) bool
	// CopyToHeap fills the freshly allocated payload dst from probe.
	// Returning false aborts the insert and counts as allocation failure.
	CopyToHeap(dst *T, probe *P) bool
}

// EntryReleaser is implemented by policies that own resources referenced
// from payloads. ReleaseEntry runs for every entry that is removed,
// cleared or torn down, before its slot is reused.
type EntryReleaser[T any] interface {
	ReleaseEntry(stored *T)
}

// ClearObserver is implemented by policies that keep per-table state
// which must be reset together with the entries.
type ClearObserver interface {
	Cleared()
}

// Funcs adapts a pair of functions to Policy.
type Funcs[P, T any] struct {
	EqualFunc func(probe *P, stored *T) bool
	CopyFunc  func(dst *T, probe *P) bool
}

// Equal calls f.EqualFunc.
func (f Funcs[P, T]) Equal(probe *P, stored *T) bool {
	return f.EqualFunc(probe, stored)
}

// CopyToHeap calls f.CopyFunc.
func (f Funcs[P, T]) CopyToHeap(dst *T, probe *P) bool {
	return f.CopyFunc(dst, probe)
}

// Outcome is the result of GetOrPut.
type Outcome uint8

const (
	// Failed means nothing was inserted: the arena is exhausted, the
	// policy refused the copy, or the table is torn down.
	Failed Outcome = iota
	// Inserted means a new entry was created for the probe.
	Inserted
	// Present means an equal entry already existed.
	Present
)

// String returns the outcome's name.
func (o Outcome) String() string {
	switch o {
	case Failed:
		return "Failed"
	case Inserted:
		return "Inserted"
	case Present:
		return "Present"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Table is a fixed-bucket, separately chained hash table living in
// unmanaged memory.
//
// All storage is reserved by NewTable: the bucket array and an arena of
// entry slots. Operations never grow the table, never allocate from the
// Go heap and never block, which makes them usable from code that must
// not be interrupted. Table is not safe for concurrent use; see SyncTable.
//
// P is the probe payload a caller describes a key with. T is the stored
// payload and must be free of Go pointers.
type Table[P, T any] struct {
	buckets   []Ref
	entries   arena[T]
	n         uint32
	size      int
	failures  uint64
	capacity  int
	policy    Policy[P, T]
	releaser  EntryReleaser[T]
	observer  ClearObserver
	allocator Allocator
	logger    *zap.Logger
	name      string
}

// NewTable reserves a table for policy.
func NewTable[P, T any](policy Policy[P, T], options ...func(*Config)) (*Table[P, T], error) {
	c := newConfig(options)
	if policy == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrInvalidConfig)
	}
	if c.buckets <= 0 || uint64(c.buckets) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: bucket count %d out of range", ErrInvalidConfig, c.buckets)
	}
	if hasPointers[T]() {
		var zero T
		return nil, fmt.Errorf("%w: %T", ErrPointerPayload, zero)
	}

	bucketBytes := uintptr(c.buckets) * unsafe.Sizeof(Nil)
	mem := c.allocator.Alloc(bucketBytes)
	if mem == nil {
		return nil, fmt.Errorf("%w: bucket array of %d bytes", ErrOutOfMemory, bucketBytes)
	}
	entries, err := newArena[T](c.allocator, c.capacity)
	if err != nil {
		c.allocator.Free(mem, bucketBytes)
		return nil, err
	}

	t := &Table[P, T]{
		buckets:   unsafe.Slice((*Ref)(mem), c.buckets),
		entries:   entries,
		n:         uint32(c.buckets),
		capacity:  c.capacity,
		policy:    policy,
		allocator: c.allocator,
		logger:    c.logger,
		name:      c.name,
	}
	t.releaser, _ = policy.(EntryReleaser[T])
	t.observer, _ = policy.(ClearObserver)

	t.logger.Debug("hashtable created",
		zap.String("table", t.name),
		zap.Int("buckets", c.buckets),
		zap.Int("capacity", c.capacity),
		zap.Uintptr("reserved", bucketBytes+entries.bytes))
	return t, nil
}

func (t *Table[P, T]) checkHash(hash uint32) {
	if hash == 0 {
		fatal(t.logger, "uhash: probe hash must be non-zero", zap.String("table", t.name))
	}
}

// find walks the chain of bucket idx. The probe pointer is hidden from
// escape analysis so callers can keep probes on the stack.
func (t *Table[P, T]) find(probe *Probe[P], idx uint32) Ref {
	value := (*P)(noescape(unsafe.Pointer(&probe.Value)))
	for r := t.buckets[idx]; r != Nil; {
		e := t.entries.at(r)
		if e.hash == probe.Hash && t.policy.Equal(value, &e.Value) {
			return r
		}
		r = e.next
	}
	return Nil
}

// Get returns the entry matching probe, or Nil.
func (t *Table[P, T]) Get(probe *Probe[P]) Ref {
	t.checkHash(probe.Hash)
	if t.n == 0 {
		return Nil
	}
	return t.find(probe, probe.Hash%t.n)
}

// GetOrPut returns the entry matching probe, inserting one when absent.
// New entries are linked at the head of their bucket chain.
func (t *Table[P, T]) GetOrPut(probe *Probe[P]) (Ref, Outcome) {
	t.checkHash(probe.Hash)
	if t.n == 0 {
		t.failures++
		return Nil, Failed
	}
	idx := probe.Hash % t.n
	if r := t.find(probe, idx); r != Nil {
		return r, Present
	}
	return t.insert(probe, idx)
}

func (t *Table[P, T]) insert(probe *Probe[P], idx uint32) (Ref, Outcome) {
	r := t.entries.get()
	if r == Nil {
		t.failures++
		return Nil, Failed
	}
	e := t.entries.at(r)
	if !t.policy.CopyToHeap(&e.Value, (*P)(noescape(unsafe.Pointer(&probe.Value)))) {
		t.entries.put(r)
		t.failures++
		return Nil, Failed
	}
	storeIntFast(&e.hash, probe.Hash)
	storeIntFast(&e.next, t.buckets[idx])
	storeInt(&t.buckets[idx], r)
	t.size++
	return r, Inserted
}

// PutIfAbsent inserts probe and reports whether it was newly inserted.
// An existing match and an allocation failure both return false.
func (t *Table[P, T]) PutIfAbsent(probe *Probe[P]) bool {
	_, o := t.GetOrPut(probe)
	return o == Inserted
}

// Remove unlinks and frees the entry matching probe.
func (t *Table[P, T]) Remove(probe *Probe[P]) bool {
	t.checkHash(probe.Hash)
	if t.n == 0 {
		return false
	}
	idx := probe.Hash % t.n
	value := (*P)(noescape(unsafe.Pointer(&probe.Value)))
	prev := Nil
	for r := t.buckets[idx]; r != Nil; {
		e := t.entries.at(r)
		next := e.next
		if e.hash == probe.Hash && t.policy.Equal(value, &e.Value) {
			if prev == Nil {
				storeInt(&t.buckets[idx], next)
			} else {
				storeInt(&t.entries.at(prev).next, next)
			}
			t.free(r, e)
			t.size--
			return true
		}
		prev, r = r, next
	}
	return false
}

func (t *Table[P, T]) free(r Ref, e *EntryOf[T]) {
	if t.releaser != nil {
		t.releaser.ReleaseEntry(&e.Value)
	}
	t.entries.put(r)
}

// Clear frees every entry and empties every bucket. Refs obtained
// before Clear are invalid afterwards.
func (t *Table[P, T]) Clear() {
	for i := range t.buckets {
		r := t.buckets[i]
		if r == Nil {
			continue
		}
		storeInt(&t.buckets[i], Nil)
		for r != Nil {
			e := t.entries.at(r)
			next := e.next
			t.free(r, e)
			r = next
		}
	}
	t.size = 0
	t.entries.reset()
	if t.observer != nil {
		t.observer.Cleared()
	}
}

// reservation is memory detached from a table, waiting to be returned to
// its allocator outside of any lock.
type reservation struct {
	allocator   Allocator
	logger      *zap.Logger
	name        string
	buckets     unsafe.Pointer
	bucketBytes uintptr
	entries     unsafe.Pointer
	entryBytes  uintptr
}

// detach clears the table and unhooks its storage. The table keeps
// answering: lookups miss, inserts fail.
func (t *Table[P, T]) detach() reservation {
	if t.n == 0 {
		return reservation{}
	}
	t.Clear()
	res := reservation{
		allocator:   t.allocator,
		logger:      t.logger,
		name:        t.name,
		buckets:     unsafe.Pointer(unsafe.SliceData(t.buckets)),
		bucketBytes: uintptr(len(t.buckets)) * unsafe.Sizeof(Nil),
	}
	res.entries, res.entryBytes = t.entries.detach()
	t.buckets = nil
	t.n = 0
	return res
}

func (r reservation) release() {
	if r.allocator == nil {
		return
	}
	r.allocator.Free(r.entries, r.entryBytes)
	r.allocator.Free(r.buckets, r.bucketBytes)
	r.logger.Debug("hashtable torn down",
		zap.String("table", r.name),
		zap.Uintptr("released", r.bucketBytes+r.entryBytes))
}

// Teardown clears the table and returns its memory to the allocator.
// It is idempotent.
func (t *Table[P, T]) Teardown() {
	t.detach().release()
}

// Size returns the number of live entries.
func (t *Table[P, T]) Size() int {
	return t.size
}

// BucketCount returns the fixed number of buckets, 0 after Teardown.
func (t *Table[P, T]) BucketCount() int {
	return int(t.n)
}

// Buckets exposes the raw bucket heads for diagnostics. Reads racing with
// mutation see an unspecified, but never torn, chain head.
func (t *Table[P, T]) Buckets() []Ref {
	return t.buckets
}

// Entry resolves r into table storage. It returns nil for Nil and for
// refs the table never handed out. The entry must not be freed by the
// caller and is only valid until it is removed or the table is cleared.
func (t *Table[P, T]) Entry(r Ref) *EntryOf[T] {
	if !t.entries.contains(r) {
		return nil
	}
	return t.entries.at(r)
}

// Range calls yield for every entry, bucket by bucket, each chain from
// its head. yield must not modify the table.
func (t *Table[P, T]) Range(yield func(r Ref, e *EntryOf[T]) bool) {
	for i := range t.buckets {
		for r := t.buckets[i]; r != Nil; {
			e := t.entries.at(r)
			if !yield(r, e) {
				return
			}
			r = e.next
		}
	}
}

// Stats walks the table and returns a snapshot of its shape.
func (t *Table[P, T]) Stats() *Stats {
	s := &Stats{
		Name:          t.name,
		Buckets:       len(t.buckets),
		Capacity:      t.capacity,
		Counter:       t.size,
		Used:          int(t.entries.live),
		HighWater:     int(t.entries.bump),
		FailedInserts: t.failures,
		TornDown:      t.n == 0,
		MinEntries:    math.MaxInt,
	}
	if !s.TornDown {
		s.Reserved = uintptr(len(t.buckets))*unsafe.Sizeof(Nil) + t.entries.bytes
	}
	for i := range t.buckets {
		n := 0
		for r := loadInt(&t.buckets[i]); r != Nil; r = loadInt(&t.entries.at(r).next) {
			n++
		}
		if n == 0 {
			s.EmptyBuckets++
		}
		s.Size += n
		s.MinEntries = min(s.MinEntries, n)
		s.MaxEntries = max(s.MaxEntries, n)
	}
	if s.Buckets == 0 {
		s.MinEntries = 0
	}
	return s
}
