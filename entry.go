package uhash

// Ref is the handle of an entry slot inside a table's arena.
//
// Refs are only meaningful for the table that returned them, and only until
// the entry is removed, cleared or torn down.
type Ref uint32

// Nil is the "no entry" / end-of-chain sentinel. Slot numbering starts at 1,
// so zeroed bucket memory is an empty table.
const Nil Ref = 0

// Entry is the chain-link contract shared by every stored record.
type Entry interface {
	Next() Ref
	SetNext(next Ref)
	Hash() uint32
	SetHash(hash uint32)
}

// EntryOf is the fixed-layout record stored in unmanaged memory.
//
// Value is the use-site payload. It must not contain Go pointers: table
// memory is never scanned by the garbage collector.
type EntryOf[T any] struct {
	next  Ref
	hash  uint32
	Value T
}

var _ Entry = (*EntryOf[struct{}])(nil)

//go:nosplit
func (e *EntryOf[T]) Next() Ref {
	return e.next
}

//go:nosplit
func (e *EntryOf[T]) SetNext(next Ref) {
	e.next = next
}

//go:nosplit
func (e *EntryOf[T]) Hash() uint32 {
	return e.hash
}

//go:nosplit
func (e *EntryOf[T]) SetHash(hash uint32) {
	e.hash = hash
}

// Probe is the transient, caller-owned description of a key handed to table
// operations. The table reads it during the call and never retains it.
type Probe[P any] struct {
	Hash  uint32
	Value P
}
