package uhash

import (
	"fmt"
	"math"
	"unsafe"
)

// symbol is the stored payload of a SymbolTable: an id and the location of
// the name inside the table's text region.
type symbol struct {
	id  uint64
	off uint32
	len uint32
}

// textRegion is a bump-allocated byte region holding interned names.
type textRegion struct {
	mem  unsafe.Pointer
	cap  uint32
	used uint32
}

func (r *textRegion) string(off, n uint32) string {
	if n == 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Add(r.mem, off)), n)
}

// symbolPolicy matches probe strings against interned names and copies
// new names into the text region.
type symbolPolicy struct {
	text   textRegion
	nextID uint64
}

func (p *symbolPolicy) Equal(probe *string, stored *symbol) bool {
	return int(stored.len) == len(*probe) && p.text.string(stored.off, stored.len) == *probe
}

func (p *symbolPolicy) CopyToHeap(dst *symbol, probe *string) bool {
	n := len(*probe)
	if n > int(p.text.cap-p.text.used) {
		return false
	}
	off := p.text.used
	if n > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Add(p.text.mem, off)), n), *probe)
	}
	p.text.used += uint32(n)
	p.nextID++
	*dst = symbol{id: p.nextID, off: off, len: uint32(n)}
	return true
}

// Cleared rewinds the text region. Ids keep counting so that an id from
// before a Clear never names a different symbol afterwards.
func (p *symbolPolicy) Cleared() {
	p.text.used = 0
}

// SymbolTable interns strings and hands out stable numeric ids.
//
// Names are copied into a text region reserved at construction, so
// interning never allocates. Interning fails once either the entry arena
// or the text region is full; Clear reclaims both.
type SymbolTable struct {
	table     *SyncTable[string, symbol]
	policy    *symbolPolicy
	allocator Allocator
}

// NewSymbolTable reserves a symbol table. WithTextCapacity sizes the
// text region.
func NewSymbolTable(options ...func(*Config)) (*SymbolTable, error) {
	options = append([]func(*Config){WithName("symbols")}, options...)
	c := newConfig(options)
	if c.textCapacity <= 0 || uint64(c.textCapacity) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: text capacity %d out of range", ErrInvalidConfig, c.textCapacity)
	}
	mem := c.allocator.Alloc(uintptr(c.textCapacity))
	if mem == nil {
		return nil, fmt.Errorf("%w: text region of %d bytes", ErrOutOfMemory, c.textCapacity)
	}
	policy := &symbolPolicy{text: textRegion{mem: mem, cap: uint32(c.textCapacity)}}
	table, err := NewSyncTable[string, symbol](policy, options...)
	if err != nil {
		c.allocator.Free(mem, uintptr(c.textCapacity))
		return nil, err
	}
	return &SymbolTable{table: table, policy: policy, allocator: c.allocator}, nil
}

// Intern returns the id of name, interning it if needed. ok is false when
// the table is full or torn down.
func (s *SymbolTable) Intern(name string) (id uint64, ok bool) {
	probe := Probe[string]{Hash: HashString(name), Value: name}
	s.table.With(func(t *Table[string, symbol]) {
		if r, o := t.GetOrPut(&probe); o != Failed {
			id, ok = t.Entry(r).Value.id, true
		}
	})
	if !ok {
		s.table.exhausted()
	}
	return id, ok
}

// Lookup returns the id of name if it is interned.
func (s *SymbolTable) Lookup(name string) (id uint64, ok bool) {
	probe := Probe[string]{Hash: HashString(name), Value: name}
	s.table.With(func(t *Table[string, symbol]) {
		if r := t.Get(&probe); r != Nil {
			id, ok = t.Entry(r).Value.id, true
		}
	})
	return id, ok
}

// Range calls yield for every interned symbol with the table locked.
// name aliases table memory and is only valid during the call. yield
// must not block or call back into s.
func (s *SymbolTable) Range(yield func(id uint64, name string) bool) {
	s.table.Range(func(_ Ref, e *EntryOf[symbol]) bool {
		return yield(e.Value.id, s.policy.text.string(e.Value.off, e.Value.len))
	})
}

// Size returns the number of interned symbols.
func (s *SymbolTable) Size() int {
	return s.table.Size()
}

// TextUsed returns the number of text region bytes holding names.
func (s *SymbolTable) TextUsed() int {
	var n uint32
	s.table.With(func(*Table[string, symbol]) {
		n = s.policy.text.used
	})
	return int(n)
}

// Clear drops every symbol. Ids handed out before are never reused.
func (s *SymbolTable) Clear() {
	s.table.Clear()
}

// Teardown releases the table and its text region. It is idempotent.
func (s *SymbolTable) Teardown() {
	s.table.Teardown()
	var text textRegion
	s.table.With(func(*Table[string, symbol]) {
		text = s.policy.text
		s.policy.text = textRegion{}
	})
	if text.mem != nil {
		s.allocator.Free(text.mem, uintptr(text.cap))
	}
}

// Stats returns the table statistics.
func (s *SymbolTable) Stats() *Stats {
	return s.table.Stats()
}
