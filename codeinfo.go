package uhash

// CodeInfo describes a compiled code blob, keyed by its entry address.
type CodeInfo struct {
	Entry     uintptr
	Size      uint32
	FrameSize uint32
	MethodID  uint64
}

// Contains reports whether pc falls inside the blob.
func (c *CodeInfo) Contains(pc uintptr) bool {
	return pc >= c.Entry && pc-c.Entry < uintptr(c.Size)
}

type codeInfoPolicy struct{}

func (codeInfoPolicy) Equal(probe *CodeInfo, stored *CodeInfo) bool {
	return probe.Entry == stored.Entry
}

func (codeInfoPolicy) CopyToHeap(dst *CodeInfo, probe *CodeInfo) bool {
	*dst = *probe
	return true
}

// CodeInfoCache maps code entry addresses to their CodeInfo. Lookups are
// safe from code that must not be interrupted, such as a stack walker
// running with the world half stopped.
type CodeInfoCache struct {
	table *SyncTable[CodeInfo, CodeInfo]
}

// NewCodeInfoCache reserves a cache named "codeinfo" unless WithName says
// otherwise.
func NewCodeInfoCache(options ...func(*Config)) (*CodeInfoCache, error) {
	options = append([]func(*Config){WithName("codeinfo")}, options...)
	table, err := NewSyncTable[CodeInfo, CodeInfo](codeInfoPolicy{}, options...)
	if err != nil {
		return nil, err
	}
	return &CodeInfoCache{table: table}, nil
}

// Put records info unless its entry address is already cached.
func (c *CodeInfoCache) Put(info CodeInfo) Outcome {
	probe := Probe[CodeInfo]{Hash: HashUintptr(info.Entry), Value: info}
	_, o := c.table.GetOrPut(&probe)
	return o
}

// Lookup returns a copy of the record for entry.
func (c *CodeInfoCache) Lookup(entry uintptr) (info CodeInfo, ok bool) {
	probe := Probe[CodeInfo]{Hash: HashUintptr(entry), Value: CodeInfo{Entry: entry}}
	c.table.With(func(t *Table[CodeInfo, CodeInfo]) {
		if r := t.Get(&probe); r != Nil {
			info, ok = t.Entry(r).Value, true
		}
	})
	return info, ok
}

// Invalidate drops the record for entry, for code that was unloaded.
func (c *CodeInfoCache) Invalidate(entry uintptr) bool {
	probe := Probe[CodeInfo]{Hash: HashUintptr(entry), Value: CodeInfo{Entry: entry}}
	return c.table.Remove(&probe)
}

// Size returns the number of cached records.
func (c *CodeInfoCache) Size() int {
	return c.table.Size()
}

// Clear drops every record, for example after a code cache flush.
func (c *CodeInfoCache) Clear() {
	c.table.Clear()
}

// Teardown releases the cache's storage. Later calls see an empty cache
// that refuses inserts.
func (c *CodeInfoCache) Teardown() {
	c.table.Teardown()
}

// Stats returns the cache's table statistics.
func (c *CodeInfoCache) Stats() *Stats {
	return c.table.Stats()
}
