package uhash

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// SyncTable serializes every operation of a Table behind an owned Mutex
// acquired in no-transition mode.
//
// Policies run with the lock held and the goroutine pinned; see Policy for
// what they may do. Memory is only ever returned to the allocator after
// the lock is released. Probe hashes are validated before locking, since
// the runtime cannot unwind a panic raised while the goroutine is pinned.
type SyncTable[P, T any] struct {
	mu     paddedMutex
	table  *Table[P, T]
	warned atomic.Bool
}

// NewSyncTable builds a Table for policy and wraps it.
func NewSyncTable[P, T any](policy Policy[P, T], options ...func(*Config)) (*SyncTable[P, T], error) {
	t, err := NewTable(policy, options...)
	if err != nil {
		return nil, err
	}
	return Synchronize(t), nil
}

// Synchronize wraps t. The caller must stop using t directly.
func Synchronize[P, T any](t *Table[P, T]) *SyncTable[P, T] {
	s := &SyncTable[P, T]{table: t}
	s.mu.init(t.name, t.logger)
	return s
}

// With runs fn with the lock held. fn may use any Table method except
// Teardown, and must not retain refs or entries past its return. fn must
// not panic, and must not pass a zero probe hash: either one aborts the
// process with "panic holding locks".
func (s *SyncTable[P, T]) With(fn func(t *Table[P, T])) {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	fn(s.table)
}

// Get is Table.Get under the lock.
func (s *SyncTable[P, T]) Get(probe *Probe[P]) Ref {
	s.table.checkHash(probe.Hash)
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Get(probe)
}

// GetOrPut is Table.GetOrPut under the lock. The returned ref is only
// stable while no other goroutine can remove or clear; use With to read
// the entry atomically with the lookup.
func (s *SyncTable[P, T]) GetOrPut(probe *Probe[P]) (Ref, Outcome) {
	r, o := s.getOrPut(probe)
	if o == Failed {
		s.exhausted()
	}
	return r, o
}

func (s *SyncTable[P, T]) getOrPut(probe *Probe[P]) (Ref, Outcome) {
	s.table.checkHash(probe.Hash)
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.GetOrPut(probe)
}

// PutIfAbsent reports whether probe was inserted.
func (s *SyncTable[P, T]) PutIfAbsent(probe *Probe[P]) bool {
	_, o := s.GetOrPut(probe)
	return o == Inserted
}

// Remove unlinks the entry matching probe and reports whether one existed.
func (s *SyncTable[P, T]) Remove(probe *Probe[P]) bool {
	s.table.checkHash(probe.Hash)
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Remove(probe)
}

// Clear drops every entry under the lock.
func (s *SyncTable[P, T]) Clear() {
	s.clear()
	s.table.logger.Debug("hashtable cleared", zap.String("table", s.table.name))
}

func (s *SyncTable[P, T]) clear() {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	s.table.Clear()
}

// Teardown detaches the table's storage under the lock and returns it to
// the allocator once the lock is released.
func (s *SyncTable[P, T]) Teardown() {
	s.detach().release()
}

func (s *SyncTable[P, T]) detach() reservation {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.detach()
}

// Size returns the number of live entries.
func (s *SyncTable[P, T]) Size() int {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Size()
}

// Range calls yield for every entry with the lock held. yield must not
// block or call back into s.
func (s *SyncTable[P, T]) Range(yield func(r Ref, e *EntryOf[T]) bool) {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	s.table.Range(yield)
}

// Stats returns a snapshot taken under the lock.
func (s *SyncTable[P, T]) Stats() *Stats {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Stats()
}

// Buckets returns the raw bucket heads. The slice header is read under the
// lock because Teardown replaces it; the heads themselves may be read
// without locking until Teardown. See Table.Buckets.
func (s *SyncTable[P, T]) Buckets() []Ref {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Buckets()
}

// Entry resolves r under the lock. The result stays valid until the next
// Remove of that entry, Clear or Teardown. Inside With, use the Table's
// Entry instead; calling this one there is a recursive lock.
func (s *SyncTable[P, T]) Entry(r Ref) *EntryOf[T] {
	s.mu.LockNoTransition()
	defer s.mu.Unlock()
	return s.table.Entry(r)
}

// exhausted logs the first allocation failure. Called after unlocking.
func (s *SyncTable[P, T]) exhausted() {
	if s.warned.CompareAndSwap(false, true) {
		s.table.logger.Warn("hashtable allocation failed",
			zap.String("table", s.table.name),
			zap.Int("capacity", s.table.capacity))
	}
}
