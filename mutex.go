package uhash

import (
	"runtime"
	"sync/atomic"
	"time"
	_ "unsafe"

	"go.uber.org/zap"
)

// Mutex state word layout.
//
//	0                                  unlocked
//	mutexLocked                        held by a preemptible Lock
//	mutexLocked|mutexPinned|(p+1)<<2   held by LockNoTransition on P p
const (
	mutexLocked uint32 = 1 << iota
	mutexPinned
	mutexOwnerShift = iota
)

// noTransitionSpins bounds the pinned spin rounds of a waiter before it
// unpins and yields its P.
const noTransitionSpins = 64

// enableSpin controls whether Lock spins before sleeping.
const enableSpin = true

// Mutex is a spin lock that can be held without being interrupted.
//
// LockNoTransition pins the calling goroutine to its P for the whole
// critical section. The holder can't be preempted and the garbage
// collector can't stop the world until Unlock. In exchange the critical
// section must not block, perform syscalls, park, or acquire another
// no-transition lock. A panic raised while pinned is turned into a fatal
// runtime error ("panic holding locks"), so nothing in the critical
// section may panic either.
//
// The zero value is an unlocked mutex that reports misuse through the
// global zap logger.
type Mutex struct {
	state  uint32
	name   string
	logger *zap.Logger
}

// NewMutex returns a mutex labelled name whose misuse is reported
// through logger.
func NewMutex(name string, logger *zap.Logger) *Mutex {
	m := &Mutex{}
	m.init(name, logger)
	return m
}

func (m *Mutex) init(name string, logger *zap.Logger) {
	m.name = name
	m.logger = logger
}

func ownerState(pid int) uint32 {
	return mutexLocked | mutexPinned | uint32(pid+1)<<mutexOwnerShift
}

// LockNoTransition acquires m without ever letting the goroutine be
// descheduled while it is held.
func (m *Mutex) LockNoTransition() {
	pid := runtime_procPin()
	if atomic.CompareAndSwapUint32(&m.state, 0, ownerState(pid)) {
		return
	}
	m.lockNoTransitionSlow(pid)
}

func (m *Mutex) lockNoTransitionSlow(pid int) {
	for {
		owned := ownerState(pid)
		for i := 0; i < noTransitionSpins; i++ {
			cur := atomic.LoadUint32(&m.state)
			if cur == 0 {
				if atomic.CompareAndSwapUint32(&m.state, 0, owned) {
					return
				}
				continue
			}
			if cur == owned {
				// Only this goroutine can be running pinned on this P. The
				// runtime refuses to panic while pinned, so drop both pins
				// and leave the outer hold as a plain Lock for its Unlock.
				atomic.StoreUint32(&m.state, mutexLocked)
				runtime_procUnpin()
				runtime_procUnpin()
				m.fatal("uhash: recursive no-transition lock")
			}
			runtime_doSpin()
		}
		// Not holding anything yet, so it is safe to be descheduled here.
		runtime_procUnpin()
		runtime.Gosched()
		pid = runtime_procPin()
	}
}

// TryLockNoTransition acquires m pinned if it is free.
func (m *Mutex) TryLockNoTransition() bool {
	pid := runtime_procPin()
	if atomic.CompareAndSwapUint32(&m.state, 0, ownerState(pid)) {
		return true
	}
	runtime_procUnpin()
	return false
}

// Lock acquires m without pinning. The holder may be preempted, so Lock
// is meant for slow paths that share a mutex with uninterruptible ones.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, 0, mutexLocked) {
		return
	}
	m.lockSlow()
}

func (m *Mutex) lockSlow() {
	spins := 0
	for !m.TryLock() {
		delay(&spins)
	}
}

// TryLock acquires m without pinning if it is free.
func (m *Mutex) TryLock() bool {
	return atomic.LoadUint32(&m.state) == 0 &&
		atomic.CompareAndSwapUint32(&m.state, 0, mutexLocked)
}

// Unlock releases m and, for a no-transition hold, unpins the goroutine.
func (m *Mutex) Unlock() {
	cur := atomic.LoadUint32(&m.state)
	if cur&mutexLocked == 0 {
		m.fatal("uhash: unlock of unlocked mutex")
	}
	if cur&mutexPinned != 0 {
		// A pinned holder is still running on the P it locked on.
		pid := runtime_procPin()
		runtime_procUnpin()
		if ownerState(pid) != cur {
			m.fatal("uhash: no-transition mutex unlocked by non-owner")
		}
		atomic.StoreUint32(&m.state, 0)
		runtime_procUnpin()
		return
	}
	atomic.StoreUint32(&m.state, 0)
}

func (m *Mutex) fatal(msg string) {
	logger := m.logger
	if logger == nil {
		logger = zap.L()
	}
	fatal(logger, msg, zap.String("mutex", m.name))
}

func delay(spins *int) {
	const yieldSleep = 500 * time.Microsecond
	if //goland:noinspection ALL
	enableSpin && runtime_canSpin(*spins) {
		runtime_doSpin()
		*spins++
	} else {
		// time.Sleep with non-zero duration (Millisecond level) works effectively
		// as backoff under high concurrency.
		time.Sleep(yieldSleep)
		*spins = 0
	}
}

//go:linkname runtime_canSpin sync.runtime_canSpin
//go:nosplit
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
//go:nosplit
func runtime_doSpin()

//go:linkname runtime_procPin sync.runtime_procPin
//go:nosplit
func runtime_procPin() int

//go:linkname runtime_procUnpin sync.runtime_procUnpin
//go:nosplit
func runtime_procUnpin()
