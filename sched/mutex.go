package sched

import "sync/atomic"

// lockable is the subset of sync.Mutex/sync.RWMutex (and anything else a
// caller might wrap) that Mutex needs: Lock/Unlock plus a non-blocking
// TryLock, which sync.Mutex has carried since Go 1.18.
type lockable interface {
	Lock()
	Unlock()
	TryLock() bool
}

// Mutex wraps an arbitrary L, making it reentrant for the goroutine that
// holds it and hooking the scheduler's active-thread accounting around every
// non-reentrant Lock, which may block (TryLock is not hooked) — so a job
// holding the scheduler's worker slot
// while waiting on its own mutex doesn't starve the concurrency cap.
//
// A nil *Scheduler is valid: Mutex then behaves as a plain reentrant
// wrapper around L with no accounting.
type Mutex[L lockable] struct {
	inner L
	sched *Scheduler
	owner atomic.Uint64
	count uint32 // touched only by the owning goroutine
}

// NewMutex returns a Mutex wrapping inner. sched may be nil.
func NewMutex[L lockable](inner L, sched *Scheduler) *Mutex[L] {
	return &Mutex[L]{inner: inner, sched: sched}
}

func (m *Mutex[L]) Lock() {
	id := goroutineID()
	if m.owner.Load() == id {
		m.count++
		return
	}
	if m.sched != nil {
		m.sched.CurrentThreadSleeps()
	}
	m.inner.Lock()
	if m.sched != nil {
		m.sched.CurrentThreadWakesUp()
	}
	m.owner.Store(id)
	m.count = 1
}

func (m *Mutex[L]) Unlock() {
	id := goroutineID()
	if m.owner.Load() != id {
		panic("sched: Mutex unlocked by goroutine that does not hold it")
	}
	m.count--
	if m.count == 0 {
		m.owner.Store(0)
		m.inner.Unlock()
	}
}

// TryLock attempts to acquire the mutex without blocking. A reentrant
// acquisition by the current holder always succeeds.
func (m *Mutex[L]) TryLock() bool {
	id := goroutineID()
	if m.owner.Load() == id {
		m.count++
		return true
	}
	if !m.inner.TryLock() {
		return false
	}
	m.owner.Store(id)
	m.count = 1
	return true
}

// Spinlock is the same reentrant, accounting-aware wrapper as Mutex, built
// over a bare CAS spinlock instead of an OS-backed sync.Mutex — for callers whose critical sections are short
// enough that spinning beats a park/unpark round trip, same tradeoff as the
// scheduler's own internal [spinlock].
type Spinlock struct {
	lk    spinlock
	sched *Scheduler
	owner atomic.Uint64
	count uint32
}

// NewSpinlock returns a Spinlock. sched may be nil.
func NewSpinlock(sched *Scheduler) *Spinlock {
	return &Spinlock{sched: sched}
}

func (l *Spinlock) Lock() {
	id := goroutineID()
	if l.owner.Load() == id {
		l.count++
		return
	}
	if l.sched != nil {
		l.sched.CurrentThreadSleeps()
	}
	l.lk.lock()
	if l.sched != nil {
		l.sched.CurrentThreadWakesUp()
	}
	l.owner.Store(id)
	l.count = 1
}

func (l *Spinlock) Unlock() {
	id := goroutineID()
	if l.owner.Load() != id {
		panic("sched: Spinlock unlocked by goroutine that does not hold it")
	}
	l.count--
	if l.count == 0 {
		l.owner.Store(0)
		l.lk.unlock()
	}
}

func (l *Spinlock) TryLock() bool {
	id := goroutineID()
	if l.owner.Load() == id {
		l.count++
		return true
	}
	if !l.lk.locked.CompareAndSwap(false, true) {
		return false
	}
	l.owner.Store(id)
	l.count = 1
	return true
}
