package sched

import "sync/atomic"

// Counter is the shared, reference-counted state behind a Sync handle. Its
// refcount (tracked by the pool, not a field here) equals the number of
// tasks that will still signal it, plus one while manual increments made
// through IncrementSync's first-use path are outstanding, plus one while a
// waitFor caller is installing wait_ptr. The total pending count
// a caller sees is that refcount minus the pool's baseline sentinel
// reference.
//
// Lifetime: created lazily by the first producer (a task targeting it, or
// IncrementSync, or the first RunAfter predecessor attachment). Destroyed
// exactly once, by the pool's finalizer, when the refcount reaches the
// last-reference transition.
type Counter struct {
	// taskID is the head of this counter's wait-list: the handle of the
	// most recently attached task, 0-terminated via Task.nextSibling. CAS
	// prepend from RunAfter, drained by the finalizer.
	taskID atomic.Uint32

	// userCount tracks manual IncrementSync/DecrementSync calls,
	// independent of task-originated references.
	userCount atomic.Uint32

	// waitPtr is the one-shot WaitFor installed by at most one WaitFor
	// caller. Installing a second is a fatal contract violation
	// (DuplicateWaiter).
	waitPtr atomic.Pointer[waitFor]
}

func (s *Scheduler) createCounter() Handle {
	h := s.counters.acquireAndRef()
	c := s.counters.get(h)
	c.taskID.Store(uint32(Empty))
	c.userCount.Store(0)
	c.waitPtr.Store(nil)
	return h
}

// IncrementSync adds one to sync's manual, task-independent user count,
// creating its backing Counter on first use if sync is empty or stale. The
// retained reference from that first-use path is intentionally not released
// here — it is symmetrically undone by the matching DecrementSync. On a
// Counter that is already live, the temporary ref is released again, so the
// increment adds no reference of its own.
func (s *Scheduler) IncrementSync(sync *Sync) {
	newCounter := !s.counters.ref(*sync)
	if newCounter {
		*sync = s.createCounter()
	}
	c := s.counters.get(*sync)
	c.userCount.Add(1)
	if !newCounter {
		s.unrefCounter(*sync)
	}
}

// DecrementSync releases one manual hold on sync previously added by
// IncrementSync. If this was the last outstanding manual hold, it releases
// the extra reference IncrementSync's first-use path retained, symmetrically
// undoing it.
func (s *Scheduler) DecrementSync(sync *Sync) {
	if !s.counters.ref(*sync) {
		return
	}
	c := s.counters.get(*sync)
	prev := c.userCount.Add(^uint32(0)) + 1 // fetch-sub semantics: prev value before the decrement
	if prev == 1 {
		s.unrefCounter(*sync)
	}
	s.unrefCounter(*sync)
}
