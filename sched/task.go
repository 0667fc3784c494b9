package sched

import "sync/atomic"

// Task is a scheduler-owned record wrapping a Job plus the Counter it
// signals on completion and its link in that Counter's wait-list.
//
// Lifetime: created by Run/RunAfter, destroyed once its owning Counter's
// finalizer has pushed it to the ready queue (or, single-threaded, run it
// inline) and the scheduler has unreffed it.
type Task struct {
	job Job

	// counterID is the Counter this task decrements on completion, or
	// Empty. It never changes after createTask sets it, so a plain field
	// (no atomic) is enough.
	counterID Handle

	// nextSibling links to the next task already attached to the same
	// predecessor Counter's wait-list, 0-terminated. It is stored by
	// RunAfter's CAS-prepend loop on the Counter's head and read during the
	// predecessor's finalizer walk, so it is atomic.
	nextSibling atomic.Uint32
}

func (s *Scheduler) createTask(job Job, syncOut *Sync) Handle {
	h := s.tasks.acquireAndRef()
	t := s.tasks.get(h)
	t.job = job
	t.counterID = Empty
	t.nextSibling.Store(0)

	if syncOut != nil {
		// The first caller to see an empty/stale handle seeds a fresh
		// Counter and publishes it; later callers sharing the same
		// *syncOut attach to that same Counter. Readers never observe a
		// half-initialized handle: *syncOut is only written once the
		// Counter backing it is fully live.
		if !s.counters.ref(*syncOut) {
			*syncOut = s.createCounter()
		}
		t.counterID = *syncOut
	}
	return h
}
