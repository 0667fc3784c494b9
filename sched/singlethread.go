package sched

// NewSingleThreaded is a convenience for New(Params{SingleThreaded: true}),
// with every other field defaulted. The returned Scheduler starts no worker
// goroutines: Run and RunAfter execute jobs inline on the caller (or,
// transitively, inline during a predecessor's finalizer walk — see
// (*Scheduler).drainCounter and (*Scheduler).executeAndRetire, which are
// exactly the same code path used by a worker goroutine in the
// multi-threaded backend). Externally observable ordering and side effects
// match the multi-threaded backend exactly, except that WaitFor is a fatal
// contract violation here: there is no other goroutine left to signal it.
// By the time Run (or a RunAfter whose predecessor is empty or finished)
// returns, everything reachable through that call has already finished
// running; a RunAfter on a pending predecessor only attaches the job.
func NewSingleThreaded(params Params) (*Scheduler, error) {
	params.SingleThreaded = true
	return New(params)
}
