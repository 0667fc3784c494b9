// Package sched implements a fork-join task scheduler aimed at games,
// editors, and other soft-real-time systems that submit many small jobs
// and need cheap, precise dependency tracking between them.
//
// Callers submit jobs with [Scheduler.Run] or chain them after a prior
// group of jobs finishes with [Scheduler.RunAfter]. Both write a [Sync]
// handle into a caller-supplied pointer; that handle can be polled ([Scheduler.HasFinished], [Scheduler.PendingCount])
// or blocked on ([Scheduler.WaitFor]). [Scheduler.IncrementSync] and
// [Scheduler.DecrementSync] let external events fan in to a Sync manually,
// without an associated job.
//
// Internally, a versioned, reference-counted slot pool backs both tasks and
// the counters they signal, so allocation never touches the Go allocator on
// the hot path and stale handles are detected rather than silently reused.
//
// # Ordering
//
// Tasks chained onto the same predecessor via RunAfter release in LIFO
// order: the most recently attached task runs first once the predecessor
// completes. Independent chains have no ordering relative to one another.
// See [Scheduler.RunAfter] for the rationale.
//
// # Single-threaded backend
//
// A [Scheduler] constructed with Params.SingleThreaded executes jobs
// inline, during Run/RunAfter submission or during the predecessor's
// finalizer walk, instead of handing them to worker goroutines. WaitFor is
// a contract violation in this mode: there is no other goroutine left to
// signal it.
package sched
