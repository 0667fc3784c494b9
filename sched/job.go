package sched

// Job is the unit of work the scheduler runs. The default Job is a plain
// closure; callers needing a lower-overhead representation (e.g. a function
// pointer plus an argument, to avoid a closure allocation per submission)
// can satisfy the same contract by wrapping their own type in a func()
// before calling Run/RunAfter — Job is intentionally just that shape, not a
// concrete struct, so nothing about the scheduler depends on how a Job
// captures its state.
type Job func()
