package sched

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Params configures a Scheduler. The zero value is not directly usable —
// pass it to New, which fills in every unset field with its documented
// default before validating the result.
type Params struct {
	// NumThreads is the number of worker goroutines started. Default 16.
	NumThreads uint32
	// MaxRunningThreads caps how many workers may be simultaneously
	// executing a job, independent of NumThreads. Zero means
	// runtime.NumCPU().
	MaxRunningThreads uint32
	// MaxNumberTasks is the shared capacity of the task pool and the
	// counter pool (and therefore of the ready queue). Default 1024, must
	// be at most 2^20.
	MaxNumberTasks uint32
	// ThreadNumTriesOnIdle is how many empty-queue polls a worker makes
	// before parking. Default 16.
	ThreadNumTriesOnIdle uint32
	// ThreadSleepOnIdleMicroseconds is the pause between idle polls.
	// Default 5.
	ThreadSleepOnIdleMicroseconds uint32
	// SingleThreaded switches to the inline-execution backend: Run and
	// RunAfter execute jobs on the calling goroutine (or during a
	// predecessor's finalizer walk) instead of handing them to workers.
	// WaitFor is a fatal contract violation in this mode.
	SingleThreaded bool
	// Logger receives fatal-contract-violation events and Debug-level
	// worker lifecycle events. It is used as given; the zero value
	// (zerolog.Logger{}) has no writer and logs nothing.
	Logger zerolog.Logger

	// AllocFn and FreeFn, if set, are called to report the byte size of
	// each backing array New allocates (the task pool, the counter pool,
	// the ready queue) and, symmetrically, each one Stop releases. Go has
	// no pluggable allocator for slices, so these do not actually redirect
	// allocation — they are an accounting hook only, for callers that want
	// to track the scheduler's footprint. Either may be nil.
	AllocFn func(size uintptr)
	FreeFn  func(size uintptr)
}

const (
	defaultNumThreads                    = 16
	defaultMaxNumberTasks                = 1024
	defaultThreadNumTriesOnIdle           = 16
	defaultThreadSleepOnIdleMicroseconds = 5
)

func (p Params) withDefaults() (Params, error) {
	if p.NumThreads == 0 {
		p.NumThreads = defaultNumThreads
	}
	if p.MaxRunningThreads == 0 {
		p.MaxRunningThreads = uint32(runtime.NumCPU())
	}
	if p.MaxNumberTasks == 0 {
		p.MaxNumberTasks = defaultMaxNumberTasks
	}
	if p.MaxNumberTasks > maxPoolCapacity {
		return p, ErrCapacityTooLarge
	}
	if p.ThreadNumTriesOnIdle == 0 {
		p.ThreadNumTriesOnIdle = defaultThreadNumTriesOnIdle
	}
	if p.ThreadSleepOnIdleMicroseconds == 0 {
		p.ThreadSleepOnIdleMicroseconds = defaultThreadSleepOnIdleMicroseconds
	}
	if p.SingleThreaded && p.NumThreads != defaultNumThreads {
		// A caller who explicitly sized NumThreads for a single-threaded
		// scheduler almost certainly misread the contract: no workers are
		// ever started in this mode.
		return p, fmt.Errorf("%w: NumThreads has no effect when SingleThreaded is set", ErrInvalidParams)
	}
	return p, nil
}

type workerState struct {
	id   uint32
	wake atomic.Pointer[waitFor]
}

// Scheduler is a fork-join task scheduler: see the package doc comment for
// the overall model. The zero value is not usable; construct one with New.
type Scheduler struct {
	params Params
	logger zerolog.Logger

	tasks    *pool[Task]
	counters *pool[Counter]
	ready    *readyQueue

	activeThreads atomic.Int32
	running       atomic.Bool

	workers []*workerState
	wg      sync.WaitGroup
}

// New validates params, fills in defaults, and — unless params.SingleThreaded
// is set — starts params.NumThreads worker goroutines. This is the package's
// init: no other method is valid on the returned Scheduler's zero value, and
// every Scheduler must be constructed this way.
func New(params Params) (*Scheduler, error) {
	params, err := params.withDefaults()
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		params:   params,
		logger:   params.Logger,
		tasks:    newPool[Task](params.MaxNumberTasks, params.Logger),
		counters: newPool[Counter](params.MaxNumberTasks, params.Logger),
		ready:    newReadyQueue(params.MaxNumberTasks, params.Logger),
	}
	s.running.Store(true)

	if params.AllocFn != nil {
		params.AllocFn(s.tasks.byteSize())
		params.AllocFn(s.counters.byteSize())
		params.AllocFn(s.ready.byteSize())
	}

	if !params.SingleThreaded {
		s.activeThreads.Store(int32(params.NumThreads))
		s.workers = make([]*workerState, params.NumThreads)
		for i := range s.workers {
			w := &workerState{id: uint32(i)}
			s.workers[i] = w
			s.wg.Add(1)
			go s.workerLoop(w)
		}
	}
	return s, nil
}

// Stop signals every worker to exit, wakes any that are currently parked,
// and waits for all of them to return before returning itself. A worker
// already in its polling loop keeps running queued tasks until it finds the
// queue empty for ThreadNumTriesOnIdle polls, then exits. Any task still in
// the ready queue or attached to a wait-list once every worker has exited
// is never run — its Sync never reaches HasFinished. Stop
// is not safe to call concurrently with itself, and the Scheduler may not
// be reused afterward — construct a new one with New.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	// A worker can observe running still true, decide to park, and store its
	// wake pointer just after a single wake sweep has already passed it by —
	// it would then block on wf.wait() forever with nothing left to signal
	// it. Repeating the sweep once per worker (instead of a single pass)
	// closes nearly all of that window.
	for i := 0; i < len(s.workers); i++ {
		s.wakeParkedWorkers()
	}
	s.wg.Wait()

	if s.params.FreeFn != nil {
		s.params.FreeFn(s.tasks.byteSize())
		s.params.FreeFn(s.counters.byteSize())
		s.params.FreeFn(s.ready.byteSize())
	}
}

// wakeParkedWorkers signals every worker currently parked waiting for work,
// without regard for MaxRunningThreads — used only by Stop, where every
// worker must wake up and observe running == false.
func (s *Scheduler) wakeParkedWorkers() {
	for _, w := range s.workers {
		if wf := w.wake.Swap(nil); wf != nil {
			wf.signal()
		}
	}
}

// Run allocates a task wrapping job, runs it as soon as a worker is free
// (or, single-threaded, inline before Run returns), and writes the Sync
// tracking it into *syncOut if syncOut is non-nil. If *syncOut already names
// a live counter, job is folded into that counter's pending group instead of
// starting a new one.
func (s *Scheduler) Run(job Job, syncOut *Sync) {
	h := s.createTask(job, syncOut)
	s.submitReady(h)
}

// RunAfter behaves like Run, except job does not become eligible to run
// until pred's counter reaches zero. If pred is empty or already finished,
// RunAfter behaves exactly like Run. Multiple tasks chained onto the same
// pred release in LIFO order: the most recently attached runs first.
func (s *Scheduler) RunAfter(pred Sync, job Job, syncOut *Sync) {
	h := s.createTask(job, syncOut)
	if pred.IsEmpty() || !s.counters.ref(pred) {
		s.submitReady(h)
		return
	}
	t := s.tasks.get(h)
	c := s.counters.get(pred)
	for {
		cur := c.taskID.Load()
		t.nextSibling.Store(cur)
		if c.taskID.CompareAndSwap(cur, uint32(h)) {
			break
		}
	}
	s.counters.unref(pred, func(c *Counter) { s.drainCounter(pred, c) })
}

// submitReady makes a freshly created, predecessor-free task eligible to
// run: pushed to the ready queue and a worker woken, or, single-threaded,
// executed inline right now.
func (s *Scheduler) submitReady(h Handle) {
	if s.params.SingleThreaded {
		s.executeAndRetire(h)
		return
	}
	s.ready.push(h)
	s.wakeUpOneThread()
}

// executeAndRetire runs h's job and then fully retires h: unrefs the task
// (its final unref, since h carries only its baseline creation refcount at
// this point) and, if it targets a counter, unrefs that counter too. This
// is the one piece of logic shared by a worker popping a task, the
// single-threaded backend executing inline, and a finalizer draining its
// wait-list in single-threaded mode.
func (s *Scheduler) executeAndRetire(h Handle) {
	t := s.tasks.get(h)
	job := t.job
	counterID := t.counterID
	job()
	s.tasks.unref(h, nil)
	if !counterID.IsEmpty() {
		s.unrefCounter(counterID)
	}
}

// unrefCounter holds hnd with a temporary ref, then releases two references.
// At most one of those two
// unrefs will observe the last-reference transition (whichever happens to
// see refcount 2 right before its decrement), and none does while other
// references remain; finalize only runs on that one. This is how ordinary task retirement (a single unref from the
// worker) and IncrementSync/DecrementSync's manual holds compose into the
// same refcount without the caller needing to know which path is "last".
func (s *Scheduler) unrefCounter(hnd Handle) {
	if !s.counters.ref(hnd) {
		return
	}
	finalize := func(c *Counter) { s.drainCounter(hnd, c) }
	s.counters.unref(hnd, finalize)
	s.counters.unref(hnd, finalize)
}

// drainCounter runs once, at c's last-reference transition: it walks the
// wait-list LIFO, releasing each waiting task to the ready queue (or running
// it inline, single-threaded), then signals any installed WaitFor.
func (s *Scheduler) drainCounter(hnd Handle, c *Counter) {
	for {
		h := Handle(c.taskID.Load())
		if h.IsEmpty() {
			break
		}
		if !s.tasks.ref(h) {
			break
		}
		t := s.tasks.get(h)
		next := Handle(t.nextSibling.Load())
		c.taskID.Store(uint32(next))

		if s.params.SingleThreaded {
			s.tasks.unref(h, nil) // releases the ref taken three lines up
			s.executeAndRetire(h)
		} else {
			s.ready.push(h)
			s.tasks.unref(h, nil)
			s.wakeUpOneThread()
		}
	}
	if wf := c.waitPtr.Load(); wf != nil {
		wf.signal()
	}
}

// WaitFor blocks the calling goroutine until sync's pending count reaches
// zero. If sync is already empty, stale, or finished, WaitFor returns
// immediately. At most one goroutine may be waiting on a given sync at a
// time; installing a second is a fatal contract violation, as is calling
// WaitFor at all on a single-threaded Scheduler (there is no other
// goroutine left to signal it).
func (s *Scheduler) WaitFor(sync Sync) {
	if s.params.SingleThreaded {
		s.fatal(newFatalError("wait_for", sync, 0, "wait_for is unsupported on a single-threaded scheduler"))
	}
	if !s.counters.ref(sync) {
		return
	}
	c := s.counters.get(sync)
	wf := newWaitFor()
	if !c.waitPtr.CompareAndSwap(nil, wf) {
		s.unrefCounter(sync)
		s.fatal(newFatalError("wait_for", sync, 0, "a second WaitFor caller raced onto the same sync"))
	}
	s.unrefCounter(sync)

	s.CurrentThreadSleeps()
	wf.wait()
	s.CurrentThreadWakesUp()
}

// PendingCount returns the raw refcount of sync's underlying counter, or 0
// if sync is empty or stale. This is not "number of tasks left" in isolation
// — the refcount also carries the pool's own bookkeeping references — but
// it is monotonically decreasing as work completes and reaches exactly 0
// once sync is fully finished, which is what HasFinished checks.
func (s *Scheduler) PendingCount(sync Sync) uint32 {
	return s.counters.refCount(sync)
}

// HasFinished reports whether sync's pending count is zero.
func (s *Scheduler) HasFinished(sync Sync) bool {
	return s.PendingCount(sync) == 0
}

// CurrentThreadSleeps declares the calling goroutine as about to block on
// something outside the scheduler's control (e.g. a caller-owned mutex): it
// decrements the active-thread count and wakes a parked worker to cover the
// slot. Pair with a later CurrentThreadWakesUp. Using this is optional —
// correctness never depends on it, only how promptly the scheduler notices
// a thread has gone idle for reasons of its own.
func (s *Scheduler) CurrentThreadSleeps() {
	s.activeThreads.Add(-1)
	s.wakeUpOneThread()
}

// CurrentThreadWakesUp undoes a prior CurrentThreadSleeps.
func (s *Scheduler) CurrentThreadWakesUp() {
	s.activeThreads.Add(1)
}

// DebugStatus returns a human-readable dump of worker state, the ready
// queue, and pool occupancy. Format is not part of any compatibility
// contract; it exists for operators staring at a stuck scheduler.
func (s *Scheduler) DebugStatus() string {
	var b strings.Builder
	fmt.Fprintf(&b, "px.Scheduler: running=%v active_threads=%d/%d single_threaded=%v\n",
		s.running.Load(), s.activeThreads.Load(), s.params.MaxRunningThreads, s.params.SingleThreaded)
	fmt.Fprintf(&b, "workers (%d):\n", len(s.workers))
	for _, w := range s.workers {
		state := "running"
		if w.wake.Load() != nil {
			state = "parked"
		}
		fmt.Fprintf(&b, "  Worker-%d: %s\n", w.id, state)
	}
	ready := s.ready.snapshot()
	fmt.Fprintf(&b, "ready queue (%d/%d):\n", len(ready), s.ready.size())
	for _, h := range ready {
		fmt.Fprintf(&b, "  %#08x\n", uint32(h))
	}
	fmt.Fprintf(&b, "task pool: %d/%d live\n", s.tasks.liveCount(), s.tasks.size())
	fmt.Fprintf(&b, "counter pool: %d/%d live\n", s.counters.liveCount(), s.counters.size())

	out := b.String()
	s.logger.Debug().Msg(out)
	return out
}
