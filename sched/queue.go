package sched

import (
	"unsafe"

	"github.com/rs/zerolog"
)

// readyQueue is the bounded ring of task handles that are unblocked and
// awaiting a worker. Capacity equals Params.MaxNumberTasks, same as the
// task pool, so a task can never be submitted faster than it can be queued.
// It is guarded by a single spinlock; this is deliberately the only
// lock-based (as opposed to lock-free) structure in the scheduler, since
// every operation touching it is O(1) and brief.
type readyQueue struct {
	mu     spinlock
	slots  []Handle
	head   uint32
	tail   uint32
	inUse  uint32
	logger zerolog.Logger
}

func newReadyQueue(capacity uint32, logger zerolog.Logger) *readyQueue {
	return &readyQueue{slots: make([]Handle, capacity), logger: logger}
}

// push enqueues h. Pushing onto a full queue is a fatal contract violation
// (QueueOverflow): capacity is sized to MaxNumberTasks, so an overflow means
// more tasks are in flight than the pool could have allocated, which can
// only happen from a bug in the scheduler itself.
func (q *readyQueue) push(h Handle) {
	q.mu.lock()
	defer q.mu.unlock()
	if q.inUse >= uint32(len(q.slots)) {
		err := newFatalError("push", h, q.inUse, "ready queue overflow")
		q.logger.Error().Str("op", err.Op).Uint32("handle", uint32(h)).Msg("sched: fatal contract violation, aborting")
		panic(err)
	}
	q.slots[q.tail] = h
	q.tail = (q.tail + 1) % uint32(len(q.slots))
	q.inUse++
}

// pop removes and returns the oldest queued handle. It returns (Empty,
// false) without blocking if the queue is empty.
func (q *readyQueue) pop() (Handle, bool) {
	q.mu.lock()
	defer q.mu.unlock()
	if q.inUse == 0 {
		return Empty, false
	}
	h := q.slots[q.head]
	q.head = (q.head + 1) % uint32(len(q.slots))
	q.inUse--
	return h, true
}

func (q *readyQueue) size() uint32 {
	q.mu.lock()
	defer q.mu.unlock()
	return q.inUse
}

// snapshot returns a copy of the currently queued handles, oldest first.
// Used only by DebugStatus.
func (q *readyQueue) snapshot() []Handle {
	q.mu.lock()
	defer q.mu.unlock()
	out := make([]Handle, 0, q.inUse)
	for i := uint32(0); i < q.inUse; i++ {
		out = append(out, q.slots[(q.head+i)%uint32(len(q.slots))])
	}
	return out
}

// byteSize reports the backing array's footprint, for Params.AllocFn/FreeFn
// accounting.
func (q *readyQueue) byteSize() uintptr {
	return uintptr(len(q.slots)) * unsafe.Sizeof(Handle(0))
}
