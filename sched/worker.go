package sched

import (
	"fmt"
	"time"
)

// workerLoop is the body run by each worker goroutine. It terminates only
// once Stop has cleared s.running and woken it.
func (s *Scheduler) workerLoop(w *workerState) {
	defer s.wg.Done()
	SetCurrentThreadName(fmt.Sprintf("Worker-%d", w.id))
	defer tlsClear(goroutineID())

	s.logger.Debug().Uint32("worker", w.id).Msg("sched: worker starting")
	defer s.logger.Debug().Uint32("worker", w.id).Msg("sched: worker exiting")

	for {
		active := s.activeThreads.Add(-1)
		if !s.running.Load() {
			return
		}

		if s.ready.size() == 0 || active > int32(s.params.MaxRunningThreads) {
			wf := newWaitFor()
			w.wake.Store(wf)
			wf.wait()
			if !s.running.Load() {
				return
			}
		}

		s.activeThreads.Add(1)
		w.wake.Store(nil)

		tries := s.params.ThreadNumTriesOnIdle
		for tries > 0 {
			h, ok := s.ready.pop()
			if !ok {
				time.Sleep(time.Duration(s.params.ThreadSleepOnIdleMicroseconds) * time.Microsecond)
				tries--
				continue
			}
			s.executeAndRetire(h)
			tries = s.params.ThreadNumTriesOnIdle
		}
	}
}

// wakeUpOneThread wakes at most one parked worker, unless the active-thread
// count already meets the concurrency cap. Bracketing the scan with a
// speculative increment/decrement of the active count (rather than just
// checking it once before scanning) prevents two concurrent callers from
// each seeing "under cap" and both waking a worker, overshooting the cap by
// more than the unavoidable one-worker-in-flight slack.
func (s *Scheduler) wakeUpOneThread() {
	for {
		active := s.activeThreads.Load()
		if active >= int32(s.params.MaxRunningThreads) {
			return
		}
		if s.activeThreads.CompareAndSwap(active, active+1) {
			break
		}
	}
	defer s.activeThreads.Add(-1)

	for _, w := range s.workers {
		wf := w.wake.Load()
		if wf == nil {
			continue
		}
		if w.wake.CompareAndSwap(wf, nil) {
			wf.signal()
			return
		}
	}
}
