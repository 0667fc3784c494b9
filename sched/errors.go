package sched

import (
	"errors"
	"fmt"
)

// Recoverable configuration errors, returned by New. These are caller
// mistakes detectable before any worker starts, so — unlike the fatal
// contract violations below — they are plain Go errors rather than panics.
var (
	// ErrCapacityTooLarge is returned by New when Params.MaxNumberTasks
	// exceeds the pool's 2^20 addressing limit.
	ErrCapacityTooLarge = errors.New("sched: max number tasks exceeds 2^20")
	// ErrInvalidParams is returned by New for any other out-of-range
	// configuration value.
	ErrInvalidParams = errors.New("sched: invalid params")
)

// FatalError reports a scheduler contract violation: a double unref, a
// saturated refcount, a ready-queue overflow, a duplicate WaitFor
// installation, or similar programmer error with no safe recovery. These
// panic rather than returning an error, and an unrecovered panic ends the
// process — FatalError is the panic value, so that a logging sink (or a
// test that recovers it) can observe the operation, handle, and slot state
// that triggered it.
type FatalError struct {
	Op     string // operation name, e.g. "unref", "run_after"
	Handle Handle
	State  uint32 // raw slot state word at the time of the violation
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sched: fatal: %s: handle=%#x (pos=%d ver=%d) state=%#x: %s",
		e.Op, uint32(e.Handle), e.Handle.pos(), e.Handle.version(), e.State, e.Reason)
}

func newFatalError(op string, h Handle, state uint32, reason string) *FatalError {
	return &FatalError{Op: op, Handle: h, State: state, Reason: reason}
}

// fatal logs the violation (if a logger is configured) and panics with it.
// Scheduler methods call this instead of panicking directly so every fatal
// path is announced the same way regardless of which invariant tripped.
func (s *Scheduler) fatal(err *FatalError) {
	s.logger.Error().
		Str("op", err.Op).
		Uint32("handle", uint32(err.Handle)).
		Uint32("state", err.State).
		Str("reason", err.Reason).
		Msg("sched: fatal contract violation, aborting")
	panic(err)
}
