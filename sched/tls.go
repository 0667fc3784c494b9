package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the calling goroutine's id by parsing the header
// line of runtime.Stack's output. Go has no supported API for this; it is
// used here strictly for debug-only thread-naming and the reentrant-lock
// owner check. Nothing in the scheduler's correctness path depends on this
// value.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// tlsEntry is the per-goroutine record keyed by goroutineID: just a debug
// name. The active-thread sleep/wake accounting lives as a method on
// *Scheduler instead, since every call site already has the Scheduler value
// in hand and there's no need to stash it in per-goroutine storage just to
// avoid passing a receiver.
type tlsEntry struct {
	name string
}

var tlsData sync.Map // uint64 goroutine id -> *tlsEntry

func tlsFor(id uint64) *tlsEntry {
	if v, ok := tlsData.Load(id); ok {
		return v.(*tlsEntry)
	}
	e := &tlsEntry{}
	v, _ := tlsData.LoadOrStore(id, e)
	return v.(*tlsEntry)
}

// SetCurrentThreadName sets the calling goroutine's debug name, read back by
// CurrentThreadName. Workers name themselves "Worker-<id>" automatically;
// this is exposed for callers who want their own goroutines named too.
// DebugStatus does not print these names: it labels workers by index.
func SetCurrentThreadName(name string) {
	tlsFor(goroutineID()).name = name
}

// CurrentThreadName returns the calling goroutine's debug name, or "" if
// none was set.
func CurrentThreadName() string {
	return tlsFor(goroutineID()).name
}

func tlsClear(id uint64) {
	tlsData.Delete(id)
}
