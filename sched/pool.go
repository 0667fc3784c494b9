package sched

import (
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
)

// state word layout mirrors Handle's: version in the high 12 bits, a
// refcount in the low 20. A slot is free when refcount == 0, finalizing
// (mid-unref, about to be freed) when refcount == 1, and live from 2
// upward — one ref for the pool's "owner" allocation, one sentinel ref
// that keeps the slot from finalizing out from under a concurrent promote.
const (
	stateRefMask = handlePosMask
	stateVerMask = handleVerMask
	maxRefCount  = stateRefMask - 1 // one below the mask, so +1 never overflows into version
)

func stateVersion(state uint32) uint32 { return state >> handlePosBits }
func stateRefCount(state uint32) uint32 { return state & stateRefMask }

// poolSlot holds one element plus its atomic state word. The trailing pad
// is a best-effort guard against false sharing between adjacent slots under
// concurrent CAS traffic; it is sized for the common case of small elements
// (Task, Counter) rather than computed exactly per T.
type poolSlot[T any] struct {
	state   atomic.Uint32
	element T
	_       [56]byte
}

// pool is a lock-free, fixed-capacity, versioned, reference-counted slot
// table. It is used to allocate Task and Counter records, so that stale
// handles fail cleanly and so a slot's last observer can run a finalizer
// exactly once.
type pool[T any] struct {
	slots    []poolSlot[T]
	capacity uint32
	next     atomic.Uint32
	logger   zerolog.Logger
}

func newPool[T any](capacity uint32, logger zerolog.Logger) *pool[T] {
	if capacity == 0 || capacity > maxPoolCapacity {
		panic("sched: pool capacity must be in (0, 2^20]")
	}
	return &pool[T]{
		slots:    make([]poolSlot[T], capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// fatal logs then panics with a *FatalError describing the contract
// violation. Every fatal path in the pool routes through here so the
// diagnostic is announced consistently regardless of which invariant
// tripped, mirroring (*Scheduler).fatal.
func (p *pool[T]) fatal(op string, h Handle, state uint32, reason string) {
	err := newFatalError(op, h, state, reason)
	p.logger.Error().
		Str("op", err.Op).
		Uint32("handle", uint32(err.Handle)).
		Uint32("state", err.State).
		Str("reason", err.Reason).
		Msg("sched: fatal contract violation, aborting")
	panic(err)
}

// acquireAndRef finds a free slot, bumps its version, and sets its refcount
// to 2 (one owner ref, one sentinel ref). The returned handle's high bits
// are always nonzero: version 0 is skipped on wraparound so it never
// appears on a live slot.
func (p *pool[T]) acquireAndRef() Handle {
	maxTries := uint64(p.capacity) * uint64(p.capacity)
	for tries := uint64(0); ; tries++ {
		pos := p.next.Add(1) - 1
		pos %= p.capacity
		slot := &p.slots[pos]
		cur := slot.state.Load()
		if stateRefCount(cur) != 0 {
			if tries >= maxTries {
				p.fatal("acquireAndRef", Empty, cur, "pool exhausted: no free slot after capacity^2 attempts")
			}
			continue
		}
		version := (stateVersion(cur) + 1) & maxVersion
		if version == 0 {
			version = 1
		}
		next := (version << handlePosBits) | 2
		if slot.state.CompareAndSwap(cur, next) {
			return newHandle(version, pos)
		}
		if tries >= maxTries {
			p.fatal("acquireAndRef", Empty, cur, "pool exhausted: no free slot after capacity^2 attempts")
		}
	}
}

// ref increments the refcount of a live handle. It returns false, without
// panicking, if the handle is empty, stale (version mismatch), or already
// finalizing/free — that is a recoverable condition callers are expected to
// check for, not a contract violation.
func (p *pool[T]) ref(h Handle) bool {
	if h.IsEmpty() {
		return false
	}
	slot := &p.slots[h.pos()]
	want := h.version() << handlePosBits
	for {
		cur := slot.state.Load()
		if cur&stateVerMask != want {
			return false
		}
		refs := stateRefCount(cur)
		if refs < 2 {
			return false
		}
		if refs > maxRefCount {
			p.fatal("ref", h, cur, "refcount saturation")
		}
		next := cur + 1
		if slot.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// unref releases a reference previously obtained from acquireAndRef or ref.
// On the transition to the last reference it runs fn (if non-nil) with a
// pointer to the element, then frees the slot. Calling unref with a stale
// version, or with the refcount already at or below 1, is a fatal contract
// violation — it means a double-unref or a use-after-free.
func (p *pool[T]) unref(h Handle, fn func(*T)) {
	slot := &p.slots[h.pos()]
	want := h.version() << handlePosBits
	for {
		cur := slot.state.Load()
		if cur&stateVerMask != want {
			p.fatal("unref", h, cur, "version mismatch")
		}
		refs := stateRefCount(cur)
		if refs <= 1 {
			p.fatal("unref", h, cur, "refcount <= 1: double unref or use-after-free")
		}
		next := cur - 1
		if !slot.state.CompareAndSwap(cur, next) {
			continue
		}
		if stateRefCount(next) == 1 {
			if fn != nil {
				fn(&slot.element)
			}
			// The element itself is not zeroed here: acquireAndRef hands
			// the slot back out before its fields are meaningful, and
			// every caller (createTask, createCounter) overwrites every
			// field immediately on acquire, so a stale element is never
			// observable through a freshly issued handle. The version is
			// preserved (only the refcount bits clear) so a dangling handle
			// to this generation keeps failing ref() even after the slot is
			// reused.
			slot.state.Store(next &^ stateRefMask)
		}
		return
	}
}

// refCount returns the live refcount for h, or 0 if its version is stale.
func (p *pool[T]) refCount(h Handle) uint32 {
	if h.IsEmpty() {
		return 0
	}
	slot := &p.slots[h.pos()]
	cur := slot.state.Load()
	if cur&stateVerMask != h.version()<<handlePosBits {
		return 0
	}
	return stateRefCount(cur)
}

// get returns a pointer to the element backing h, without checking the
// version — callers must already hold a reference obtained via
// acquireAndRef or ref.
func (p *pool[T]) get(h Handle) *T {
	return &p.slots[h.pos()].element
}

// info is debug-only introspection: given a raw slot position, it returns
// the handle that position would currently produce, plus its refcount and
// version.
func (p *pool[T]) info(pos uint32) (h Handle, refCount, version uint32) {
	cur := p.slots[pos].state.Load()
	version = stateVersion(cur)
	refCount = stateRefCount(cur)
	return newHandle(version, pos), refCount, version
}

func (p *pool[T]) size() uint32 { return p.capacity }

// byteSize reports the backing array's footprint, for Params.AllocFn/FreeFn
// accounting. It is a size report, not an allocation call: the slice
// itself is always allocated by the Go runtime at newPool time, regardless
// of whether a caller wired AllocFn.
func (p *pool[T]) byteSize() uintptr {
	var slot poolSlot[T]
	return uintptr(len(p.slots)) * unsafe.Sizeof(slot)
}

// liveCount is debug-only: the number of slots currently live (refcount >=
// 1, including the transient finalizing state). Used by DebugStatus.
func (p *pool[T]) liveCount() uint32 {
	var n uint32
	for i := range p.slots {
		if stateRefCount(p.slots[i].state.Load()) >= 1 {
			n++
		}
	}
	return n
}
