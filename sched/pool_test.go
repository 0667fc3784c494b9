package sched

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestPoolAcquireAndRefYieldsNonzeroVersion(t *testing.T) {
	p := newPool[int](8, zerolog.Nop())
	h := p.acquireAndRef()
	if h.version() == 0 {
		t.Error("acquireAndRef must never hand out version 0")
	}
	if p.refCount(h) != 2 {
		t.Errorf("refCount() = %d, want 2 (owner + sentinel)", p.refCount(h))
	}
}

// TestPoolUnrefFreesOnLastRef exercises the same ref-then-two-unrefs shape
// unrefCounter uses: the first unref only undoes the extra temporary ref,
// the second is the one that actually drops the slot to its last reference
// and runs the finalizer.
func TestPoolUnrefFreesOnLastRef(t *testing.T) {
	p := newPool[int](8, zerolog.Nop())
	h := p.acquireAndRef()
	if !p.ref(h) {
		t.Fatal("ref() on a freshly acquired handle must succeed")
	}

	finalized := false
	p.unref(h, func(v *int) { finalized = true })
	if finalized {
		t.Error("finalizer ran on the non-last-reference unref")
	}
	p.unref(h, func(v *int) { finalized = true })
	if !finalized {
		t.Error("finalizer did not run on the last-reference unref")
	}
	if p.refCount(h) != 0 {
		t.Errorf("refCount() after full unref = %d, want 0", p.refCount(h))
	}
	if p.ref(h) {
		t.Error("ref() on a freed handle must return false")
	}
}

// TestPoolSingleUnrefRetiresFreshHandle documents that a handle straight
// from acquireAndRef (refcount 2: owner + sentinel) is fully retired by a
// single unref — this is why Task retirement is one unref call, not two.
func TestPoolSingleUnrefRetiresFreshHandle(t *testing.T) {
	p := newPool[int](8, zerolog.Nop())
	h := p.acquireAndRef()
	finalized := false
	p.unref(h, func(v *int) { finalized = true })
	if !finalized {
		t.Error("a single unref from the baseline refcount must run the finalizer")
	}
	if p.refCount(h) != 0 {
		t.Errorf("refCount() = %d, want 0", p.refCount(h))
	}
}

func TestPoolRefRejectsStaleVersion(t *testing.T) {
	p := newPool[int](4, zerolog.Nop())
	h := p.acquireAndRef()
	p.unref(h, nil)
	if p.ref(h) {
		t.Error("ref() on a stale (freed) handle must return false, not panic")
	}
}

func TestPoolVersionWraps(t *testing.T) {
	p := newPool[int](1, zerolog.Nop())
	var last Handle
	for i := 0; i < int(maxVersion)+3; i++ {
		h := p.acquireAndRef()
		if h.version() == 0 {
			t.Fatalf("iteration %d: acquireAndRef produced version 0", i)
		}
		if i > 0 && h == last {
			t.Fatalf("iteration %d: reused the exact same handle as the previous allocation", i)
		}
		last = h
		p.unref(h, nil)
	}
}

func TestPoolUnrefMismatchIsFatal(t *testing.T) {
	p := newPool[int](4, zerolog.Nop())
	h := p.acquireAndRef()
	p.unref(h, nil) // retires it fully

	defer func() {
		if r := recover(); r == nil {
			t.Error("unref on an already-freed handle should panic")
		} else if _, ok := r.(*FatalError); !ok {
			t.Errorf("panic value is %T, want *FatalError", r)
		}
	}()
	p.unref(h, nil)
}

func TestPoolInfo(t *testing.T) {
	p := newPool[int](4, zerolog.Nop())
	h := p.acquireAndRef()

	gotHandle, refCount, version := p.info(h.pos())
	if gotHandle != h {
		t.Errorf("info(%d).handle = %#x, want %#x", h.pos(), uint32(gotHandle), uint32(h))
	}
	if refCount != 2 {
		t.Errorf("info(%d).refCount = %d, want 2", h.pos(), refCount)
	}
	if version != h.version() {
		t.Errorf("info(%d).version = %d, want %d", h.pos(), version, h.version())
	}

	p.unref(h, nil)
	_, refCount, _ = p.info(h.pos())
	if refCount != 0 {
		t.Errorf("info(%d).refCount after unref = %d, want 0", h.pos(), refCount)
	}
}

func TestPoolCapacityLimits(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("newPool with capacity 0 should panic")
		}
	}()
	newPool[int](0, zerolog.Nop())
}
