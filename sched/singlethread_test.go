package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSingleThreadedRunIsSynchronous verifies the single-threaded backend's
// defining property: by the time Run returns, the job (and anything it
// transitively released) has already executed — there are no workers left
// to do it later.
func TestSingleThreadedRunIsSynchronous(t *testing.T) {
	s, err := NewSingleThreaded(Params{})
	require.NoError(t, err)
	defer s.Stop()

	ran := false
	var done Sync
	s.Run(func() { ran = true }, &done)

	assert.True(t, ran, "job must have already run by the time Run returns")
	assert.True(t, s.HasFinished(done))
}

// TestSingleThreadedChainRunsInline verifies that a RunAfter chain runs
// inline, in submission order, without ever touching a ready queue: each
// predecessor has already finished by the time the next RunAfter is called,
// so every job runs inside its own RunAfter call.
func TestSingleThreadedChainRunsInline(t *testing.T) {
	s, err := NewSingleThreaded(Params{})
	require.NoError(t, err)
	defer s.Stop()

	var order []int
	var prev Sync
	for i := 0; i < 5; i++ {
		i := i
		var next Sync
		s.RunAfter(prev, func() { order = append(order, i) }, &next)
		prev = next
	}

	require.True(t, s.HasFinished(prev))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

// TestRunAfterReleasesInLIFOOrder attaches several tasks to the same
// predecessor and verifies they fire in reverse-attachment order: the most
// recently attached task runs first once the predecessor releases. The
// single-threaded backend makes this deterministic to observe, since the
// whole wait-list drains inline during DecrementSync with no worker
// scheduling to reorder it.
func TestRunAfterReleasesInLIFOOrder(t *testing.T) {
	s, err := NewSingleThreaded(Params{})
	require.NoError(t, err)
	defer s.Stop()

	var gate Sync
	s.IncrementSync(&gate)

	var order []int
	var after Sync
	for i := 0; i < 5; i++ {
		i := i
		s.RunAfter(gate, func() { order = append(order, i) }, &after)
	}
	require.Empty(t, order, "no job should have run while the gate is held")

	s.DecrementSync(&gate)
	require.True(t, s.HasFinished(after))
	assert.Equal(t, []int{4, 3, 2, 1, 0}, order, "tasks chained onto the same predecessor release LIFO")
}

func TestSingleThreadedManualGate(t *testing.T) {
	s, err := NewSingleThreaded(Params{})
	require.NoError(t, err)
	defer s.Stop()

	ran := false
	var gate Sync
	s.IncrementSync(&gate)

	var after Sync
	s.RunAfter(gate, func() { ran = true }, &after)
	assert.False(t, ran, "job must not run while the gate is held")

	s.DecrementSync(&gate)
	assert.True(t, ran, "job should run synchronously once the gate is released")
	assert.True(t, s.HasFinished(after))
}
