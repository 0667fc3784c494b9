package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexReentrant(t *testing.T) {
	m := NewMutex(&sync.Mutex{}, nil)
	m.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.False(t, m.TryLock(), "a different goroutine must not acquire a held Mutex")
	}()
	<-done

	m.Lock() // reentrant: same goroutine, must not deadlock
	m.Unlock()
	m.Unlock()

	assert.True(t, m.TryLock(), "mutex should be free after both Unlocks")
	m.Unlock()
}

func TestMutexUnlockByNonOwnerPanics(t *testing.T) {
	m := NewMutex(&sync.Mutex{}, nil)
	m.Lock()

	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		m.Unlock()
	}()
	r := <-done
	require.NotNil(t, r, "unlocking from a goroutine that doesn't hold the mutex must panic")
}

func TestSpinlockReentrantAndMutualExclusion(t *testing.T) {
	l := NewSpinlock(nil)
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			l.Lock() // reentrant
			counter++
			l.Unlock()
			l.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestMutexWakesSpareWorkerWhileBlocked(t *testing.T) {
	s := newTestScheduler(t, Params{NumThreads: 4, MaxRunningThreads: 1})
	userLock := NewMutex(&sync.Mutex{}, s)

	userLock.Lock()
	var blockedJobRan bool
	var done Sync
	s.Run(func() {
		userLock.Lock() // blocks until the test goroutine releases it below
		blockedJobRan = true
		userLock.Unlock()
	}, &done)

	spareRan := make(chan struct{})
	s.Run(func() {
		time.Sleep(5 * time.Millisecond)
		close(spareRan)
	}, &done)

	// The lock is released by the goroutine that holds it, only once the
	// second job has run.
	<-spareRan
	userLock.Unlock()
	s.WaitFor(done)
	assert.True(t, blockedJobRan)
}
