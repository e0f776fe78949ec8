// Package xsync implements some extra synchronization tools.
package xsync

import "sync"

// Latch implements a "latch" synchronization mechanism.
//
// A Latch is a signal that can be waited for until it is triggered.
// Once triggered it never changes state, it's forever triggered.
type Latch struct {
	muTrigger sync.Mutex
	wait      chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch() *Latch {
	return &Latch{
		wait: make(chan struct{}),
	}
}

// Trigger latch. Triggering an already triggered latch is a no-op.
func (l *Latch) Trigger() {
	l.muTrigger.Lock()
	defer l.muTrigger.Unlock()
	if l.Test() {
		return
	}
	close(l.wait)
}

// Wait waits for the latch to be triggered.
func (l *Latch) Wait() {
	<-l.wait
}

// Test checks whether the latch has been triggered.
func (l *Latch) Test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}

// WaitChan returns the channel that one can use on a `select` to check when
// the latch triggers.
// The returned channel is closed when the latch is triggered.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.wait
}

// Future holds the result (value or error) of a computation that completes asynchronously.
//
// It is resolved exactly once: later calls to Resolve are discarded.
type Future[T any] struct {
	value T
	err   error
	latch *Latch
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{latch: NewLatch()}
}

// Resolve sets the result of the future and wakes up all waiters.
func (f *Future[T]) Resolve(value T, err error) {
	f.latch.muTrigger.Lock()
	defer f.latch.muTrigger.Unlock()
	if f.latch.Test() {
		// Already resolved, discard value.
		return
	}
	f.value, f.err = value, err
	close(f.latch.wait)
}

// Wait blocks until the future is resolved and returns its result.
func (f *Future[T]) Wait() (T, error) {
	f.latch.Wait()
	return f.value, f.err
}

// Done returns whether the future has been resolved.
func (f *Future[T]) Done() bool {
	return f.latch.Test()
}

// WaitChan returns a channel closed when the future is resolved.
func (f *Future[T]) WaitChan() <-chan struct{} {
	return f.latch.WaitChan()
}

// Semaphore limits the number of simultaneous acquisitions of a resource.
//
// It uses a sync.Cond, so it will be slower than a pure channel version of a semaphore.
// This shouldn't matter for more coarse resource control, like device streams.
type Semaphore struct {
	cond              sync.Cond
	capacity, current int
}

// NewSemaphore returns a Semaphore that allows at most capacity simultaneous acquisitions.
// If capacity <= 0, there is no limit on acquisitions.
func NewSemaphore(capacity int) *Semaphore {
	return &Semaphore{
		cond:     sync.Cond{L: &sync.Mutex{}},
		capacity: capacity,
	}
}

// Acquire resource, blocking while the semaphore is at capacity.
// It must be matched by exactly one call to Semaphore.Release.
func (s *Semaphore) Acquire() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for s.capacity > 0 && s.current >= s.capacity {
		s.cond.Wait()
	}
	s.current++
}

// TryAcquire acquires the resource only if it is immediately available.
func (s *Semaphore) TryAcquire() bool {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.capacity > 0 && s.current >= s.capacity {
		return false
	}
	s.current++
	return true
}

// Release resource previously allocated with Semaphore.Acquire.
func (s *Semaphore) Release() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.current--
	s.cond.Signal()
}

// InUse returns the number of current acquisitions.
func (s *Semaphore) InUse() int {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.current
}
