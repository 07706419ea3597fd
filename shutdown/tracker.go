// Package shutdown coordinates graceful process shutdown: in-flight request
// tracking, ordered cleanup and OS signal handling.
package shutdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTrackerClosed is returned when an operation starts after Close.
var ErrTrackerClosed = errors.New("operation tracker is closed")

// ErrWaitTimeout is returned when in-flight operations outlast Wait.
var ErrWaitTimeout = errors.New("timed out waiting for in-flight operations")

// OperationTracker counts in-flight operations so shutdown can wait for
// them. Once closed it admits nothing new.
//
//	if !tracker.Start() {
//	    return ErrShuttingDown
//	}
//	defer tracker.Done()
type OperationTracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	active atomic.Int64
	closed bool
}

// NewOperationTracker creates an open tracker.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{}
}

// Start admits one operation. A true result must be paired with Done.
func (t *OperationTracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done ends an operation admitted by Start.
func (t *OperationTracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Close stops admitting operations. Admitted ones run to completion.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// IsClosed reports whether Close has been called.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ActiveCount returns the number of in-flight operations.
func (t *OperationTracker) ActiveCount() int64 {
	return t.active.Load()
}

// Wait blocks until every admitted operation is done or timeout elapses.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}
