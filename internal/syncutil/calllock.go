// Package syncutil holds locking primitives that respect context cancellation.
package syncutil

import "context"

// CallLock serializes calls the way a single-threaded state machine would.
// It is a mutex implemented via a buffered channel, so waiters can select on
// their context and give up.
type CallLock struct {
	ch chan struct{}
}

// NewCallLock creates an unlocked CallLock.
func NewCallLock() *CallLock {
	l := &CallLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// Lock acquires the lock or returns ctx.Err(). On success the caller MUST
// call the returned unlock function exactly once.
func (l *CallLock) Lock(ctx context.Context) (func(), error) {
	// Prefer a cancelled context over a free lock so a dead request never runs.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-l.ch:
		return func() { l.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the lock only if it is free.
func (l *CallLock) TryLock() (func(), bool) {
	select {
	case <-l.ch:
		return func() { l.ch <- struct{}{} }, true
	default:
		return nil, false
	}
}
