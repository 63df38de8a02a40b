package task

import (
	"context"
	"sync/atomic"
)

// State is the observable state of a Future.
type State int32

const (
	Pending State = iota
	Ready
	Abandoned
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Future is a single-producer result cell for one task execution.
//
// A nil *Future is the invalid handle returned for task modes that do not
// publish a result; all methods are safe on it.
type Future[R any] struct {
	done  chan struct{}
	state atomic.Int32

	// written once before done is closed
	val R
	err error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// resolve and abandon are called at most once in total, by Task.
func (f *Future[R]) resolve(v R, err error) {
	f.val = v
	f.err = err
	f.state.Store(int32(Ready))
	close(f.done)
}

func (f *Future[R]) abandon() {
	f.err = ErrAbandoned
	f.state.Store(int32(Abandoned))
	close(f.done)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Valid reports whether f is a real result handle.
func (f *Future[R]) Valid() bool { return f != nil }

// Done is closed once the future leaves Pending.
// The invalid handle returns an already-closed channel.
func (f *Future[R]) Done() <-chan struct{} {
	if f == nil {
		return closedCh
	}
	return f.done
}

func (f *Future[R]) State() State {
	if f == nil {
		return Abandoned
	}
	return State(f.state.Load())
}

// Wait blocks until the result is available, the future is abandoned, or
// ctx is done. The task's own failure is returned as the error.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	var zero R
	if f == nil {
		return zero, ErrNoResult
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Get is Wait without a deadline.
func (f *Future[R]) Get() (R, error) { return f.Wait(context.Background()) }

// Poll returns the result without blocking. ok is false while Pending.
func (f *Future[R]) Poll() (v R, ok bool, err error) {
	if f == nil {
		return v, true, ErrNoResult
	}
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return v, false, nil
	}
}
