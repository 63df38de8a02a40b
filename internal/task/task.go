package task

import (
	"runtime/debug"
	"sync/atomic"
)

// Runnable is the type-erased view of a Task used by the scheduler.
type Runnable interface {
	// Execute invokes the wrapped callable once. A returned error or a
	// recovered panic (*PanicError) is the failure of this invocation.
	Execute() error
	// Abandon releases waiters of a result that will never be produced.
	Abandon()
}

// Task is a callable with its arguments bound, producing R.
type Task[R any] struct {
	call   func() (R, error)
	future *Future[R]

	// fired flips on the first Execute or Abandon; only that caller
	// touches the future.
	fired atomic.Bool
	runs  atomic.Uint64
}

var _ Runnable = (*Task[int])(nil)

// New wraps a callable that returns a value and an error.
func New[R any](fn func() (R, error)) *Task[R] {
	if fn == nil {
		panic("task: nil func")
	}
	return &Task[R]{call: fn, future: newFuture[R]()}
}

// FromValue wraps a callable that cannot fail.
func FromValue[R any](fn func() R) *Task[R] {
	if fn == nil {
		panic("task: nil func")
	}
	return New(func() (R, error) { return fn(), nil })
}

// FromFunc wraps a void callable. Its result is a completion signal.
func FromFunc(fn func()) *Task[struct{}] {
	if fn == nil {
		panic("task: nil func")
	}
	return New(func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})
}

// Execute implements Runnable.
func (t *Task[R]) Execute() (err error) {
	var v R
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		v, err = t.call()
	}()
	t.runs.Add(1)

	if t.fired.CompareAndSwap(false, true) {
		t.future.resolve(v, err)
	}
	return err
}

// Abandon implements Runnable. It is a no-op once the task has executed.
func (t *Task[R]) Abandon() {
	if t.fired.CompareAndSwap(false, true) {
		t.future.abandon()
	}
}

// Result returns the task's result handle. Repeated calls return the same
// handle, so the result can be observed from several places.
func (t *Task[R]) Result() *Future[R] { return t.future }

// Runs reports how many times Execute has been called.
func (t *Task[R]) Runs() uint64 { return t.runs.Load() }
