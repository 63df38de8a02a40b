package task

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is returned by the invalid (nil) Future: the task mode
	// does not publish a result.
	ErrNoResult = errors.New("task: no result for this task")
	// ErrAbandoned is returned when the owning task was removed before it
	// ever executed.
	ErrAbandoned = errors.New("task: result abandoned")

	ErrNotFunc  = errors.New("task: callable is not a func")
	ErrArgCount = errors.New("task: wrong number of arguments")
	ErrArgType  = errors.New("task: argument type mismatch")
)

// PanicError is the failure recorded when a callable panics during Execute.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Unwrap exposes a panicked error value (panic(err)) to errors.Is/As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
