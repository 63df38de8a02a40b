package scheduler

import "errors"

var (
	ErrInvalidMode     = errors.New("scheduler: invalid mode")
	ErrInvalidInterval = errors.New("scheduler: interval must be at least 1ms")
	ErrInvalidSpan     = errors.New("scheduler: span must be positive")
	ErrInvalidCommand  = errors.New("scheduler: invalid command")
	ErrNilTask         = errors.New("scheduler: nil task")
	ErrTaskNotFound    = errors.New("scheduler: task not found")
	ErrClosed          = errors.New("scheduler: closed")
)
