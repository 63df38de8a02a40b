package scheduler

import (
	"fmt"
	"time"

	"dyntimer/internal/task"
	logx "dyntimer/pkg/logx"
)

func validate(mode Mode, interval, span time.Duration) error {
	if !mode.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if interval < time.Millisecond {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if mode == ModeSpan && span <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidSpan, span)
	}
	return nil
}

// Add registers r in the NotStarted state and returns its id. span is only
// consulted for ModeSpan. Sub-millisecond parts of interval and span are
// truncated.
func (s *Scheduler) Add(mode Mode, interval, span time.Duration, r task.Runnable, opts ...AddOption) (TaskID, error) {
	if err := validate(mode, interval, span); err != nil {
		s.report.usage("task rejected", logx.String("mode", mode.String()), logx.Err(err))
		return 0, err
	}
	if r == nil {
		return 0, ErrNilTask
	}
	var o addOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rec := &record{
		name:     o.name,
		mode:     mode,
		interval: interval.Milliseconds(),
		status:   StatusNotStarted,
		task:     r,
	}
	if mode == ModeSpan {
		rec.span = span.Milliseconds()
		if rec.span <= 0 {
			rec.span = 1
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	rec.id = TaskID(s.nextID.Add(1))
	s.tasks[rec.id] = rec
	s.publish(EventAdded, rec, 0, nil)
	s.mu.Unlock()

	s.log.Debug("task added",
		logx.Uint32("id", uint32(rec.id)),
		logx.String("name", rec.name),
		logx.String("mode", mode.String()),
		logx.Duration("interval", interval),
		logx.Duration("span", msDur(rec.span)),
	)
	return rec.id, nil
}

// AddTask registers t and, for ModeSingleWithResult, returns its future.
// Other modes return a nil future.
func AddTask[R any](s *Scheduler, mode Mode, interval, span time.Duration, t *task.Task[R], opts ...AddOption) (TaskID, *task.Future[R], error) {
	if t == nil {
		return 0, nil, ErrNilTask
	}
	id, err := s.Add(mode, interval, span, t, opts...)
	if err != nil {
		return 0, nil, err
	}
	if mode != ModeSingleWithResult {
		return id, nil, nil
	}
	return id, t.Result(), nil
}

// AddFunc wraps fn in a task and registers it like AddTask.
func AddFunc[R any](s *Scheduler, mode Mode, interval, span time.Duration, fn func() (R, error), opts ...AddOption) (TaskID, *task.Future[R], error) {
	if fn == nil {
		return 0, nil, ErrNilTask
	}
	return AddTask(s, mode, interval, span, task.New(fn), opts...)
}

// AddBind binds fn to args (see task.Bind) and registers the result like
// AddTask. Argument mismatches are reported before anything is registered.
func AddBind(s *Scheduler, mode Mode, interval, span time.Duration, fn any, args ...any) (TaskID, *task.Future[any], error) {
	t, err := task.Bind(fn, args...)
	if err != nil {
		return 0, nil, err
	}
	return AddTask(s, mode, interval, span, t)
}

// Control applies cmd to the task with the given id.
//
//   - CommandStart arms the task: it becomes Running with its clock reset to
//     now, so it first fires one interval later. Starting a running or paused
//     task re-arms it.
//   - CommandStop removes the task and abandons its future.
//   - CommandPause keeps a running task registered but stops it firing.
//
// An unknown id returns ErrTaskNotFound and changes nothing.
func (s *Scheduler) Control(id TaskID, cmd Command) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	r, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		err := fmt.Errorf("%w: id=%d", ErrTaskNotFound, id)
		s.report.usage("control on unknown task", logx.Uint32("id", uint32(id)), logx.String("cmd", cmd.String()))
		return err
	}

	var event string
	switch cmd {
	case CommandStart:
		r.status = StatusRunning
		r.start = s.clock()
		r.lastExecute = 0
		event = EventStarted
	case CommandStop:
		delete(s.tasks, id)
		r.status = StatusFinished
		r.task.Abandon()
		event = EventStopped
	case CommandPause:
		if r.status != StatusRunning {
			s.mu.Unlock()
			return nil
		}
		r.status = StatusPaused
		event = EventPaused
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidCommand, int(cmd))
	}
	changed := s.retickLocked()
	s.publish(event, r, 0, nil)
	s.mu.Unlock()

	s.log.Debug("task "+cmd.String(), logx.Uint32("id", uint32(id)), logx.String("name", r.name))
	if changed || cmd == CommandStart {
		s.wakeLoop()
	}
	return nil
}

// Empty reports whether no task is registered.
func (s *Scheduler) Empty() bool { return s.Len() == 0 }

// Len returns the number of registered tasks in any non-finished state.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tick returns the current loop period.
func (s *Scheduler) Tick() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return msDur(s.tick)
}

// Status returns the state of one task. Retired and stopped tasks are
// reported as not found.
func (s *Scheduler) Status(id TaskID) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tasks[id]
	if !ok {
		return StatusFinished, fmt.Errorf("%w: id=%d", ErrTaskNotFound, id)
	}
	return r.status, nil
}
