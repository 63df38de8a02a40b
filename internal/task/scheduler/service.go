package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dyntimer/internal/eventbus"
	"dyntimer/internal/runtime/supervisor"
	"dyntimer/internal/task"
	logx "dyntimer/pkg/logx"
)

// Scheduler owns a task registry and the goroutine that drives it.
type Scheduler struct {
	mu     sync.Mutex
	cfg    Config
	tasks  map[TaskID]*record
	tick   int64 // ms
	closed bool

	instance string
	log      logx.Logger
	bus      eventbus.Bus
	report   *reporter
	clock    func() int64

	nextID atomic.Uint32
	active atomic.Bool
	wake   chan struct{}
	stopCh chan struct{}
	sup    *supervisor.Supervisor
}

// New creates a Scheduler and starts its loop. bus may be nil.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	s := newScheduler(cfg, log, bus, nowMillis)
	s.start()
	return s
}

func newScheduler(cfg Config, log logx.Logger, bus eventbus.Bus, clock func() int64) *Scheduler {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	instance := uuid.NewString()
	log = log.With(logx.String("comp", "scheduler"), logx.String("instance", instance[:8]))
	s := &Scheduler{
		cfg:      cfg,
		tasks:    make(map[TaskID]*record),
		instance: instance,
		log:      log,
		bus:      bus,
		report:   newReporter(log, cfg.FailureLogsPerSec),
		clock:    clock,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	s.tick = computeTick(s.tasks, cfg)
	return s
}

func (s *Scheduler) start() {
	s.active.Store(true)
	s.sup = supervisor.New(context.Background(), supervisor.WithLogger(s.log))
	s.sup.GoRestart("scheduler.loop", s.loop, supervisor.WithRestartBackoff(10*time.Millisecond, time.Second))
	s.log.Info("scheduler started", logx.Duration("tick", s.Tick()))
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Instance is the unique id of this Scheduler, carried on every event.
func (s *Scheduler) Instance() string { return s.instance }

// Apply swaps the runtime config. The loop picks up a new tick immediately.
func (s *Scheduler) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	changed := s.retickLocked()
	s.mu.Unlock()
	s.report.setRate(cfg.FailureLogsPerSec)
	if changed {
		s.wakeLoop()
	}
}

// Close stops the loop and abandons every task still registered.
func (s *Scheduler) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Stop(ctx)
}

// Stop is Close bounded by ctx. A scan in progress finishes first.
// Stop is idempotent.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	var err error
	if s.sup != nil {
		s.sup.Cancel()
		err = s.sup.Wait(ctx)
	}

	s.mu.Lock()
	left := len(s.tasks)
	for id, r := range s.tasks {
		delete(s.tasks, id)
		r.status = StatusFinished
		r.task.Abandon()
	}
	s.mu.Unlock()

	s.log.Info("scheduler stopped", logx.Int("abandoned", left))
	return err
}

func (s *Scheduler) wakeLoop() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop sleeps one tick, scans, and repeats until Stop. A wake signal
// cuts the current sleep short so a new tick takes effect at once.
func (s *Scheduler) loop(ctx context.Context) error {
	timer := time.NewTimer(s.Tick())
	defer timer.Stop()

	for s.active.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
		if !s.active.Load() {
			return nil
		}
		s.scan()
		timer.Reset(s.Tick())
	}
	return nil
}

// scan fires every eligible running task and retires finished ones,
// holding the registry lock for the whole pass.
func (s *Scheduler) scan() {
	s.mu.Lock()
	defer s.mu.Unlock()

	retired := false
	for id, r := range s.tasks {
		if r.status != StatusRunning {
			continue
		}
		execute, finish := evaluate(r, s.clock())
		if execute {
			if err := s.executeLocked(r); err != nil && s.cfg.RetireOnFailure {
				finish = true
			}
		}
		if !finish {
			continue
		}
		r.status = StatusFinished
		delete(s.tasks, id)
		r.task.Abandon()
		retired = true
		s.log.Debug("task finished", logx.Uint32("id", uint32(r.id)), logx.String("name", r.name), logx.Uint64("runs", r.runs))
		s.publish(EventFinished, r, 0, nil)
	}
	if retired {
		s.retickLocked()
	}
}

// executeLocked runs one firing of r. A panic from a Runnable that does not
// recover on its own is converted into a *task.PanicError here.
func (s *Scheduler) executeLocked(r *record) (err error) {
	began := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = &task.PanicError{Value: p, Stack: debug.Stack()}
		}
		took := time.Since(began)
		r.runs++
		if err == nil {
			s.publish(EventExecuted, r, took, nil)
			return
		}
		r.failures++
		r.lastErr = err.Error()
		s.report.failure(r, err)
		s.publish(EventFailed, r, took, err)
	}()
	return r.task.Execute()
}

func (s *Scheduler) publish(typ string, r *record, took time.Duration, err error) {
	ev := TaskEvent{
		Instance: s.instance,
		ID:       r.id,
		Name:     r.name,
		Mode:     r.mode.String(),
		Runs:     r.runs,
		Duration: took,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (s *Scheduler) String() string {
	return fmt.Sprintf("scheduler(%s)", s.instance)
}
