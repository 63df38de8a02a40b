package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"dyntimer/internal/task"
	logx "dyntimer/pkg/logx"
)

func newRunning(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s := New(cfg, logx.Nop(), nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoopRunsPeriodTask(t *testing.T) {
	t.Parallel()

	s := newRunning(t, Config{})
	tk, n := counter()
	id := mustAdd(t, s, ModePeriod, 20*time.Millisecond, 0, tk)
	_ = s.Control(id, CommandStart)

	time.Sleep(230 * time.Millisecond)
	_ = s.Control(id, CommandStop)
	got := n.Load()
	if got < 5 || got > 12 {
		t.Fatalf("runs=%d, want about 11", got)
	}
}

func TestLoopPeriodRunCount(t *testing.T) {
	t.Parallel()

	s := newRunning(t, Config{})
	tk, n := counter()
	id := mustAdd(t, s, ModePeriod, 100*time.Millisecond, 0, tk)
	_ = s.Control(id, CommandStart)

	time.Sleep(650 * time.Millisecond)
	_ = s.Control(id, CommandStop)
	if got := n.Load(); got < 5 || got > 7 {
		t.Fatalf("runs=%d, want 5..7", got)
	}
	if !s.Empty() {
		t.Fatalf("stop left %d tasks", s.Len())
	}
}

func TestLoopDeliversResult(t *testing.T) {
	t.Parallel()

	s := newRunning(t, Config{})
	id, fut, err := AddFunc(s, ModeSingleWithResult, 10*time.Millisecond, 0, func() (string, error) { return "done", nil })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	_ = s.Control(id, CommandStart)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := fut.Wait(ctx)
	if err != nil || v != "done" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	waitUntil(t, time.Second, s.Empty)
}

func TestLoopPicksUpShorterTick(t *testing.T) {
	t.Parallel()

	// The loop starts sleeping a full ceiling; starting a fast task must
	// wake it rather than wait out the old tick.
	s := newRunning(t, Config{TickCeiling: 5 * time.Second})
	tk, n := counter()
	id := mustAdd(t, s, ModeSingle, 10*time.Millisecond, 0, tk)
	_ = s.Control(id, CommandStart)
	waitUntil(t, time.Second, func() bool { return n.Load() == 1 })
}

func TestLoopSurvivesPanickingTask(t *testing.T) {
	t.Parallel()

	s := newRunning(t, Config{})
	bad := task.FromFunc(func() { panic("boom") })
	idBad := mustAdd(t, s, ModePeriod, 5*time.Millisecond, 0, bad)
	_ = s.Control(idBad, CommandStart)

	id, fut, _ := AddFunc(s, ModeSingleWithResult, 30*time.Millisecond, 0, func() (int, error) { return 7, nil })
	_ = s.Control(id, CommandStart)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if v, err := fut.Wait(ctx); err != nil || v != 7 {
		t.Fatalf("v=%d err=%v", v, err)
	}
	if bad.Runs() == 0 {
		t.Fatalf("panicking task never ran")
	}
}

func TestCloseAbandonsPending(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	id, fut, _ := AddFunc(s, ModeSingleWithResult, time.Hour, 0, func() (int, error) { return 1, nil })
	_ = s.Control(id, CommandStart)
	_, idle, _ := AddFunc(s, ModeSingleWithResult, time.Hour, 0, func() (int, error) { return 2, nil })

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, f := range []*task.Future[int]{fut, idle} {
		if f.State() != task.Abandoned {
			t.Fatalf("state=%s", f.State())
		}
	}
	if !s.Empty() {
		t.Fatalf("registry not drained")
	}
	tk, _ := counter()
	if _, err := s.Add(ModeSingle, time.Millisecond, 0, tk); !errors.Is(err, ErrClosed) {
		t.Fatalf("Add after close err=%v", err)
	}
	if err := s.Control(id, CommandStart); !errors.Is(err, ErrClosed) {
		t.Fatalf("Control after close err=%v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if s.Snapshot().Active {
		t.Fatalf("snapshot reports active after close")
	}
}

func TestCloseWaitsForRunningTask(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	started := make(chan struct{})
	var finished bool
	slow := task.FromFunc(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished = true
	})
	id := mustAdd(t, s, ModeSingle, time.Millisecond, 0, slow)
	_ = s.Control(id, CommandStart)

	<-started
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !finished {
		t.Fatalf("Close returned while a task was executing")
	}
}
