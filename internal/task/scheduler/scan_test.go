package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dyntimer/internal/eventbus"
	"dyntimer/internal/task"
	logx "dyntimer/pkg/logx"
)

type fakeClock struct{ ms atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.ms.Store(t0)
	return c
}

func (c *fakeClock) now() int64              { return c.ms.Load() }
func (c *fakeClock) advance(d time.Duration) { c.ms.Add(d.Milliseconds()) }

// newManual returns a scheduler whose loop is not running; tests drive it
// with scan() and the fake clock.
func newManual(t *testing.T, cfg Config, bus eventbus.Bus) (*Scheduler, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	return newScheduler(cfg, logx.Nop(), bus, clk.now), clk
}

func counter() (*task.Task[struct{}], *atomic.Int64) {
	var n atomic.Int64
	return task.FromFunc(func() { n.Add(1) }), &n
}

func mustAdd(t *testing.T, s *Scheduler, mode Mode, interval, span time.Duration, r task.Runnable) TaskID {
	t.Helper()
	id, err := s.Add(mode, interval, span, r)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return id
}

func TestAddDoesNotArm(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	tk, n := counter()
	id := mustAdd(t, s, ModePeriod, 10*time.Millisecond, 0, tk)

	clk.advance(time.Second)
	s.scan()
	if n.Load() != 0 {
		t.Fatalf("not-started task ran %d times", n.Load())
	}
	if st, _ := s.Status(id); st != StatusNotStarted {
		t.Fatalf("status=%s", st)
	}
	if s.Tick() != DefaultTickCeiling {
		t.Fatalf("tick=%s", s.Tick())
	}
}

func TestIDsAreSequential(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	for want := TaskID(1); want <= 3; want++ {
		tk, _ := counter()
		if id := mustAdd(t, s, ModeSingle, time.Millisecond, 0, tk); id != want {
			t.Fatalf("id=%d want %d", id, want)
		}
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	tk, _ := counter()
	cases := []struct {
		name     string
		mode     Mode
		interval time.Duration
		span     time.Duration
		r        task.Runnable
		want     error
	}{
		{"zero interval", ModePeriod, 0, 0, tk, ErrInvalidInterval},
		{"sub-ms interval", ModePeriod, 500 * time.Microsecond, 0, tk, ErrInvalidInterval},
		{"span without span", ModeSpan, time.Millisecond, 0, tk, ErrInvalidSpan},
		{"negative span", ModeSpan, time.Millisecond, -time.Second, tk, ErrInvalidSpan},
		{"unknown mode", Mode(0), time.Millisecond, 0, tk, ErrInvalidMode},
		{"nil task", ModeSingle, time.Millisecond, 0, nil, ErrNilTask},
	}
	for _, tc := range cases {
		if _, err := s.Add(tc.mode, tc.interval, tc.span, tc.r); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
	if !s.Empty() {
		t.Fatalf("rejected tasks were registered: len=%d", s.Len())
	}
}

func TestPeriodFiresEveryInterval(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	tk, n := counter()
	id := mustAdd(t, s, ModePeriod, 100*time.Millisecond, 0, tk)
	if err := s.Control(id, CommandStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Tick() != 100*time.Millisecond {
		t.Fatalf("tick=%s", s.Tick())
	}
	for i := 0; i < 6; i++ {
		clk.advance(100 * time.Millisecond)
		s.scan()
	}
	if n.Load() != 6 {
		t.Fatalf("runs=%d want 6", n.Load())
	}
	if s.Len() != 1 {
		t.Fatalf("period task retired")
	}
}

func TestSingleRunsOnceAndRetires(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	tk, n := counter()
	id := mustAdd(t, s, ModeSingle, 50*time.Millisecond, 0, tk)
	_ = s.Control(id, CommandStart)

	clk.advance(49 * time.Millisecond)
	s.scan()
	if n.Load() != 0 {
		t.Fatalf("ran before interval")
	}
	clk.advance(time.Millisecond)
	s.scan()
	clk.advance(time.Second)
	s.scan()
	if n.Load() != 1 {
		t.Fatalf("runs=%d want 1", n.Load())
	}
	if !s.Empty() {
		t.Fatalf("single task still registered")
	}
	if _, err := s.Status(id); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("status err=%v", err)
	}
	if s.Tick() != DefaultTickCeiling {
		t.Fatalf("tick not recomputed: %s", s.Tick())
	}
}

func TestSingleWithResultDeliversValue(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	id, fut, err := AddFunc(s, ModeSingleWithResult, 10*time.Millisecond, 0, func() (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	if !fut.Valid() || fut.State() != task.Pending {
		t.Fatalf("future not pending")
	}
	_ = s.Control(id, CommandStart)
	clk.advance(10 * time.Millisecond)
	s.scan()

	v, ok, err := fut.Poll()
	if !ok || err != nil || v != 42 {
		t.Fatalf("poll: v=%d ok=%v err=%v", v, ok, err)
	}
}

func TestAddFuncPeriodHasNoFuture(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	_, fut, err := AddFunc(s, ModePeriod, 10*time.Millisecond, 0, func() (int, error) { return 1, nil })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	if fut.Valid() {
		t.Fatalf("period task returned a future")
	}
}

func TestAddBind(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	id, fut, err := AddBind(s, ModeSingleWithResult, time.Millisecond, 0, func(a, b int) int { return a + b }, 2, 3)
	if err != nil {
		t.Fatalf("AddBind: %v", err)
	}
	_ = s.Control(id, CommandStart)
	clk.advance(time.Millisecond)
	s.scan()
	v, err := fut.Wait(context.Background())
	if err != nil || v != 5 {
		t.Fatalf("v=%v err=%v", v, err)
	}

	if _, _, err := AddBind(s, ModeSingle, time.Millisecond, 0, func(a int) {}, "x"); !errors.Is(err, task.ErrArgType) {
		t.Fatalf("bad bind err=%v", err)
	}
	if !s.Empty() {
		t.Fatalf("failed bind registered a task")
	}
}

func TestSpanRetiresAfterSpan(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	tk, n := counter()
	id := mustAdd(t, s, ModeSpan, 100*time.Millisecond, 500*time.Millisecond, tk)
	_ = s.Control(id, CommandStart)

	for i := 0; i < 10; i++ {
		clk.advance(100 * time.Millisecond)
		s.scan()
	}
	if n.Load() != 5 {
		t.Fatalf("runs=%d want 5", n.Load())
	}
	if !s.Empty() {
		t.Fatalf("span task still registered")
	}
}

func TestStopRemovesAndAbandons(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	id, fut, err := AddFunc(s, ModeSingleWithResult, time.Hour, 0, func() (string, error) { return "x", nil })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	_ = s.Control(id, CommandStart)
	if err := s.Control(id, CommandStop); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !s.Empty() {
		t.Fatalf("len=%d after stop", s.Len())
	}
	if _, err := fut.Get(); !errors.Is(err, task.ErrAbandoned) {
		t.Fatalf("future err=%v", err)
	}
	if err := s.Control(id, CommandStart); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("start after stop err=%v", err)
	}
}

func TestControlUnknownID(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	tk, _ := counter()
	id := mustAdd(t, s, ModePeriod, 10*time.Millisecond, 0, tk)

	for _, cmd := range []Command{CommandStart, CommandStop, CommandPause} {
		if err := s.Control(id+100, cmd); !errors.Is(err, ErrTaskNotFound) {
			t.Fatalf("%s: err=%v", cmd, err)
		}
	}
	if st, err := s.Status(id); err != nil || st != StatusNotStarted {
		t.Fatalf("state changed: %s %v", st, err)
	}
	if err := s.Control(id, Command(99)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("invalid command err=%v", err)
	}
}

func TestPauseAndRestart(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	tk, n := counter()
	id := mustAdd(t, s, ModePeriod, 20*time.Millisecond, 0, tk)
	_ = s.Control(id, CommandStart)
	clk.advance(20 * time.Millisecond)
	s.scan()

	if err := s.Control(id, CommandPause); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if s.Tick() != DefaultTickCeiling {
		t.Fatalf("paused task still drives tick: %s", s.Tick())
	}
	for i := 0; i < 5; i++ {
		clk.advance(20 * time.Millisecond)
		s.scan()
	}
	if n.Load() != 1 {
		t.Fatalf("paused task ran: %d", n.Load())
	}

	_ = s.Control(id, CommandStart)
	clk.advance(19 * time.Millisecond)
	s.scan()
	if n.Load() != 1 {
		t.Fatalf("restart did not re-arm")
	}
	clk.advance(time.Millisecond)
	s.scan()
	if n.Load() != 2 {
		t.Fatalf("runs=%d want 2", n.Load())
	}
}

func TestTickFollowsRunningSet(t *testing.T) {
	t.Parallel()

	s, _ := newManual(t, Config{}, nil)
	a, _ := counter()
	b, _ := counter()
	ida := mustAdd(t, s, ModePeriod, 200*time.Millisecond, 0, a)
	idb := mustAdd(t, s, ModePeriod, 300*time.Millisecond, 0, b)
	_ = s.Control(ida, CommandStart)
	if s.Tick() != 200*time.Millisecond {
		t.Fatalf("tick=%s", s.Tick())
	}
	_ = s.Control(idb, CommandStart)
	if s.Tick() != 100*time.Millisecond {
		t.Fatalf("tick=%s", s.Tick())
	}
	_ = s.Control(ida, CommandStop)
	if s.Tick() != 300*time.Millisecond {
		t.Fatalf("tick=%s", s.Tick())
	}
	s.Apply(Config{FixedTick: 7 * time.Millisecond})
	if s.Tick() != 7*time.Millisecond {
		t.Fatalf("fixed tick=%s", s.Tick())
	}
	if s.Snapshot().Adaptive {
		t.Fatalf("snapshot reports adaptive with fixed tick")
	}
}

func TestFailureKeepsPeriodRunning(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{}, nil)
	boom := errors.New("boom")
	id, _, err := AddFunc(s, ModePeriod, 10*time.Millisecond, 0, func() (int, error) { return 0, boom })
	if err != nil {
		t.Fatalf("AddFunc: %v", err)
	}
	_ = s.Control(id, CommandStart)
	for i := 0; i < 3; i++ {
		clk.advance(10 * time.Millisecond)
		s.scan()
	}
	snap := s.Snapshot()
	if len(snap.Tasks) != 1 {
		t.Fatalf("tasks=%d", len(snap.Tasks))
	}
	ti := snap.Tasks[0]
	if ti.Runs != 3 || ti.Failures != 3 || ti.LastError != "boom" {
		t.Fatalf("info=%+v", ti)
	}
}

func TestRetireOnFailure(t *testing.T) {
	t.Parallel()

	s, clk := newManual(t, Config{RetireOnFailure: true}, nil)
	id, _, _ := AddFunc(s, ModePeriod, 10*time.Millisecond, 0, func() (int, error) { return 0, errors.New("boom") })
	_ = s.Control(id, CommandStart)
	clk.advance(10 * time.Millisecond)
	s.scan()
	if !s.Empty() {
		t.Fatalf("failing task not retired")
	}
}

type panicky struct{ abandoned atomic.Bool }

func (p *panicky) Execute() error { panic("raw runnable") }
func (p *panicky) Abandon()       { p.abandoned.Store(true) }

func TestScanRecoversRunnablePanic(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	s, clk := newManual(t, Config{}, bus)
	p := &panicky{}
	id := mustAdd(t, s, ModeSingle, time.Millisecond, 0, p)
	_ = s.Control(id, CommandStart)
	clk.advance(time.Millisecond)
	s.scan()

	if !s.Empty() || !p.abandoned.Load() {
		t.Fatalf("panicking single not retired")
	}
	var failed *TaskEvent
	for len(ch) > 0 {
		ev := <-ch
		if ev.Type == EventFailed {
			te := ev.Data.(TaskEvent)
			failed = &te
		}
	}
	if failed == nil || failed.Error == "" {
		t.Fatalf("no failure event")
	}
}

func TestEventSequence(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	s, clk := newManual(t, Config{}, bus)
	tk, _ := counter()
	id, err := s.Add(ModeSingle, 5*time.Millisecond, 0, tk, WithName("hello"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	_ = s.Control(id, CommandStart)
	clk.advance(5 * time.Millisecond)
	s.scan()

	want := []string{EventAdded, EventStarted, EventExecuted, EventFinished}
	for i, typ := range want {
		select {
		case ev := <-ch:
			te := ev.Data.(TaskEvent)
			if ev.Type != typ || te.ID != id || te.Name != "hello" || te.Instance != s.Instance() {
				t.Fatalf("event %d: type=%s data=%+v", i, ev.Type, te)
			}
		default:
			t.Fatalf("missing event %d (%s)", i, typ)
		}
	}
}
