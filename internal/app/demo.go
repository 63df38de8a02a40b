package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"dyntimer/internal/task/scheduler"
	logx "dyntimer/pkg/logx"
)

// demos are the bundled usage samples. Each registers its tasks on s and
// returns once they are running; results go to out. Waits on results end
// early when ctx is done.
var demos = map[string]func(ctx context.Context, s *scheduler.Scheduler, out io.Writer) error{
	"period": demoPeriod,
	"span":   demoSpan,
	"once":   demoOnce,
	"mixed":  demoMixed,
}

// DemoNames lists the bundled demos.
func DemoNames() []string {
	out := make([]string, 0, len(demos))
	for name := range demos {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RunDemo runs one demo until its tasks drain or ctx is done.
func RunDemo(ctx context.Context, name string, log logx.Logger, out io.Writer) error {
	setup, ok := demos[name]
	if !ok {
		return fmt.Errorf("unknown demo %q (have %v)", name, DemoNames())
	}
	s := scheduler.New(scheduler.Config{}, log, nil)
	defer s.Close()

	w := &syncWriter{w: out}
	if err := setup(ctx, s, w); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !s.Empty() {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
	return nil
}

// syncWriter serializes writes from result waiters and task callables.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func collectAll(out io.Writer) func(signals []string) {
	return func(signals []string) {
		for _, sig := range signals {
			fmt.Fprintf(out, "Collecting: %s\n", sig)
		}
	}
}

func receiveResp(requestID int) bool { return requestID > 0 }

func startBind(s *scheduler.Scheduler, mode scheduler.Mode, interval, span time.Duration, fn any, args ...any) (scheduler.TaskID, error) {
	id, _, err := scheduler.AddBind(s, mode, interval, span, fn, args...)
	if err != nil {
		return 0, err
	}
	return id, s.Control(id, scheduler.CommandStart)
}

// demoPeriod samples two signals every second until interrupted.
func demoPeriod(_ context.Context, s *scheduler.Scheduler, out io.Writer) error {
	_, err := startBind(s, scheduler.ModePeriod, time.Second, 0, collectAll(out), []string{"x", "y"})
	return err
}

// demoSpan samples one signal every 500ms for 5s.
func demoSpan(_ context.Context, s *scheduler.Scheduler, out io.Writer) error {
	collect := func(signal string) { fmt.Fprintf(out, "Collecting: %s\n", signal) }
	_, err := startBind(s, scheduler.ModeSpan, 500*time.Millisecond, 5*time.Second, collect, "Signal xy")
	return err
}

// demoOnce waits for two request/response timeouts and prints their results.
func demoOnce(ctx context.Context, s *scheduler.Scheduler, out io.Writer) error {
	for _, req := range []struct {
		id    int
		after time.Duration
	}{{1, 50 * time.Millisecond}, {0, 100 * time.Millisecond}} {
		id, fut, err := scheduler.AddBind(s, scheduler.ModeSingleWithResult, req.after, 0, receiveResp, req.id)
		if err != nil {
			return err
		}
		if err := s.Control(id, scheduler.CommandStart); err != nil {
			return err
		}
		v, err := fut.Wait(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "response %d: %v\n", req.id, v)
	}
	return nil
}

// demoMixed combines a long span task, a period task and a one-shot result.
func demoMixed(ctx context.Context, s *scheduler.Scheduler, out io.Writer) error {
	spanFunc := func(signal string) { fmt.Fprintf(out, "Span Collecting: %s\n", signal) }
	if _, err := startBind(s, scheduler.ModeSpan, 100*time.Millisecond, 50*time.Second, spanFunc, "xy"); err != nil {
		return err
	}
	if _, err := startBind(s, scheduler.ModePeriod, 200*time.Millisecond, 0, collectAll(out), []string{"x", "y"}); err != nil {
		return err
	}
	id, fut, err := scheduler.AddBind(s, scheduler.ModeSingleWithResult, 50*time.Millisecond, 0, receiveResp, 1)
	if err != nil {
		return err
	}
	if err := s.Control(id, scheduler.CommandStart); err != nil {
		return err
	}
	v, err := fut.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "response 1: %v\n", v)
	return nil
}
