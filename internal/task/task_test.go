package task

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewDeliversFirstResultOnly(t *testing.T) {
	t.Parallel()
	n := 0
	tk := New(func() (int, error) {
		n++
		return n * 10, nil
	})
	f := tk.Result()
	if f.State() != Pending {
		t.Fatalf("state = %v, want pending", f.State())
	}
	if _, ok, _ := f.Poll(); ok {
		t.Fatal("Poll should not be ready before Execute")
	}

	for i := 0; i < 3; i++ {
		if err := tk.Execute(); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	v, err := f.Get()
	if err != nil || v != 10 {
		t.Fatalf("Get = (%d, %v), want (10, nil)", v, err)
	}
	if tk.Runs() != 3 {
		t.Fatalf("Runs = %d, want 3", tk.Runs())
	}
	// reads are repeatable
	if v2, ok, _ := f.Poll(); !ok || v2 != 10 {
		t.Fatalf("second read = (%d, %v)", v2, ok)
	}
}

func TestResultIsIdempotent(t *testing.T) {
	t.Parallel()
	tk := FromValue(func() string { return "x" })
	if tk.Result() != tk.Result() {
		t.Fatal("Result should return the same handle")
	}
}

func TestFromFuncCompletionSignal(t *testing.T) {
	t.Parallel()
	called := false
	tk := FromFunc(func() { called = true })
	if err := tk.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("callable not invoked")
	}
	select {
	case <-tk.Result().Done():
	default:
		t.Fatal("completion not signalled")
	}
}

func TestExecuteReturnsCallableError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tk := New(func() (int, error) { return 0, boom })
	if err := tk.Execute(); !errors.Is(err, boom) {
		t.Fatalf("Execute err = %v, want boom", err)
	}
	if _, err := tk.Result().Get(); !errors.Is(err, boom) {
		t.Fatalf("future err = %v, want boom", err)
	}
	if tk.Result().State() != Ready {
		t.Fatalf("state = %v, want ready", tk.Result().State())
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	t.Parallel()
	tk := FromFunc(func() { panic("kaboom") })
	err := tk.Execute()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("Execute err = %v, want *PanicError", err)
	}
	if pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("unexpected panic error: %+v", pe)
	}
	if _, err := tk.Result().Get(); !errors.As(err, &pe) {
		t.Fatalf("future err = %v, want *PanicError", err)
	}
	// a panicking task can still be executed again
	if err := tk.Execute(); err == nil {
		t.Fatal("second Execute should fail again")
	}
}

func TestPanicErrorUnwrap(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("inner")
	tk := FromFunc(func() { panic(sentinel) })
	if err := tk.Execute(); !errors.Is(err, sentinel) {
		t.Fatalf("errors.Is through PanicError failed: %v", err)
	}
}

func TestAbandonReleasesWaiters(t *testing.T) {
	t.Parallel()
	tk := FromValue(func() int { return 1 })
	f := tk.Result()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Get()
			errs <- err
		}()
	}
	tk.Abandon()
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrAbandoned) {
			t.Fatalf("waiter err = %v, want ErrAbandoned", err)
		}
	}
	if f.State() != Abandoned {
		t.Fatalf("state = %v, want abandoned", f.State())
	}

	// Execute after Abandon runs the callable but leaves the future alone.
	if err := tk.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := f.Get(); !errors.Is(err, ErrAbandoned) {
		t.Fatalf("future rewritten after abandon: %v", err)
	}
}

func TestAbandonAfterExecuteIsNoop(t *testing.T) {
	t.Parallel()
	tk := FromValue(func() int { return 7 })
	_ = tk.Execute()
	tk.Abandon()
	if v, err := tk.Result().Get(); err != nil || v != 7 {
		t.Fatalf("Get = (%d, %v), want (7, nil)", v, err)
	}
}

func TestNilFutureIsInvalid(t *testing.T) {
	t.Parallel()
	var f *Future[int]
	if f.Valid() {
		t.Fatal("nil future should be invalid")
	}
	if _, err := f.Get(); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Get err = %v, want ErrNoResult", err)
	}
	select {
	case <-f.Done():
	default:
		t.Fatal("nil future Done should be closed")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	tk := FromValue(func() int { return 1 })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tk.Result().Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestWaitBlocksUntilExecuted(t *testing.T) {
	t.Parallel()
	tk := FromValue(func() string { return "late" })
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = tk.Execute()
	}()
	v, err := tk.Result().Get()
	if err != nil || v != "late" {
		t.Fatalf("Get = (%q, %v)", v, err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{Pending: "pending", Ready: "ready", Abandoned: "abandoned", State(9): "unknown"} {
		if got := s.String(); !strings.EqualFold(got, want) {
			t.Fatalf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
