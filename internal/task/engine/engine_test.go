package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "stockalert/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueSkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2, QueueSize: 4})
	release := make(chan struct{})
	var runs atomic.Int32
	task := Task{Name: "poll", Run: func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err=%v, want ErrOverlapSkip", err)
	}
	close(release)
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("Enqueue after completion: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() == 2 })
	if got := s.Snapshot().Skipped; got != 1 {
		t.Fatalf("skipped=%d want 1", got)
	}
}

func TestRetryStopsOnNoRetry(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, RetryMax: 3})
	var calls atomic.Int32
	err := s.Enqueue(Task{Name: "bad", Opt: TaskOptions{RetryBase: time.Millisecond}, Run: func(ctx context.Context) error {
		calls.Add(1)
		return NoRetry(errors.New("permanent"))
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	h := s.Snapshot().History[0]
	if calls.Load() != 1 || h.Error != "permanent" || h.Attempts != 1 {
		t.Fatalf("calls=%d history=%+v", calls.Load(), h)
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, RetryMax: 3})
	var calls atomic.Int32
	_ = s.Enqueue(Task{Name: "flaky", Opt: TaskOptions{RetryBase: time.Millisecond}, Run: func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if h := s.Snapshot().History[0]; h.Error != "" || h.Attempts != 3 {
		t.Fatalf("history=%+v", h)
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	_ = s.Enqueue(Task{Name: "boom", Opt: TaskOptions{RetryMax: -1}, Run: func(ctx context.Context) error {
		panic("boom")
	}})
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if h := s.Snapshot().History[0]; h.Error != "panic: boom" {
		t.Fatalf("history=%+v", h)
	}
}

func TestTimeoutCancelsTask(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond})
	_ = s.Enqueue(Task{Name: "slow", Opt: TaskOptions{RetryMax: -1}, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if h := s.Snapshot().History[0]; h.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("history=%+v", h)
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryBase: time.Second, RetryMaxDelay: 3 * time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		if d := backoffDelay(opt, attempt); d <= 0 || d > opt.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %s out of range", attempt, d)
		}
	}
}

func TestSkippedRunIsNotAFailure(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, RetryMax: 3})
	var calls atomic.Int32
	err := s.Enqueue(Task{Name: "cycle", Opt: TaskOptions{RetryBase: time.Millisecond}, Run: func(ctx context.Context) error {
		calls.Add(1)
		return Skipped(errors.New("cycle in flight"))
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	h := s.Snapshot().History[0]
	if calls.Load() != 1 || h.Error != "" || h.Skipped != "cycle in flight" {
		t.Fatalf("calls=%d history=%+v", calls.Load(), h)
	}
	if !IsSkipped(Skipped(errors.New("x"))) || IsNoRetry(Skipped(errors.New("x"))) || Skipped(nil) != nil {
		t.Fatal("classification mismatch")
	}
}
