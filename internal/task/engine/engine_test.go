package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

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
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSingleWorkerRunsInOrder(t *testing.T) {
	s := startEngine(t, Config{})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		err := s.Submit(context.Background(), Task{
			Name: "ordered",
			Opt:  TaskOptions{Overlap: OverlapAllow},
			Run: func(context.Context) error {
				defer wg.Done()
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Submit(%d) error: %v", i, err)
		}
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestFailureRunsOnceAndIsRecorded(t *testing.T) {
	s := startEngine(t, Config{})
	var runs atomic.Int32
	if err := s.Submit(context.Background(), Task{Name: "notify", Run: func(context.Context) error {
		runs.Add(1)
		return errors.New("telegram down")
	}}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitFor(t, func() bool { return s.Snapshot().Failed == 1 })
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	h := s.Snapshot().History
	if len(h) != 1 || h[0].Error != "telegram down" || h[0].Name != "notify" {
		t.Fatalf("unexpected history: %+v", h)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	s := startEngine(t, Config{})
	_ = s.Submit(context.Background(), Task{Name: "bad", Run: func(context.Context) error { panic("oops") }})
	waitFor(t, func() bool { return s.Snapshot().Failed == 1 })

	var ok atomic.Bool
	_ = s.Submit(context.Background(), Task{Name: "good", Run: func(context.Context) error { ok.Store(true); return nil }})
	waitFor(t, ok.Load)
}

func TestOverlapSkipIfRunning(t *testing.T) {
	s := startEngine(t, Config{})
	release := make(chan struct{})
	started := make(chan struct{})
	st := &RunState{}
	task := Task{Name: "midday", State: st, Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Submit(context.Background(), task); err != nil {
		t.Fatalf("first Submit error: %v", err)
	}
	<-started
	if err := s.Submit(context.Background(), task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Submit error = %v, want ErrOverlapSkip", err)
	}
	close(release)
	waitFor(t, func() bool { return s.Snapshot().Completed == 1 })
}

func TestFullQueueBlocksInsteadOfDropping(t *testing.T) {
	s := startEngine(t, Config{QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})
	allow := TaskOptions{Overlap: OverlapAllow}
	ctx := context.Background()
	_ = s.Submit(ctx, Task{Name: "hold", Opt: allow, Run: func(context.Context) error { close(started); <-block; return nil }})
	<-started
	if err := s.Submit(ctx, Task{Name: "a", Opt: allow, Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("queued Submit error: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := s.Submit(short, Task{Name: "b", Opt: allow, Run: func(context.Context) error { return nil }}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit on full queue = %v, want DeadlineExceeded", err)
	}

	accepted := make(chan error, 1)
	go func() {
		accepted <- s.Submit(ctx, Task{Name: "c", Opt: allow, Run: func(context.Context) error { return nil }})
	}()
	close(block)
	if err := <-accepted; err != nil {
		t.Fatalf("blocked Submit error: %v", err)
	}
	waitFor(t, func() bool { return s.Snapshot().Completed == 3 })
}

func TestSubmitAfterStop(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	ctx := context.Background()
	if err := s.Submit(ctx, Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit before Start = %v, want ErrStopped", err)
	}
	s.Start(ctx)
	s.Stop(ctx)
	if err := s.Submit(ctx, Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Stop = %v, want ErrStopped", err)
	}
}
