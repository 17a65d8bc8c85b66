package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// TestExecutorRunsTasks tests that every submitted task runs exactly once
func TestExecutorRunsTasks(t *testing.T) {
	t.Parallel()

	e := New(4, zaptest.NewLogger(t))
	defer e.Close()

	const count = 1000
	var ran atomic.Int64
	var wg sync.WaitGroup
	wg.Add(count)

	for i := 0; i < count; i++ {
		if err := e.Submit(func() {
			ran.Add(1)
			wg.Done()
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	waitGroupTimeout(t, &wg, 5*time.Second)

	if got := ran.Load(); got != count {
		t.Errorf("ran %d tasks, want %d", got, count)
	}
}

// TestExecutorDefaultWorkers tests the worker count fallback
func TestExecutorDefaultWorkers(t *testing.T) {
	t.Parallel()

	e := New(0, nil)
	defer e.Close()

	if e.NumWorkers() <= 0 {
		t.Errorf("NumWorkers() = %d, want > 0", e.NumWorkers())
	}
}

// TestExecutorSubmitAfterClose tests that a closed executor rejects tasks
func TestExecutorSubmitAfterClose(t *testing.T) {
	t.Parallel()

	e := New(1, nil)
	e.Close()

	if err := e.Submit(func() {}); err != ErrExecutorClosed {
		t.Errorf("Submit() after Close error = %v, want %v", err, ErrExecutorClosed)
	}

	// Close is idempotent
	e.Close()
}

// TestExecutorCloseDrainsQueue tests that queued tasks still run during Close
func TestExecutorCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	e := New(1, nil)

	block := make(chan struct{})
	var ran atomic.Int64

	e.Submit(func() { <-block })
	for i := 0; i < 10; i++ {
		e.Submit(func() { ran.Add(1) })
	}

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()

	close(block)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}

	if got := ran.Load(); got != 10 {
		t.Errorf("ran %d queued tasks, want 10", got)
	}
}

// TestExecutorRecoversPanics tests that a panicking task does not kill its worker
func TestExecutorRecoversPanics(t *testing.T) {
	t.Parallel()

	e := New(1, zaptest.NewLogger(t))
	defer e.Close()

	e.Submit(func() { panic("boom") })

	done := make(chan struct{})
	e.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestDefaultIsShared(t *testing.T) {
	t.Parallel()

	if Default() != Default() {
		t.Error("Default() returned different executors")
	}
}

func waitGroupTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks")
	}
}

// BenchmarkExecutorSubmit benchmarks task submission
func BenchmarkExecutorSubmit(b *testing.B) {
	e := New(4, nil)
	defer e.Close()

	var wg sync.WaitGroup
	wg.Add(b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Submit(wg.Done)
	}
	wg.Wait()
}
