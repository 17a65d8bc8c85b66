package executor

import (
	"errors"
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

// ErrExecutorClosed is returned by Submit once Close has been called.
var ErrExecutorClosed = errors.New("executor is closed")

// TaskFunc is a unit of work run by an Executor.
type TaskFunc func()

// Executor runs submitted tasks on a fixed pool of worker goroutines.
//
// Tasks are taken from an unbounded FIFO queue so Submit never blocks. Tasks
// submitted from different goroutines may run concurrently; use a Strand to
// serialize related tasks.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	closed  bool
	workers int
	wg      sync.WaitGroup
	logger  *zap.Logger
}

var (
	defaultOnce sync.Once
	defaultExec *Executor
)

// Default returns the process-wide executor shared by clients that do not
// supply their own. It runs one worker per CPU and is never closed.
func Default() *Executor {
	defaultOnce.Do(func() {
		defaultExec = New(runtime.NumCPU(), nil)
	})
	return defaultExec
}

// New creates an Executor with numWorkers goroutines. A non-positive count uses
// runtime.NumCPU(). A nil logger disables logging of recovered panics.
func New(numWorkers int, logger *zap.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		tasks:   queue.New(),
		workers: numWorkers,
		logger:  logger,
	}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.run(i)
	}
	return e
}

// Submit enqueues a task. Returns ErrExecutorClosed if the executor is closed.
func (e *Executor) Submit(task TaskFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}
	e.tasks.Add(task)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return e.workers
}

// Close stops accepting tasks, lets the workers drain the queue and waits for
// them to exit. It must not be called from a task.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Executor) run(id int) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.tasks.Length() == 0 {
			// closed and drained
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()

		e.safeExecute(id, task)
	}
}

func (e *Executor) safeExecute(id int, task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	task()
}
