package executor

import (
	"sync"

	"github.com/eapache/queue"
)

// Strand serializes handlers on an Executor.
//
// Handlers posted to the same Strand run in post order and never concurrently
// with each other, whichever worker picks them up. State touched only from a
// strand's handlers needs no further locking.
type Strand struct {
	exec *Executor

	mu      sync.Mutex
	pending *queue.Queue
	running bool
}

// NewStrand binds a new Strand to exec.
func NewStrand(exec *Executor) *Strand {
	return &Strand{
		exec:    exec,
		pending: queue.New(),
	}
}

// Post queues fn to run after every handler posted before it. It never runs fn
// inline and never blocks.
func (s *Strand) Post(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Add(fn)
	if s.running {
		return nil
	}

	if err := s.exec.Submit(s.drain); err != nil {
		s.pending.Remove()
		return err
	}
	s.running = true
	return nil
}

// drain runs queued handlers one by one until the queue is empty.
func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if s.pending.Length() == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.pending.Remove().(func())
		s.mu.Unlock()

		s.invoke(fn)
	}
}

// invoke runs fn, keeping the strand alive if it panics.
func (s *Strand) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.exec.logger.Sugar().Errorf("strand handler panicked: %v", r)
		}
	}()
	fn()
}
