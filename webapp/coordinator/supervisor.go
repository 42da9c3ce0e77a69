package coordinator

import (
	"context"
	"log"
	"sync"
)

/**
Supervisor owns the detached background tasks: the log broadcaster and termination waiters.
Each task has a key and at most one task per key runs at a time. Shutdown cancels the
context handed to every task and waits for them all to return.
*/
type Supervisor struct {
	mutex   sync.Mutex
	wg      sync.WaitGroup
	running map[string]struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		running: make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

/**
starts fn in the background under the given key. Returns false without starting anything if a task
with that key is still running or the supervisor has been shut down.
*/
func (s *Supervisor) Go(key string, fn func(ctx context.Context)) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.ctx.Err() != nil {
		log.Printf("WARNING Supervisor not starting %s, shutting down", key)
		return false
	}
	if _, exists := s.running[key]; exists {
		log.Printf("DEBUG Supervisor task %s is already running", key)
		return false
	}

	s.running[key] = struct{}{}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finished(key)
		fn(s.ctx)
	}()
	return true
}

func (s *Supervisor) finished(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.running, key)
}

func (s *Supervisor) IsRunning(key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, exists := s.running[key]
	return exists
}

/**
blocks until every task started so far has returned
*/
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
