// Package scheduler provides a named-timer action table.
//
// Each named action supports schedule-once-with-delay (a no-op while already
// scheduled, so the same action is never queued twice), cancellation, and a
// recurring interval variant (a no-op while already running). Firings are
// delivered as action names on a channel so the owner can run every action on
// its own event-loop goroutine.
package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler owns the timer table. Safe for concurrent use; actions
// themselves run wherever the Fires channel is consumed.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	queued  map[string]*time.Timer
	running map[string]chan struct{}
	fires   chan string
	done    chan struct{}
	closed  bool
}

// New creates a scheduler whose Fires channel holds up to buffer pending
// firings.
func New(buffer int, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger:  logger.Named("scheduler"),
		queued:  make(map[string]*time.Timer),
		running: make(map[string]chan struct{}),
		fires:   make(chan string, buffer),
		done:    make(chan struct{}),
	}
}

// Fires returns the channel on which fired action names are delivered.
func (s *Scheduler) Fires() <-chan string {
	return s.fires
}

// Schedule queues a one-shot firing of name after delay. It reports whether
// the action was queued; an already-queued action is left untouched.
func (s *Scheduler) Schedule(name string, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.queued[name]; ok {
		return false
	}

	s.queued[name] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.queued, name)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		// Nothing may drain fires after Shutdown; don't strand the timer
		// goroutine on the send.
		select {
		case s.fires <- name:
		case <-s.done:
		}
	})
	return true
}

// Cancel drops a queued one-shot firing, if any.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.queued[name]; ok {
		t.Stop()
		delete(s.queued, name)
	}
}

// StartInterval begins recurring firings of name every interval. It reports
// whether the interval was started; an already-running interval is left
// untouched.
func (s *Scheduler) StartInterval(name string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.running[name]; ok {
		return false
	}

	stop := make(chan struct{})
	s.running[name] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case s.fires <- name:
				case <-stop:
					return
				}
			}
		}
	}()
	return true
}

// StopInterval stops a recurring firing, if running.
func (s *Scheduler) StopInterval(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.running[name]; ok {
		close(stop)
		delete(s.running, name)
	}
}

// Shutdown cancels every queued and recurring action. The scheduler accepts
// no further work afterwards. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for name, t := range s.queued {
		t.Stop()
		delete(s.queued, name)
	}
	for name, stop := range s.running {
		close(stop)
		delete(s.running, name)
	}
}
