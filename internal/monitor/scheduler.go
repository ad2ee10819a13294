package monitor

import (
	"sync"
	"time"
)

// Scheduler keeps at most one pending callback per key. Scheduling a key
// replaces its previous timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*scheduled
	seq     uint64
	stopped bool
}

type scheduled struct {
	timer *time.Timer
	token uint64
	due   time.Time
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*scheduled)}
}

// Schedule runs fn once after delay unless the key is rescheduled or
// cancelled first. It reports false after Stop.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) bool {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	token := s.seq
	entry := &scheduled{token: token, due: time.Now().Add(delay)}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current.token != token {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = entry
	return true
}

// Cancel drops the pending callback for key. It reports whether one existed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, key)
	return true
}

// Due returns when key fires next.
func (s *Scheduler) Due(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return entry.due, true
}

// Len returns the number of pending callbacks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels everything and rejects later Schedule calls.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}
