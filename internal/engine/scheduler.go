// Package engine implements the periodic housekeeping scheduler:
// robfig/cron fixed-interval entries driving the limit-switch lockout decrement,
// the hold replan tick, and the idle power-down check.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns a cron.Cron instance and the named periodic jobs
// registered on it.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.RWMutex
}

// NewScheduler constructs an idle Scheduler; call Start to begin running
// registered jobs.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins executing registered jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { s.cron.Stop() }

// AddInterval registers fn to run every interval under name, replacing
// any existing job with the same name.
func (s *Scheduler) AddInterval(name string, interval time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.entries[name]; exists {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	if interval <= 0 {
		return fmt.Errorf("engine: add interval job %q: interval must be positive, got %s", name, interval)
	}
	id := s.cron.Schedule(fixedInterval(interval), cron.FuncJob(fn))
	s.entries[name] = id
	return nil
}

// fixedInterval is a cron.Schedule that fires every d after the previous
// run. cron's own "@every" spec rounds intervals below one second up to a
// full second, which would stretch the millisecond housekeeping ticks.
type fixedInterval time.Duration

// Next implements cron.Schedule.
func (d fixedInterval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Remove cancels a previously registered job.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.entries[name]; exists {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Jobs returns the names of currently registered jobs, for diagnostics.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}
