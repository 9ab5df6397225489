/**
 * @description
 * Keyed one-shot timer registry for deadline-triggered deal transitions.
 * The composition root owns a single Scheduler instance and injects it into
 * the lifecycle coordinator; the coordinator only asks to arm or cancel,
 * never touches the underlying timers.
 *
 * Guarantees:
 * - at most one live timer per key at all times
 * - re-submitting a key with an equal fire time is a no-op
 * - a different fire time replaces the previous timer under the same key
 * - cancelling an unknown key is a no-op
 * - the registry entry is removed before the fired callback runs, so a
 *   callback that re-schedules its own key is not treated as already armed
 *
 * The registry is process-local and not durable; the reconciliation pass in
 * internal/app re-derives lost timers from ledger state after a restart.
 *
 * @notes
 * - Timers are stdlib time.AfterFunc behind a small Clock interface so tests
 *   drive firing with a fake clock. robfig/cron serves the recurring
 *   reconciliation schedule instead; its cron expressions cannot express
 *   "fire once at absolute T, replaceable by key".
 */

package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Callback is the ledger action invoked when a job fires. It runs on a fresh
// background context because no inbound request is associated with a
// system-triggered transition.
type Callback func(ctx context.Context)

// Timer is the stoppable handle returned by a Clock.
type Timer interface {
	Stop() bool
}

// Clock abstracts timer creation so tests can substitute a fake clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type job struct {
	fireAt time.Time
	timer  Timer
}

// Scheduler is the keyed registry of one-shot jobs.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	logger *slog.Logger
	jobs   map[string]*job
}

// New creates a scheduler backed by the real clock.
func New(logger *slog.Logger) *Scheduler {
	return NewWithClock(logger, realClock{})
}

// NewWithClock creates a scheduler with an explicit clock (tests).
func NewWithClock(logger *slog.Logger, clock Clock) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Schedule arms (or re-arms) the job for key to fire at fireAt. Fire times
// in the past fire as soon as the runtime allows; exact firing time is
// best-effort.
func (s *Scheduler) Schedule(key string, fireAt time.Time, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[key]; ok {
		if existing.fireAt.Equal(fireAt) {
			s.logger.Debug("job already armed", "key", key, "fire_at", fireAt)
			return
		}
		existing.timer.Stop()
		delete(s.jobs, key)
		s.logger.Info("job replaced", "key", key, "fire_at", fireAt)
	} else {
		s.logger.Info("job armed", "key", key, "fire_at", fireAt)
	}

	delay := fireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}

	armed := &job{fireAt: fireAt}
	armed.timer = s.clock.AfterFunc(delay, func() {
		s.fire(key, armed, fn)
	})
	s.jobs[key] = armed
}

// Cancel stops and removes the job for key. Cancelling cannot interrupt a
// callback already mid-flight; it only prevents a future fire.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[key]
	if !ok {
		return
	}
	existing.timer.Stop()
	delete(s.jobs, key)
	s.logger.Info("job cancelled", "key", key)
}

// Keys returns all currently armed keys, for diagnostics.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.jobs))
	for key := range s.jobs {
		keys = append(keys, key)
	}
	return keys
}

// Contains reports whether a job is armed for key.
func (s *Scheduler) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// Shutdown cancels every armed job. In-flight callbacks keep running.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, armed := range s.jobs {
		armed.timer.Stop()
		delete(s.jobs, key)
	}
}

func (s *Scheduler) fire(key string, armed *job, fn Callback) {
	s.mu.Lock()
	if current, ok := s.jobs[key]; !ok || current != armed {
		// Replaced or cancelled between the timer firing and us acquiring
		// the lock; the newer owner of the key wins.
		s.mu.Unlock()
		return
	}
	delete(s.jobs, key)
	s.mu.Unlock()

	s.logger.Info("job fired", "key", key, "fire_at", armed.fireAt)
	fn(context.Background())
}
