// Package scheduler runs the dealer cycle on a wall-clock aligned interval,
// holding a lock so at most one cycle runs at a time.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler invokes a Task every interval, aligned to multiples of the
// interval.
type Scheduler struct {
	interval time.Duration
	task     Task
	locker   Locker
	key      string
	ttl      time.Duration
	logger   *slog.Logger

	// running keeps cycles in this process from overlapping even if the
	// lease expires under a slow cycle.
	running sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config holds the scheduler's knobs.
type Config struct {
	Interval time.Duration
	LockKey  string
	// LockTTL bounds how long a crashed holder blocks other cycles.
	LockTTL time.Duration
}

// New creates a scheduler. A nil locker means a process-local lock.
func New(cfg Config, task Task, locker Locker, logger *slog.Logger) *Scheduler {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "dealer:cycle"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Scheduler{
		interval: cfg.Interval,
		task:     task,
		locker:   locker,
		key:      cfg.LockKey,
		ttl:      cfg.LockTTL,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// RunOnce runs the task under the lock. It returns ErrLocked without
// running the task if another cycle holds the lock.
//
// Once started, the task is not canceled by ctx: a cycle runs to the end.
// It does get a deadline of the lock TTL, so it cannot outlive its lease.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrLocked
	}
	defer s.running.Unlock()

	release, err := s.locker.Acquire(ctx, s.key, s.ttl)
	if err != nil {
		return err
	}
	detached := context.WithoutCancel(ctx)
	defer func() {
		rctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		if err := release(rctx); err != nil {
			s.logger.Warn("cycle lock release failed", "err", err)
		}
	}()

	taskCtx, cancel := context.WithTimeout(detached, s.ttl)
	defer cancel()
	return s.task(taskCtx)
}

func (s *Scheduler) next(now time.Time) time.Duration {
	return now.Truncate(s.interval).Add(s.interval).Sub(now)
}

// Start blocks, running the task at each interval boundary until ctx is
// done or Stop is called. Task errors are logged and do not stop the loop.
// A cycle in progress when ctx is canceled finishes before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	wait := s.next(time.Now())
	s.logger.Info("scheduler started", "interval", s.interval, "first_run_in", wait.Round(time.Millisecond))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-timer.C:
			switch err := s.RunOnce(ctx); {
			case errors.Is(err, ErrLocked):
				s.logger.Info("cycle skipped, lock held elsewhere")
			case err != nil:
				s.logger.Error("cycle failed", "err", err)
			}
			timer.Reset(s.next(time.Now()))
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
