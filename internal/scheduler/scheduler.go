// Package scheduler drives the periodic lifecycle sweep and reminder
// dispatch. The scheduler is created once at process start and injected;
// there is no package-level state.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dayobello/gymgate/internal/reminder"
	"github.com/dayobello/gymgate/internal/sweep"
)

// ErrAlreadyRunning means a manual run overlapped an in-flight run of the
// same job.
var ErrAlreadyRunning = errors.New("job already running")

const tickInterval = time.Minute

// Scheduler runs the expiry sweep hourly and the reminder sweep once a day
// at the configured hour. Each job carries its own in-flight guard so a slow
// run is never entered twice.
type Scheduler struct {
	mu        sync.RWMutex
	sweeper   *sweep.Sweeper
	reminders *reminder.Engine
	logger    *slog.Logger

	reminderHour    int
	lastReminderDay string

	sweepInFlight    atomic.Bool
	reminderInFlight atomic.Bool

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. reminderHour is the local hour (0-23) the daily
// reminder sweep fires at.
func New(sweeper *sweep.Sweeper, reminders *reminder.Engine, reminderHour int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:      sweeper,
		reminders:    reminders,
		reminderHour: reminderHour,
		logger:       logger,
		now:          time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	now := s.now()

	// Hourly expiry sweep at the top of each hour (also covers midnight).
	if now.Minute() == 0 {
		if _, err := s.RunSweepNow(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error("scheduled sweep", "error", err)
		}
	}

	// Daily reminder sweep.
	today := now.Format("2006-01-02")
	if now.Hour() == s.reminderHour && s.lastDay() != today {
		s.setLastDay(today)
		if _, err := s.RunRemindersNow(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error("scheduled reminder sweep", "error", err)
		}
	}
}

func (s *Scheduler) lastDay() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReminderDay
}

func (s *Scheduler) setLastDay(day string) {
	s.mu.Lock()
	s.lastReminderDay = day
	s.mu.Unlock()
}

// RunSweepNow runs the lifecycle sweep immediately, e.g. from the admin
// "run now" control. Returns ErrAlreadyRunning if a sweep is in flight.
func (s *Scheduler) RunSweepNow() (sweep.Summary, error) {
	if !s.sweepInFlight.CompareAndSwap(false, true) {
		return sweep.Summary{}, ErrAlreadyRunning
	}
	defer s.sweepInFlight.Store(false)
	return s.sweeper.Run()
}

// RunRemindersNow runs the reminder sweep immediately. Returns
// ErrAlreadyRunning if one is in flight.
func (s *Scheduler) RunRemindersNow() (reminder.Summary, error) {
	if !s.reminderInFlight.CompareAndSwap(false, true) {
		return reminder.Summary{}, ErrAlreadyRunning
	}
	defer s.reminderInFlight.Store(false)
	return s.reminders.Run()
}
