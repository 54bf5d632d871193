package tasks

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// ScheduledOrigin is the created_by value of runs started by the [Scheduler].
const ScheduledOrigin = "scheduler"

// Triggerer starts a sync run.
type Triggerer interface {
	Trigger(origin string) (*models.SyncOperation, error)
}

// Scheduler triggers syncs on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	runner   Triggerer
	schedule string
	logger   *log.Logger
	mu       sync.Mutex
	running  bool
}

// NewScheduler validates schedule (standard five-field cron syntax or a descriptor such as "@daily")
// and creates a stopped [Scheduler].
func NewScheduler(schedule string, runner Triggerer, logger *log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("%w: sync schedule %q: %v", shared.ErrInvalidConfig, schedule, err)
	}

	s := &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		schedule: schedule,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.trigger); err != nil {
		return nil, fmt.Errorf("adding sync schedule: %w", err)
	}
	return s, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("sync scheduler started", "schedule", s.schedule, "next", s.Next())
	return nil
}

// Stop gracefully stops the scheduler, waiting for a firing trigger to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("sync scheduler stopped")
}

// Next returns the next firing time as text, or "" when not scheduled.
func (s *Scheduler) Next() string {
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return ""
	}
	return entries[0].Next.Format("2006-01-02 15:04:05 MST")
}

func (s *Scheduler) trigger() {
	op, err := s.runner.Trigger(ScheduledOrigin)
	switch {
	case errors.Is(err, shared.ErrSyncActive):
		s.logger.Info("scheduled sync skipped, a sync is already in progress")
	case err != nil:
		s.logger.Error("scheduled sync failed to start", "error", err)
	default:
		s.logger.Info("scheduled sync queued", "run", op.ID())
	}
}
