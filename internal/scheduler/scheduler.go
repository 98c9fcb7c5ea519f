package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"equiprent-backend/internal/jobs"
	"equiprent-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// UTC with seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	if _, err := s.cron.AddFunc(cfg.ReleaseCancelled, s.jobs.ReleaseCancelledCommitments); err != nil {
		logger.Error("Failed to register ReleaseCancelledCommitments job", "error", err)
		return err
	}
	if _, err := s.cron.AddFunc(cfg.PurgeReleased, s.jobs.PurgeReleasedCommitments); err != nil {
		logger.Error("Failed to register PurgeReleasedCommitments job", "error", err)
		return err
	}

	logger.Info("All cron jobs registered successfully", "count", len(s.cron.Entries()))
	return nil
}

// Entries lists the registered jobs with their next run time
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if jobs are registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
