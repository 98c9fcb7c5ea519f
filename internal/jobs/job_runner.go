package jobs

import (
	"time"

	"equiprent-backend/internal/config"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/repository"
	"equiprent-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	tenants repository.Tenants
	booking service.BookingService
	config  *config.Config
	now     func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(tenants repository.Tenants, booking service.BookingService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		tenants: tenants,
		booking: booking,
		config:  cfg,
		now:     time.Now,
	}
}

// Config returns the configuration the runner was built with
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every maintenance job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ReleaseCancelledCommitments()
	jr.PurgeReleasedCommitments()
}
