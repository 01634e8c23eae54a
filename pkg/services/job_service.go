package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
)

// JobService owns the job lifecycle: submission, status, cancellation,
// and the per-job log trail.
type JobService interface {
	// Submit creates a pending job and queues it for execution.
	Submit(ctx context.Context, jobType models.JobType, sourceID uuid.UUID, targetID *uuid.UUID, submittedBy string) (*models.SyncJob, error)

	// Get retrieves a job with its current counters.
	Get(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)

	// List retrieves jobs, newest first, optionally filtered by status.
	List(ctx context.Context, status models.JobStatus, limit, offset int) ([]*models.SyncJob, error)

	// Cancel requests cancellation. Pending jobs never start; running jobs
	// stop at the next step boundary. Terminal jobs are rejected with
	// ErrJobNotCancellable.
	Cancel(ctx context.Context, id uuid.UUID) error

	// Logs retrieves a job's persisted log lines.
	Logs(ctx context.Context, id uuid.UUID, limit int) ([]*models.SyncLog, error)
}

type jobService struct {
	jobs       repositories.JobRepository
	logs       repositories.LogRepository
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewJobService creates a job service backed by the FIFO dispatcher.
func NewJobService(jobs repositories.JobRepository, logs repositories.LogRepository, dispatcher *Dispatcher, logger *zap.Logger) JobService {
	return &jobService{jobs: jobs, logs: logs, dispatcher: dispatcher, logger: logger}
}

func (s *jobService) Submit(ctx context.Context, jobType models.JobType, sourceID uuid.UUID, targetID *uuid.UUID, submittedBy string) (*models.SyncJob, error) {
	job := &models.SyncJob{
		Type:        jobType,
		SourceID:    sourceID,
		TargetID:    targetID,
		SubmittedBy: submittedBy,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Enqueue(job.ID); err != nil {
		// The job row stays for the record, marked failed so it is never
		// picked up later.
		job.ErrorDetails = err.Error()
		if markErr := s.jobs.MarkRunning(ctx, job.ID); markErr == nil {
			_ = s.jobs.MarkTerminal(ctx, job, models.JobStatusFailed)
		}
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(jobType)),
		zap.String("submitted_by", submittedBy))
	return job, nil
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *jobService) List(ctx context.Context, status models.JobStatus, limit, offset int) ([]*models.SyncJob, error) {
	return s.jobs.List(ctx, status, limit, offset)
}

func (s *jobService) Cancel(ctx context.Context, id uuid.UUID) error {
	// The conditional update settles who wins a race with completion; the
	// dispatcher flag is only advisory after that.
	if err := s.jobs.Cancel(ctx, id); err != nil {
		return err
	}
	s.dispatcher.RequestCancel(id)
	s.logger.Info("job cancellation requested", zap.String("job_id", id.String()))
	return nil
}

func (s *jobService) Logs(ctx context.Context, id uuid.UUID, limit int) ([]*models.SyncLog, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.logs.ListByJob(ctx, id, limit)
}

var _ JobService = (*jobService)(nil)
