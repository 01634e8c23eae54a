package services

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/sync"
)

// Executor runs one job to completion. The cancel check must be consulted
// between pipeline steps.
type Executor interface {
	Execute(ctx context.Context, job *models.SyncJob, cancelled sync.CancelCheck) error
}

// jobHandle carries the cooperative cancel flag for a queued or running
// job. The flag, not context cancellation, is what stops a job: in-flight
// statements always finish so cancellation lands on a step boundary.
type jobHandle struct {
	cancelled atomic.Bool
}

// Dispatcher executes jobs strictly one at a time in submission order. A
// single worker goroutine drains a FIFO channel, so two jobs can never
// write the same table concurrently.
type Dispatcher struct {
	jobs     repositories.JobRepository
	executor Executor
	logger   *zap.Logger

	queue   chan uuid.UUID
	handles map[uuid.UUID]*jobHandle
	mu      stdsync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given queue capacity.
func NewDispatcher(jobs repositories.JobRepository, executor Executor, capacity int, logger *zap.Logger) *Dispatcher {
	if capacity <= 0 {
		capacity = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		jobs:     jobs,
		executor: executor,
		logger:   logger.Named("dispatcher"),
		queue:    make(chan uuid.UUID, capacity),
		handles:  make(map[uuid.UUID]*jobHandle),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop signals the worker and waits for the in-flight job to finish its
// current step.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Enqueue queues a pending job for execution. Returns an error when the
// queue is full rather than blocking the caller.
func (d *Dispatcher) Enqueue(jobID uuid.UUID) error {
	d.mu.Lock()
	d.handles[jobID] = &jobHandle{}
	d.mu.Unlock()

	select {
	case d.queue <- jobID:
		d.logger.Info("job enqueued", zap.String("job_id", jobID.String()), zap.Int("depth", len(d.queue)))
		return nil
	default:
		d.mu.Lock()
		delete(d.handles, jobID)
		d.mu.Unlock()
		return fmt.Errorf("job queue is full")
	}
}

// RequestCancel flips the cooperative cancel flag for a job. The caller is
// responsible for the status transition; the flag only makes the worker
// stop at the next step boundary.
func (d *Dispatcher) RequestCancel(jobID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handles[jobID]; ok {
		h.cancelled.Store(true)
	}
}

// QueueDepth returns the number of jobs waiting behind the current one.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case jobID := <-d.queue:
			d.process(jobID)
		}
	}
}

func (d *Dispatcher) process(jobID uuid.UUID) {
	defer func() {
		d.mu.Lock()
		delete(d.handles, jobID)
		d.mu.Unlock()
	}()

	d.mu.Lock()
	handle := d.handles[jobID]
	d.mu.Unlock()
	if handle == nil {
		handle = &jobHandle{}
	}

	job, err := d.jobs.GetByID(d.ctx, jobID)
	if err != nil {
		d.logger.Error("queued job vanished", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	// A job cancelled while still queued never starts.
	if job.Status != models.JobStatusPending {
		d.logger.Info("skipping job not in pending state",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)))
		return
	}
	if err := d.jobs.MarkRunning(d.ctx, jobID); err != nil {
		d.logger.Warn("failed to start job", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	job.Status = models.JobStatusRunning

	d.logger.Info("job started",
		zap.String("job_id", jobID.String()),
		zap.String("type", string(job.Type)))

	cancelled := func(context.Context) bool {
		return handle.cancelled.Load() || d.ctx.Err() != nil
	}
	execErr := d.executor.Execute(d.ctx, job, cancelled)

	// Finalization uses a fresh context so shutdown doesn't lose the
	// terminal write.
	finCtx := context.Background()
	switch {
	case errors.Is(execErr, sync.ErrCancelled):
		// The status row was already moved to cancelled by the cancel
		// request; nothing further to write.
		d.logger.Info("job cancelled", zap.String("job_id", jobID.String()))
	case execErr != nil:
		job.ErrorDetails = execErr.Error()
		var connErr *apperrors.ConnectivityError
		if errors.As(execErr, &connErr) {
			job.ErrorDetails = connErr.Error()
		}
		if err := d.jobs.MarkTerminal(finCtx, job, models.JobStatusFailed); err != nil {
			d.logger.Error("failed to finalize job", zap.String("job_id", jobID.String()), zap.Error(err))
		}
		d.logger.Error("job failed", zap.String("job_id", jobID.String()), zap.Error(execErr))
	default:
		if err := d.jobs.MarkTerminal(finCtx, job, models.JobStatusCompleted); err != nil {
			d.logger.Error("failed to finalize job", zap.String("job_id", jobID.String()), zap.Error(err))
		}
		d.logger.Info("job completed",
			zap.String("job_id", jobID.String()),
			zap.Int("total", job.TotalRecords),
			zap.Int("processed", job.ProcessedRecords),
			zap.Int("errors", job.ErrorRecords))
	}
}
