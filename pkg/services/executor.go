package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/sync"
)

// SyncExecutor resolves a job's backends through the connection manager
// and runs the matching pipeline. Down-sync jobs (full, incremental,
// export) run the engine; up-sync jobs drain the change ledger.
type SyncExecutor struct {
	sources  repositories.DataSourceRepository
	manager  *connector.Manager
	store    connector.SQLConnector
	engine   *sync.Engine
	upsyncer *sync.UpSyncer
	logger   *zap.Logger
}

// NewSyncExecutor creates the executor for all job types. store is the
// internal canonical store, used whenever a job names no external target.
func NewSyncExecutor(
	sources repositories.DataSourceRepository,
	manager *connector.Manager,
	store connector.SQLConnector,
	engine *sync.Engine,
	upsyncer *sync.UpSyncer,
	logger *zap.Logger,
) *SyncExecutor {
	return &SyncExecutor{
		sources:  sources,
		manager:  manager,
		store:    store,
		engine:   engine,
		upsyncer: upsyncer,
		logger:   logger,
	}
}

// Execute implements Executor.
func (e *SyncExecutor) Execute(ctx context.Context, job *models.SyncJob, cancelled sync.CancelCheck) error {
	var err error
	switch job.Type {
	case models.JobTypeFull, models.JobTypeIncremental, models.JobTypeExport:
		err = e.runDownSync(ctx, job, cancelled)
	case models.JobTypeUpSync:
		err = e.runUpSync(ctx, job, cancelled)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}

	e.recordSourceHealth(ctx, job, err)
	return err
}

func (e *SyncExecutor) runDownSync(ctx context.Context, job *models.SyncJob, cancelled sync.CancelCheck) error {
	source, err := e.connect(ctx, job.SourceID)
	if err != nil {
		return err
	}

	target := connector.Connector(e.store)
	if job.TargetID != nil {
		target, err = e.connect(ctx, *job.TargetID)
		if err != nil {
			return err
		}
	}

	results, err := e.engine.Run(ctx, job, source, target, cancelled)
	for _, r := range results {
		e.logger.Info("table synced",
			zap.String("job_id", job.ID.String()),
			zap.String("table", r.Table),
			zap.String("status", r.Status),
			zap.Int("records", r.Records),
			zap.Int("new", r.New),
			zap.Int("updated", r.Updated),
			zap.Int("errors", r.Errors))
	}
	return err
}

func (e *SyncExecutor) runUpSync(ctx context.Context, job *models.SyncJob, cancelled sync.CancelCheck) error {
	if job.TargetID == nil {
		return fmt.Errorf("up-sync job names no target backend")
	}
	conn, err := e.connect(ctx, *job.TargetID)
	if err != nil {
		return err
	}
	target, ok := conn.(connector.SQLConnector)
	if !ok {
		return fmt.Errorf("up-sync target %s is not a SQL backend", *job.TargetID)
	}
	return e.upsyncer.Run(ctx, job, target, cancelled)
}

func (e *SyncExecutor) connect(ctx context.Context, id uuid.UUID) (connector.Connector, error) {
	src, err := e.sources.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data source %s: %w", id, err)
	}
	conn, err := e.manager.Connect(ctx, src)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// recordSourceHealth mirrors the job outcome onto the source row: a clean
// run stamps last_sync and restores active, a connectivity failure flips
// the source into error state.
func (e *SyncExecutor) recordSourceHealth(ctx context.Context, job *models.SyncJob, execErr error) {
	var connErr *apperrors.ConnectivityError
	switch {
	case errors.As(execErr, &connErr):
		if err := e.sources.SetStatus(ctx, job.SourceID, models.SourceStatusError); err != nil {
			e.logger.Warn("failed to record source status", zap.Error(err))
		}
	case execErr == nil:
		if err := e.sources.SetLastSync(ctx, job.SourceID, time.Now()); err != nil {
			e.logger.Warn("failed to record last sync", zap.Error(err))
		}
		if err := e.sources.SetStatus(ctx, job.SourceID, models.SourceStatusActive); err != nil {
			e.logger.Warn("failed to record source status", zap.Error(err))
		}
	}
}

var _ Executor = (*SyncExecutor)(nil)
