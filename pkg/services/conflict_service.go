package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/sync"
)

// ConflictService lists detected conflicts and applies operator
// resolutions against the job's target backend.
type ConflictService interface {
	// List retrieves conflicts for a job, optionally filtered by table and
	// resolution status.
	List(ctx context.Context, jobID uuid.UUID, tableName, status string, limit, offset int) ([]*models.SyncConflict, error)

	// Resolve settles one conflict with the given strategy. Manual
	// resolutions carry the operator's row in resolved.
	Resolve(ctx context.Context, jobID, conflictID uuid.UUID, strategy models.ResolutionStrategy, resolved models.Row, resolvedBy string) error
}

type conflictService struct {
	conflicts repositories.ConflictRepository
	jobs      repositories.JobRepository
	sources   repositories.DataSourceRepository
	manager   *connector.Manager
	resolver  *sync.Resolver
	logger    *zap.Logger
}

// NewConflictService creates a conflict service.
func NewConflictService(
	conflicts repositories.ConflictRepository,
	jobs repositories.JobRepository,
	sources repositories.DataSourceRepository,
	manager *connector.Manager,
	resolver *sync.Resolver,
	logger *zap.Logger,
) ConflictService {
	return &conflictService{
		conflicts: conflicts,
		jobs:      jobs,
		sources:   sources,
		manager:   manager,
		resolver:  resolver,
		logger:    logger,
	}
}

func (s *conflictService) List(ctx context.Context, jobID uuid.UUID, tableName, status string, limit, offset int) ([]*models.SyncConflict, error) {
	conflicts, err := s.conflicts.List(ctx, jobID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		return conflicts, nil
	}
	filtered := conflicts[:0]
	for _, c := range conflicts {
		if c.TableName == tableName {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *conflictService) Resolve(ctx context.Context, jobID, conflictID uuid.UUID, strategy models.ResolutionStrategy, resolved models.Row, resolvedBy string) error {
	conflict, err := s.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		return err
	}
	if conflict.JobID != jobID {
		return fmt.Errorf("conflict %s does not belong to job %s", conflictID, jobID)
	}

	target, err := s.targetFor(ctx, conflict.JobID)
	if err != nil {
		return err
	}
	return s.resolver.Resolve(ctx, conflictID, strategy, resolved, resolvedBy, target)
}

// targetFor reconnects to the backend the conflicting job was writing to.
func (s *conflictService) targetFor(ctx context.Context, jobID uuid.UUID) (connector.SQLConnector, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TargetID == nil {
		return nil, fmt.Errorf("job %s has no external target to resolve against", jobID)
	}
	src, err := s.sources.GetByID(ctx, *job.TargetID)
	if err != nil {
		return nil, err
	}
	conn, err := s.manager.Connect(ctx, src)
	if err != nil {
		return nil, err
	}
	target, ok := conn.(connector.SQLConnector)
	if !ok {
		return nil, fmt.Errorf("target %q is not a SQL backend", src.Name)
	}
	return target, nil
}

var _ ConflictService = (*conflictService)(nil)
