package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// Resolver settles detected conflicts. A conflict resolves exactly once:
// the repository guards the pending -> resolved transition, so a second
// resolution attempt fails with ErrConflictAlreadyResolved regardless of
// strategy.
type Resolver struct {
	conflicts repositories.ConflictRepository
	changes   repositories.ChangeRepository
	audit     repositories.AuditRepository
	logger    *zap.Logger
}

// NewResolver creates a conflict resolver.
func NewResolver(
	conflicts repositories.ConflictRepository,
	changes repositories.ChangeRepository,
	audit repositories.AuditRepository,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{conflicts: conflicts, changes: changes, audit: audit, logger: logger}
}

// Resolve applies a strategy to a pending conflict:
//
//   - source_wins writes the ledger's view of the record to the target
//   - target_wins keeps the target as is and drops the ledger's view
//   - manual writes the operator-supplied row to the target
//
// In every case the conflict's ledger rows are settled to the archive so
// the record unblocks for future propagation, and the decision lands in
// the audit trail.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID, strategy models.ResolutionStrategy, manual models.Row, resolvedBy string, target connector.SQLConnector) error {
	if !strategy.Valid() {
		return apperrors.ErrUnknownStrategy
	}
	if strategy == models.ResolutionManual && manual == nil {
		return fmt.Errorf("manual resolution requires a resolved payload: %w", apperrors.ErrUnknownStrategy)
	}

	conflict, err := r.conflicts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if conflict.ResolutionStatus != models.ResolutionStatusPending {
		return apperrors.ErrConflictAlreadyResolved
	}

	resolved := resolvedPayload(conflict, strategy, manual)
	if strategy != models.ResolutionTargetWins {
		if err := r.writeResolution(ctx, target, conflict, resolved); err != nil {
			return err
		}
	}

	// The conditional update is the single point of truth for
	// exactly-once; a concurrent resolver loses here.
	if err := r.conflicts.Resolve(ctx, id, strategy, resolved, resolvedBy); err != nil {
		return err
	}

	if err := r.settleLedger(ctx, conflict); err != nil {
		return err
	}

	entry := &models.AuditEntry{
		JobID:     conflict.JobID,
		Actor:     resolvedBy,
		Action:    models.AuditActionResolve,
		TableName: conflict.TableName,
		RecordKey: conflict.RecordKey,
		Before:    conflict.TargetData,
		After:     resolved,
	}
	if err := r.audit.Insert(ctx, entry); err != nil {
		return err
	}

	r.logger.Info("conflict resolved",
		zap.String("conflict_id", id.String()),
		zap.String("strategy", string(strategy)),
		zap.String("resolved_by", resolvedBy))
	return nil
}

// writeResolution pushes the winning payload to the target row, field by
// field so a re-run converges to the same state.
func (r *Resolver) writeResolution(ctx context.Context, target connector.SQLConnector, conflict *models.SyncConflict, resolved models.Row) error {
	if target == nil {
		return fmt.Errorf("no target connection for conflict resolution")
	}
	key := models.ParseRecordKey(conflict.RecordKey)
	d := target.Dialect()

	for field, value := range resolved {
		if _, isKey := key[field]; isKey {
			continue
		}
		query, params := sqlutil.FieldUpdate(d, conflict.TableName, field, value, key)
		if _, err := target.Exec(ctx, query, params...); err != nil {
			return &apperrors.LoadError{Table: conflict.TableName, Stage: "resolution apply", Cause: err}
		}
	}
	return nil
}

// settleLedger archives the record's pending ledger rows so the record is
// no longer blocked.
func (r *Resolver) settleLedger(ctx context.Context, conflict *models.SyncConflict) error {
	pending, err := r.changes.ListUnprocessedForRecord(ctx, conflict.TableName, conflict.RecordKey)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(pending))
	for _, c := range pending {
		ids = append(ids, c.ID)
	}
	return r.changes.Archive(ctx, ids)
}

func resolvedPayload(conflict *models.SyncConflict, strategy models.ResolutionStrategy, manual models.Row) models.Row {
	switch strategy {
	case models.ResolutionSourceWins:
		return conflict.SourceData
	case models.ResolutionTargetWins:
		return conflict.TargetData
	default:
		return manual
	}
}
