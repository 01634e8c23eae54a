package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// ConflictRepository is data access for detected sync conflicts.
type ConflictRepository interface {
	// Create records a newly detected conflict in pending state.
	Create(ctx context.Context, conflict *models.SyncConflict) error

	// GetByID retrieves a conflict by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncConflict, error)

	// List retrieves conflicts, optionally filtered by job and status.
	List(ctx context.Context, jobID uuid.UUID, status string, limit, offset int) ([]*models.SyncConflict, error)

	// Resolve marks a pending conflict resolved with the chosen strategy and
	// payload. Returns ErrConflictAlreadyResolved if it was not pending.
	Resolve(ctx context.Context, id uuid.UUID, strategy models.ResolutionStrategy, resolved models.Row, resolvedBy string) error

	// HasPending reports whether a (table, key) pair has an unresolved
	// conflict; such records are excluded from further propagation.
	HasPending(ctx context.Context, tableName, recordKey string) (bool, error)
}

type conflictRepository struct {
	db *database.DB
}

// NewConflictRepository creates a new conflict repository.
func NewConflictRepository(db *database.DB) ConflictRepository {
	return &conflictRepository{db: db}
}

const conflictColumns = `id, job_id, table_name, record_key, source_data, target_data,
	resolution_status, resolution_type, resolved_data, resolved_by, resolved_at, created_at`

func (r *conflictRepository) Create(ctx context.Context, conflict *models.SyncConflict) error {
	if conflict.ID == uuid.Nil {
		conflict.ID = uuid.New()
	}
	conflict.ResolutionStatus = models.ResolutionStatusPending
	conflict.CreatedAt = time.Now()

	source, err := json.Marshal(conflict.SourceData)
	if err != nil {
		return fmt.Errorf("failed to encode source data: %w", err)
	}
	target, err := json.Marshal(conflict.TargetData)
	if err != nil {
		return fmt.Errorf("failed to encode target data: %w", err)
	}

	query := `
		INSERT INTO sync_conflicts (id, job_id, table_name, record_key, source_data, target_data, resolution_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		conflict.ID, conflict.JobID, conflict.TableName, conflict.RecordKey,
		source, target, conflict.ResolutionStatus, conflict.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

func (r *conflictRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts WHERE id = $1`

	conflict, err := scanConflict(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return conflict, nil
}

func (r *conflictRepository) List(ctx context.Context, jobID uuid.UUID, status string, limit, offset int) ([]*models.SyncConflict, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts`
	var args []any
	var where []string
	if jobID != uuid.Nil {
		args = append(args, jobID)
		where = append(where, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("resolution_status = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*models.SyncConflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func (r *conflictRepository) Resolve(ctx context.Context, id uuid.UUID, strategy models.ResolutionStrategy, resolved models.Row, resolvedBy string) error {
	var resolvedData []byte
	if resolved != nil {
		data, err := json.Marshal(resolved)
		if err != nil {
			return fmt.Errorf("failed to encode resolved data: %w", err)
		}
		resolvedData = data
	}

	query := `
		UPDATE sync_conflicts
		SET resolution_status = $2, resolution_type = $3, resolved_data = $4,
			resolved_by = $5, resolved_at = $6
		WHERE id = $1 AND resolution_status = $7`

	result, err := r.db.Exec(ctx, query,
		id, models.ResolutionStatusResolved, strategy, resolvedData,
		resolvedBy, time.Now(), models.ResolutionStatusPending)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrConflictAlreadyResolved
	}
	return nil
}

func (r *conflictRepository) HasPending(ctx context.Context, tableName, recordKey string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sync_conflicts
			WHERE table_name = $1 AND record_key = $2 AND resolution_status = $3
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, tableName, recordKey, models.ResolutionStatusPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending conflict: %w", err)
	}
	return exists, nil
}

func scanConflict(row rowScanner) (*models.SyncConflict, error) {
	var c models.SyncConflict
	var source, target, resolved []byte
	var resolutionType, resolvedBy *string
	err := row.Scan(
		&c.ID, &c.JobID, &c.TableName, &c.RecordKey, &source, &target,
		&c.ResolutionStatus, &resolutionType, &resolved, &resolvedBy,
		&c.ResolvedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(source, &c.SourceData); err != nil {
		return nil, fmt.Errorf("failed to decode source data: %w", err)
	}
	if err := json.Unmarshal(target, &c.TargetData); err != nil {
		return nil, fmt.Errorf("failed to decode target data: %w", err)
	}
	if len(resolved) > 0 {
		if err := json.Unmarshal(resolved, &c.ResolvedData); err != nil {
			return nil, fmt.Errorf("failed to decode resolved data: %w", err)
		}
	}
	if resolutionType != nil {
		c.ResolutionType = models.ResolutionStrategy(*resolutionType)
	}
	if resolvedBy != nil {
		c.ResolvedBy = *resolvedBy
	}
	return &c, nil
}

var _ ConflictRepository = (*conflictRepository)(nil)
