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

// JobRepository defines data access for sync jobs. Status transitions are
// enforced with conditional updates so two workers can never move the same
// job out of order.
type JobRepository interface {
	// Create inserts a new job in pending state.
	Create(ctx context.Context, job *models.SyncJob) error

	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)

	// List retrieves jobs, newest first. An empty status means all statuses.
	List(ctx context.Context, status models.JobStatus, limit, offset int) ([]*models.SyncJob, error)

	// MarkRunning transitions pending -> running and stamps started_at.
	// Returns ErrConflict if the job was not pending.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// MarkTerminal transitions running -> a terminal status and persists the
	// final counters. Returns ErrConflict if the job was not running.
	MarkTerminal(ctx context.Context, job *models.SyncJob, status models.JobStatus) error

	// Cancel transitions pending or running -> cancelled. Returns
	// ErrJobNotCancellable when the job is already terminal.
	Cancel(ctx context.Context, id uuid.UUID) error

	// UpdateProgress persists intermediate counters on a running job.
	UpdateProgress(ctx context.Context, job *models.SyncJob) error
}

type jobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *database.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, type, status, source_id, target_id, submitted_by,
	total_records, processed_records, new_records, updated_records,
	error_records, conflict_records, row_errors, error_details,
	created_at, started_at, ended_at`

func (r *jobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now()

	query := `
		INSERT INTO sync_jobs (id, type, status, source_id, target_id, submitted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.Type, job.Status, job.SourceID, job.TargetID, job.SubmittedBy, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) List(ctx context.Context, status models.JobStatus, limit, offset int) ([]*models.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM sync_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`

	result, err := r.db.Exec(ctx, query, id, models.JobStatusRunning, time.Now(), models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *jobRepository) MarkTerminal(ctx context.Context, job *models.SyncJob, status models.JobStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	rowErrs, err := marshalRowErrors(job.RowErrors)
	if err != nil {
		return err
	}

	query := `
		UPDATE sync_jobs
		SET status = $2, total_records = $3, processed_records = $4,
			new_records = $5, updated_records = $6, error_records = $7,
			conflict_records = $8, row_errors = $9, error_details = $10,
			ended_at = $11
		WHERE id = $1 AND status = $12`

	result, err := r.db.Exec(ctx, query,
		job.ID, status, job.TotalRecords, job.ProcessedRecords,
		job.NewRecords, job.UpdatedRecords, job.ErrorRecords,
		job.ConflictRecords, rowErrs, job.ErrorDetails,
		time.Now(), models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	job.Status = status
	return nil
}

func (r *jobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status IN ($4, $5)`

	result, err := r.db.Exec(ctx, query,
		id, models.JobStatusCancelled, time.Now(),
		models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish missing from already-terminal.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return apperrors.ErrJobNotCancellable
	}
	return nil
}

func (r *jobRepository) UpdateProgress(ctx context.Context, job *models.SyncJob) error {
	query := `
		UPDATE sync_jobs
		SET total_records = $2, processed_records = $3, new_records = $4,
			updated_records = $5, error_records = $6, conflict_records = $7
		WHERE id = $1 AND status = $8`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.TotalRecords, job.ProcessedRecords, job.NewRecords,
		job.UpdatedRecords, job.ErrorRecords, job.ConflictRecords,
		models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.SyncJob, error) {
	var job models.SyncJob
	var rowErrs []byte
	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &job.SourceID, &job.TargetID,
		&job.SubmittedBy, &job.TotalRecords, &job.ProcessedRecords,
		&job.NewRecords, &job.UpdatedRecords, &job.ErrorRecords,
		&job.ConflictRecords, &rowErrs, &job.ErrorDetails,
		&job.CreatedAt, &job.StartedAt, &job.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rowErrs) > 0 {
		if err := json.Unmarshal(rowErrs, &job.RowErrors); err != nil {
			return nil, fmt.Errorf("failed to decode row errors: %w", err)
		}
	}
	return &job, nil
}

func marshalRowErrors(errs []apperrors.RowError) ([]byte, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row errors: %w", err)
	}
	return data, nil
}

var _ JobRepository = (*jobRepository)(nil)
