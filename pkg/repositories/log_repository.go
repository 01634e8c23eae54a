package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// LogRepository persists per-job log lines so swallowed row failures stay
// independently discoverable after the job ends.
type LogRepository interface {
	// Insert records one log line.
	Insert(ctx context.Context, log *models.SyncLog) error

	// ListByJob retrieves a job's log lines in capture order.
	ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*models.SyncLog, error)
}

type logRepository struct {
	db *database.DB
}

// NewLogRepository creates a new sync log repository.
func NewLogRepository(db *database.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Insert(ctx context.Context, log *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (job_id, level, table_name, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, log.JobID, log.Level, log.TableName, log.Message).
		Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

func (r *logRepository) ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, job_id, level, table_name, message, created_at
		FROM sync_logs
		WHERE job_id = $1
		ORDER BY created_at, id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.Level, &l.TableName, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}

var _ LogRepository = (*logRepository)(nil)
