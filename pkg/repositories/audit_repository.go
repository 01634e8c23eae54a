package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// AuditRepository is append-only data access for the audit trail.
type AuditRepository interface {
	// Insert records one audit entry.
	Insert(ctx context.Context, entry *models.AuditEntry) error

	// InsertBatch records many entries in one round trip.
	InsertBatch(ctx context.Context, entries []*models.AuditEntry) error

	// Query retrieves entries matching the filter, newest first.
	Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	before, after, err := encodeAuditPayloads(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sync_audit (job_id, actor, action, table_name, record_key, before_data, after_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		entry.JobID, entry.Actor, entry.Action, entry.TableName,
		entry.RecordKey, before, after,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) InsertBatch(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	query := `
		INSERT INTO sync_audit (job_id, actor, action, table_name, record_key, before_data, after_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, entry := range entries {
		before, after, err := encodeAuditPayloads(entry)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query,
			entry.JobID, entry.Actor, entry.Action, entry.TableName,
			entry.RecordKey, before, after); err != nil {
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

func (r *auditRepository) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, job_id, actor, action, table_name, record_key, before_data, after_data, created_at
		FROM sync_audit`

	var args []any
	var where []string
	if q.JobID != uuid.Nil {
		args = append(args, q.JobID)
		where = append(where, fmt.Sprintf("job_id = $%d", len(args)))
	}
	if q.EventType != "" {
		args = append(args, q.EventType)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if q.TableName != "" {
		args = append(args, q.TableName)
		where = append(where, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, q.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var before, after []byte
		err := rows.Scan(&e.ID, &e.JobID, &e.Actor, &e.Action,
			&e.TableName, &e.RecordKey, &before, &after, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, fmt.Errorf("failed to decode before data: %w", err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, fmt.Errorf("failed to decode after data: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

func encodeAuditPayloads(entry *models.AuditEntry) ([]byte, []byte, error) {
	var before, after []byte
	if entry.Before != nil {
		data, err := json.Marshal(entry.Before)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode before data: %w", err)
		}
		before = data
	}
	if entry.After != nil {
		data, err := json.Marshal(entry.After)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode after data: %w", err)
		}
		after = data
	}
	return before, after, nil
}

var _ AuditRepository = (*auditRepository)(nil)
