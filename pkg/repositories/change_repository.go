package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// ChangeRepository is data access for the up-sync ledger and its archive.
// The ledger is append-only: processed rows are never updated in place,
// they are moved to the archive in a single transaction.
type ChangeRepository interface {
	// Append records one field-level mutation.
	Append(ctx context.Context, change *models.ChangeRecord) error

	// ListUnprocessed returns pending ledger rows in capture order.
	ListUnprocessed(ctx context.Context, limit int) ([]*models.ChangeRecord, error)

	// ListUnprocessedForRecord returns every pending ledger row for one
	// record, in capture order, with no row cap.
	ListUnprocessedForRecord(ctx context.Context, tableName, recordKey string) ([]*models.ChangeRecord, error)

	// CountUnprocessed returns the number of pending ledger rows.
	CountUnprocessed(ctx context.Context) (int, error)

	// Archive moves the given ledger rows to the archive and removes them
	// from the live ledger, atomically. A crash leaves either all rows in
	// the ledger or all in the archive, never both or neither.
	Archive(ctx context.Context, ids []int64) error

	// ListArchived returns settled rows, newest first.
	ListArchived(ctx context.Context, limit, offset int) ([]*models.ArchivedChange, error)
}

type changeRepository struct {
	db *database.DB
}

// NewChangeRepository creates a new change ledger repository.
func NewChangeRepository(db *database.DB) ChangeRepository {
	return &changeRepository{db: db}
}

func (r *changeRepository) Append(ctx context.Context, change *models.ChangeRecord) error {
	if change.Date.IsZero() {
		change.Date = time.Now()
	}

	query := `
		INSERT INTO up_sync_data_change (table_name, field_name, record_key, old_value, new_value, action, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		change.TableName, change.FieldName, change.RecordKey,
		change.OldValue, change.NewValue, change.Action, change.Date,
	).Scan(&change.ID)
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	return nil
}

func (r *changeRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.ChangeRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, table_name, field_name, record_key, old_value, new_value, action, date, is_processed
		FROM up_sync_data_change
		WHERE is_processed = FALSE
		ORDER BY date, id
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.ChangeRecord
	for rows.Next() {
		var c models.ChangeRecord
		err := rows.Scan(&c.ID, &c.TableName, &c.FieldName, &c.RecordKey,
			&c.OldValue, &c.NewValue, &c.Action, &c.Date, &c.IsProcessed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}
	return changes, nil
}

func (r *changeRepository) ListUnprocessedForRecord(ctx context.Context, tableName, recordKey string) ([]*models.ChangeRecord, error) {
	query := `
		SELECT id, table_name, field_name, record_key, old_value, new_value, action, date, is_processed
		FROM up_sync_data_change
		WHERE is_processed = FALSE AND table_name = $1 AND record_key = $2
		ORDER BY date, id`

	rows, err := r.db.Query(ctx, query, tableName, recordKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed changes for record: %w", err)
	}
	defer rows.Close()

	var changes []*models.ChangeRecord
	for rows.Next() {
		var c models.ChangeRecord
		err := rows.Scan(&c.ID, &c.TableName, &c.FieldName, &c.RecordKey,
			&c.OldValue, &c.NewValue, &c.Action, &c.Date, &c.IsProcessed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}
	return changes, nil
}

func (r *changeRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM up_sync_data_change WHERE is_processed = FALSE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed changes: %w", err)
	}
	return count, nil
}

func (r *changeRepository) Archive(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	insert := `
		INSERT INTO up_sync_data_change_archive
			(id, table_name, field_name, record_key, old_value, new_value, action, date, is_processed, archived_at)
		SELECT id, table_name, field_name, record_key, old_value, new_value, action, date, TRUE, now()
		FROM up_sync_data_change
		WHERE id = ANY($1)`

	result, err := tx.Exec(ctx, insert, ids)
	if err != nil {
		return fmt.Errorf("failed to copy changes to archive: %w", err)
	}
	if int(result.RowsAffected()) != len(ids) {
		return fmt.Errorf("archive copy affected %d rows, expected %d", result.RowsAffected(), len(ids))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM up_sync_data_change WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete archived changes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit archive move: %w", err)
	}
	return nil
}

func (r *changeRepository) ListArchived(ctx context.Context, limit, offset int) ([]*models.ArchivedChange, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, table_name, field_name, record_key, old_value, new_value, action, date, is_processed, archived_at
		FROM up_sync_data_change_archive
		ORDER BY archived_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.ArchivedChange
	for rows.Next() {
		var c models.ArchivedChange
		err := rows.Scan(&c.ID, &c.TableName, &c.FieldName, &c.RecordKey,
			&c.OldValue, &c.NewValue, &c.Action, &c.Date, &c.IsProcessed, &c.ArchivedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archived change: %w", err)
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived changes: %w", err)
	}
	return changes, nil
}

var _ ChangeRepository = (*changeRepository)(nil)
