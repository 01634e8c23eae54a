package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// TableConfigRepository is data access for per-table sync configuration
// and per-field mapping overrides.
type TableConfigRepository interface {
	// ListEnabled returns enabled table configurations in processing order.
	ListEnabled(ctx context.Context) ([]*models.TableConfiguration, error)

	// GetByTable retrieves the configuration for one table.
	GetByTable(ctx context.Context, tableName string) (*models.TableConfiguration, error)

	// Upsert creates or replaces a table configuration.
	Upsert(ctx context.Context, cfg *models.TableConfiguration) error

	// FieldOverrides returns the canonical-field -> source-column overrides
	// configured for a table.
	FieldOverrides(ctx context.Context, tableName string) (map[string]string, error)

	// UpsertFieldOverride creates or replaces one field mapping override.
	UpsertFieldOverride(ctx context.Context, fc *models.FieldConfiguration) error
}

type tableConfigRepository struct {
	db *database.DB
}

// NewTableConfigRepository creates a new table configuration repository.
func NewTableConfigRepository(db *database.DB) TableConfigRepository {
	return &tableConfigRepository{db: db}
}

const tableConfigColumns = `id, table_name, record_type, timestamp_field,
	processing_order, filter, enabled, created_at, updated_at`

func (r *tableConfigRepository) ListEnabled(ctx context.Context) ([]*models.TableConfiguration, error) {
	query := `SELECT ` + tableConfigColumns + ` FROM table_configuration WHERE enabled = TRUE ORDER BY processing_order, table_name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list table configurations: %w", err)
	}
	defer rows.Close()

	var configs []*models.TableConfiguration
	for rows.Next() {
		cfg, err := scanTableConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table configurations: %w", err)
	}
	return configs, nil
}

func (r *tableConfigRepository) GetByTable(ctx context.Context, tableName string) (*models.TableConfiguration, error) {
	query := `SELECT ` + tableConfigColumns + ` FROM table_configuration WHERE table_name = $1`

	cfg, err := scanTableConfig(r.db.QueryRow(ctx, query, tableName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get table configuration: %w", err)
	}
	return cfg, nil
}

func (r *tableConfigRepository) Upsert(ctx context.Context, cfg *models.TableConfiguration) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}

	query := `
		INSERT INTO table_configuration
			(id, table_name, record_type, timestamp_field, processing_order, filter, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (table_name) DO UPDATE SET
			record_type = EXCLUDED.record_type,
			timestamp_field = EXCLUDED.timestamp_field,
			processing_order = EXCLUDED.processing_order,
			filter = EXCLUDED.filter,
			enabled = EXCLUDED.enabled,
			updated_at = now()`

	_, err := r.db.Exec(ctx, query,
		cfg.ID, cfg.TableName, cfg.RecordType, cfg.TimestampField,
		cfg.ProcessingOrder, cfg.Filter, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("failed to upsert table configuration: %w", err)
	}
	return nil
}

func (r *tableConfigRepository) FieldOverrides(ctx context.Context, tableName string) (map[string]string, error) {
	query := `SELECT canonical_field, source_column FROM field_configuration WHERE table_name = $1`

	rows, err := r.db.Query(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to list field overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var field, column string
		if err := rows.Scan(&field, &column); err != nil {
			return nil, fmt.Errorf("failed to scan field override: %w", err)
		}
		overrides[field] = column
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating field overrides: %w", err)
	}
	return overrides, nil
}

func (r *tableConfigRepository) UpsertFieldOverride(ctx context.Context, fc *models.FieldConfiguration) error {
	if fc.ID == uuid.Nil {
		fc.ID = uuid.New()
	}

	query := `
		INSERT INTO field_configuration (id, table_name, canonical_field, source_column, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (table_name, canonical_field) DO UPDATE SET
			source_column = EXCLUDED.source_column`

	_, err := r.db.Exec(ctx, query, fc.ID, fc.TableName, fc.CanonicalField, fc.SourceColumn)
	if err != nil {
		return fmt.Errorf("failed to upsert field override: %w", err)
	}
	return nil
}

func scanTableConfig(row rowScanner) (*models.TableConfiguration, error) {
	var cfg models.TableConfiguration
	err := row.Scan(
		&cfg.ID, &cfg.TableName, &cfg.RecordType, &cfg.TimestampField,
		&cfg.ProcessingOrder, &cfg.Filter, &cfg.Enabled,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

var _ TableConfigRepository = (*tableConfigRepository)(nil)
