package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// DataSourceRepository is data access for configured backends. Removal is
// a soft delete so job history stays resolvable.
type DataSourceRepository interface {
	// Create inserts a new data source. Returns ErrConflict if the name is taken.
	Create(ctx context.Context, src *models.DataSourceConfig) error

	// GetByID retrieves a live (non-deleted) data source by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSourceConfig, error)

	// List retrieves all live data sources.
	List(ctx context.Context) ([]*models.DataSourceConfig, error)

	// Update replaces the configurable fields of a data source.
	Update(ctx context.Context, src *models.DataSourceConfig) error

	// SetStatus records the engine-observed health of a source.
	SetStatus(ctx context.Context, id uuid.UUID, status string) error

	// SetLastSync stamps the source's last successful sync time.
	SetLastSync(ctx context.Context, id uuid.UUID, t time.Time) error

	// Delete soft-deletes a data source.
	Delete(ctx context.Context, id uuid.UUID) error
}

type dataSourceRepository struct {
	db *database.DB
}

// NewDataSourceRepository creates a new data source repository.
func NewDataSourceRepository(db *database.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

const dataSourceColumns = `id, name, backend, config, refresh_interval_seconds,
	enabled, status, last_sync, created_at, updated_at, deleted_at`

func (r *dataSourceRepository) Create(ctx context.Context, src *models.DataSourceConfig) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	now := time.Now()
	src.CreatedAt = now
	src.UpdatedAt = now
	if src.Status == "" {
		src.Status = models.SourceStatusActive
	}

	config, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("failed to encode source config: %w", err)
	}

	query := `
		INSERT INTO integration_data_sources
			(id, name, backend, config, refresh_interval_seconds, enabled, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		src.ID, src.Name, src.Backend, config,
		int(src.RefreshInterval.Seconds()), src.Enabled, src.Status,
		src.CreatedAt, src.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create data source: %w", err)
	}
	return nil
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSourceConfig, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM integration_data_sources WHERE id = $1 AND deleted_at IS NULL`

	src, err := scanDataSource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return src, nil
}

func (r *dataSourceRepository) List(ctx context.Context) ([]*models.DataSourceConfig, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM integration_data_sources WHERE deleted_at IS NULL ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSourceConfig
	for rows.Next() {
		src, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}
	return sources, nil
}

func (r *dataSourceRepository) Update(ctx context.Context, src *models.DataSourceConfig) error {
	config, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("failed to encode source config: %w", err)
	}

	query := `
		UPDATE integration_data_sources
		SET name = $2, backend = $3, config = $4, refresh_interval_seconds = $5,
			enabled = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query,
		src.ID, src.Name, src.Backend, config,
		int(src.RefreshInterval.Seconds()), src.Enabled, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE integration_data_sources SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set source status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) SetLastSync(ctx context.Context, id uuid.UUID, t time.Time) error {
	query := `UPDATE integration_data_sources SET last_sync = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query, id, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE integration_data_sources SET deleted_at = $2, enabled = FALSE WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanDataSource(row rowScanner) (*models.DataSourceConfig, error) {
	var src models.DataSourceConfig
	var config []byte
	var refreshSeconds int
	err := row.Scan(
		&src.ID, &src.Name, &src.Backend, &config, &refreshSeconds,
		&src.Enabled, &src.Status, &src.LastSync,
		&src.CreatedAt, &src.UpdatedAt, &src.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	src.RefreshInterval = time.Duration(refreshSeconds) * time.Second
	if len(config) > 0 {
		if err := json.Unmarshal(config, &src.Config); err != nil {
			return nil, fmt.Errorf("failed to decode source config: %w", err)
		}
	}
	return &src, nil
}

var _ DataSourceRepository = (*dataSourceRepository)(nil)
