package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/database"
)

// Keys under which the engine records its watermarks.
const lastSyncKeyPrefix = "last_sync_time:"

// SettingsRepository is key/value access to engine settings, including the
// per-table last_sync_time watermarks that drive incremental extraction.
type SettingsRepository interface {
	// Get retrieves a setting value. Returns ErrNotFound if unset.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces a setting.
	Set(ctx context.Context, key, value string) error

	// GetLastSyncTime retrieves the watermark for a table. A zero time and
	// nil error mean no watermark has been recorded yet.
	GetLastSyncTime(ctx context.Context, tableName string) (time.Time, error)

	// SetLastSyncTime records the watermark for a table.
	SetLastSyncTime(ctx context.Context, tableName string, t time.Time) error
}

type settingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *database.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM global_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO global_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

func (r *settingsRepository) GetLastSyncTime(ctx context.Context, tableName string) (time.Time, error) {
	value, err := r.Get(ctx, lastSyncKeyPrefix+tableName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last sync watermark for %q: %w", tableName, err)
	}
	return t, nil
}

func (r *settingsRepository) SetLastSyncTime(ctx context.Context, tableName string, t time.Time) error {
	return r.Set(ctx, lastSyncKeyPrefix+tableName, t.Format(time.RFC3339Nano))
}

var _ SettingsRepository = (*settingsRepository)(nil)
