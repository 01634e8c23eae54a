package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// Config contains SQLite connection options. SQLite backends serve
// standalone training snapshots and local fixtures.
type Config struct {
	Path string
}

// FromMap creates a Config from a generic data source config map.
func FromMap(config map[string]any) (*Config, error) {
	path, ok := config["path"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return &Config{Path: path}, nil
}

// NewConnector opens a SQLite database file.
func NewConnector(ctx context.Context, cfg *Config) (connector.SQLConnector, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// The driver serializes writes; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite connection test failed: %w", err)
	}

	return connector.NewSQLConn(db, models.BackendSQLite, sqlutil.DialectSQLite), nil
}
