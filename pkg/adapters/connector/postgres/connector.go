package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// NewConnector opens a PostgreSQL/PostGIS connection for the given config.
// Uses the pgx stdlib driver so all external backends share the same
// database/sql execution path.
func NewConnector(ctx context.Context, cfg *Config) (connector.SQLConnector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres connection test failed: %w", err)
	}

	return connector.NewSQLConn(db, models.BackendPostgres, sqlutil.DialectPostgres), nil
}
