package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// NewConnector opens a SQL Server connection for the given config.
func NewConnector(ctx context.Context, cfg *Config) (connector.SQLConnector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlserver connection test failed: %w", err)
	}

	return connector.NewSQLConn(db, models.BackendSQLServer, sqlutil.DialectSQLServer), nil
}
