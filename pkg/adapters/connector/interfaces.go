package connector

import (
	"context"

	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// Connector is the minimal surface every backend implements. Each
// implementation owns its connection and must be closed when done.
type Connector interface {
	// Ping verifies the backend is reachable with valid credentials.
	Ping(ctx context.Context) error

	// Kind returns the backend type this connector serves.
	Kind() models.BackendType

	// Close releases the backend connection.
	Close() error
}

// SQLConnector is implemented by database-backed connectors. Query is the
// only read primitive and Exec the only write primitive; dialect-specific
// SQL differences are hidden behind Dialect().
type SQLConnector interface {
	Connector

	// Query runs a SELECT and returns rows plus column order.
	Query(ctx context.Context, query string, params ...any) ([]models.Row, []string, error)

	// Exec runs a DML/DDL statement and returns rows affected.
	Exec(ctx context.Context, query string, params ...any) (int64, error)

	// BeginTx starts a transaction. SQL Server staging loads need one so
	// the session-scoped temp table survives until the MERGE commits.
	BeginTx(ctx context.Context) (Tx, error)

	// Dialect reports placeholder style and identifier quoting.
	Dialect() sqlutil.Dialect
}

// Tx is a minimal transaction handle.
type Tx interface {
	Query(ctx context.Context, query string, params ...any) ([]models.Row, []string, error)
	Exec(ctx context.Context, query string, params ...any) (int64, error)
	Commit() error
	Rollback() error
}

// FileConnector is implemented by flat-file backends. File targets are
// replaced wholesale on load.
type FileConnector interface {
	Connector

	// ReadAll extracts every row plus column order from the file.
	ReadAll(ctx context.Context) ([]models.Row, []string, error)

	// ReplaceAll overwrites the destination with the given rows.
	ReplaceAll(ctx context.Context, columns []string, rows []models.Row) error

	// Path returns the backing file path.
	Path() string
}
