package connector

import (
	"context"
	"database/sql"
	"time"

	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// SQLConn adapts a database/sql handle to the SQLConnector interface. All
// database backends share this execution path; only DSN construction and
// dialect differ per backend.
type SQLConn struct {
	db      *sql.DB
	kind    models.BackendType
	dialect sqlutil.Dialect
}

// NewSQLConn wraps an opened *sql.DB.
func NewSQLConn(db *sql.DB, kind models.BackendType, dialect sqlutil.Dialect) *SQLConn {
	return &SQLConn{db: db, kind: kind, dialect: dialect}
}

func (c *SQLConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLConn) Kind() models.BackendType { return c.kind }

func (c *SQLConn) Dialect() sqlutil.Dialect { return c.dialect }

func (c *SQLConn) Close() error { return c.db.Close() }

// DB exposes the underlying handle for backend-specific setup.
func (c *SQLConn) DB() *sql.DB { return c.db }

func (c *SQLConn) Query(ctx context.Context, query string, params ...any) ([]models.Row, []string, error) {
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (c *SQLConn) Exec(ctx context.Context, query string, params ...any) (int64, error) {
	result, err := c.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		// Some drivers cannot report row counts for DDL.
		return 0, nil
	}
	return affected, nil
}

func (c *SQLConn) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Query(ctx context.Context, query string, params ...any) ([]models.Row, []string, error) {
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (t *sqlTx) Exec(ctx context.Context, query string, params ...any) (int64, error) {
	result, err := t.tx.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// scanRows converts a sql.Rows cursor into generic rows, normalizing
// driver-specific value types ([]byte to string) so the normalizer sees
// consistent input across backends.
func scanRows(rows *sql.Rows) ([]models.Row, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result []models.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := make(models.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return result, columns, nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val
	default:
		return v
	}
}

var (
	_ SQLConnector = (*SQLConn)(nil)
	_ Tx           = (*sqlTx)(nil)
)
