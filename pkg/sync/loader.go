package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// LoadStats is the tally one load pass returns.
type LoadStats struct {
	New       int
	Updated   int
	Errors    int
	RowErrors []apperrors.RowError
}

// Loader writes normalized rows into a target. SQL targets get a
// key-presence split into inserts and updates, applied in sub-batches;
// SQL Server targets get a temp-table stage plus a single MERGE inside one
// transaction. File targets are replaced wholesale.
type Loader struct {
	batchSize int
	logger    *zap.Logger
}

// NewLoader creates a Loader. batchSize caps the rows per INSERT statement.
func NewLoader(batchSize int, logger *zap.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Loader{batchSize: batchSize, logger: logger}
}

// LoadSQL writes rows into a SQL target table. A statement failure aborts
// the remaining rows for this table; sub-batches committed before the
// failure are not rolled back and stay reconcilable through the audit trail.
func (l *Loader) LoadSQL(ctx context.Context, target connector.SQLConnector, table string, schema *models.CanonicalSchema, rows []models.Row) (LoadStats, error) {
	if len(rows) == 0 {
		return LoadStats{}, nil
	}

	existing, err := l.existingKeys(ctx, target, table, schema)
	if err != nil {
		return LoadStats{}, &apperrors.LoadError{Table: table, Stage: "key scan", Cause: err}
	}

	var inserts, updates []models.Row
	for _, row := range rows {
		if existing[schema.RecordKey(row)] {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}

	if target.Dialect() == sqlutil.DialectSQLServer {
		if err := l.stageAndMerge(ctx, target, table, schema, rows); err != nil {
			return LoadStats{}, err
		}
		return LoadStats{New: len(inserts), Updated: len(updates)}, nil
	}

	stats := LoadStats{}
	d := target.Dialect()

	batch := l.effectiveBatch(d, len(schema.FieldNames()))
	for start := 0; start < len(inserts); start += batch {
		end := min(start+batch, len(inserts))
		query, params := sqlutil.BulkInsert(d, table, schema.FieldNames(), inserts[start:end])
		if _, err := target.Exec(ctx, query, params...); err != nil {
			stats.Errors += len(inserts) - start
			return stats, &apperrors.LoadError{Table: table, Stage: "insert", Cause: err}
		}
		stats.New += end - start
	}

	nonKey := schema.NonKeyFields()
	keys := schema.KeyFields()
	for i, row := range updates {
		query, params := sqlutil.KeyedUpdate(d, table, nonKey, keys, row)
		if _, err := target.Exec(ctx, query, params...); err != nil {
			stats.Errors += len(updates) - i
			return stats, &apperrors.LoadError{Table: table, Stage: "update", Cause: err}
		}
		stats.Updated++
	}

	return stats, nil
}

// stageAndMerge loads rows through a session-scoped temp table and one
// MERGE keyed on the canonical primary key. The matched branch rewrites
// all non-key columns. Everything runs in one transaction so the temp
// table survives until the MERGE commits.
func (l *Loader) stageAndMerge(ctx context.Context, target connector.SQLConnector, table string, schema *models.CanonicalSchema, rows []models.Row) error {
	tx, err := target.BeginTx(ctx)
	if err != nil {
		return &apperrors.LoadError{Table: table, Stage: "begin", Cause: err}
	}
	defer tx.Rollback() //nolint:errcheck // rollback on defer is best-effort

	columns := schema.FieldNames()
	if _, err := tx.Exec(ctx, sqlutil.CreateStageTable(table, columns, rows[0])); err != nil {
		return &apperrors.LoadError{Table: table, Stage: "stage create", Cause: err}
	}

	stage := sqlutil.StageTableName(table)
	batch := l.effectiveBatch(sqlutil.DialectSQLServer, len(columns))
	for start := 0; start < len(rows); start += batch {
		end := min(start+batch, len(rows))
		query, params := sqlutil.BulkInsert(sqlutil.DialectSQLServer, stage, columns, rows[start:end])
		if _, err := tx.Exec(ctx, query, params...); err != nil {
			return &apperrors.LoadError{Table: table, Stage: "stage insert", Cause: err}
		}
	}

	merge := sqlutil.MergeFromStage(table, schema.KeyFields(), schema.NonKeyFields())
	if _, err := tx.Exec(ctx, merge); err != nil {
		return &apperrors.LoadError{Table: table, Stage: "merge", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &apperrors.LoadError{Table: table, Stage: "commit", Cause: err}
	}
	return nil
}

// effectiveBatch shrinks the configured batch so rows*columns stays under
// the dialect's bind-parameter limit.
func (l *Loader) effectiveBatch(d sqlutil.Dialect, columns int) int {
	batch := l.batchSize
	if columns > 0 {
		if limit := d.MaxParams() / columns; limit < batch {
			batch = limit
		}
	}
	return max(batch, 1)
}

// LoadFile replaces a file target's contents wholesale.
func (l *Loader) LoadFile(ctx context.Context, target connector.FileConnector, schema *models.CanonicalSchema, rows []models.Row) (LoadStats, error) {
	if err := target.ReplaceAll(ctx, schema.FieldNames(), rows); err != nil {
		return LoadStats{Errors: len(rows)}, &apperrors.LoadError{Table: target.Path(), Stage: "replace", Cause: err}
	}
	return LoadStats{New: len(rows)}, nil
}

func (l *Loader) existingKeys(ctx context.Context, target connector.SQLConnector, table string, schema *models.CanonicalSchema) (map[string]bool, error) {
	rows, _, err := target.Query(ctx, sqlutil.KeySelect(target.Dialect(), table, schema.KeyFields()))
	if err != nil {
		return nil, fmt.Errorf("failed to scan existing keys: %w", err)
	}
	keys := make(map[string]bool, len(rows))
	for _, row := range rows {
		keys[schema.RecordKey(row)] = true
	}
	return keys, nil
}
