package sqlutil

import (
	"fmt"
	"strings"
	"time"
)

// SQLServerType infers a SQL Server column type from an in-memory value.
// Used to build the temporary staging table for a MERGE load.
func SQLServerType(value any) string {
	switch value.(type) {
	case bool:
		return "BIT"
	case int, int32, int64:
		return "BIGINT"
	case float32, float64:
		return "FLOAT"
	case time.Time, *time.Time:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// StageTableName returns the session-scoped temp table name for a target
// table.
func StageTableName(table string) string {
	return "#stage_" + strings.ReplaceAll(table, ".", "_")
}

// CreateStageTable builds a CREATE TABLE for the staging temp table, typed
// from a sample row's in-memory values.
func CreateStageTable(table string, columns []string, sample map[string]any) string {
	d := DialectSQLServer
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", d.QuoteIdentifier(c), SQLServerType(sample[c]))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", StageTableName(table), strings.Join(defs, ", "))
}

// MergeFromStage builds the single MERGE statement applied after all rows
// are staged. The matched branch rewrites all non-key columns; the
// unmatched branch inserts. Keyed on the canonical primary key.
func MergeFromStage(table string, keyColumns, nonKeyColumns []string) string {
	d := DialectSQLServer
	stage := StageTableName(table)

	on := make([]string, len(keyColumns))
	for i, c := range keyColumns {
		on[i] = fmt.Sprintf("target.%s = source.%s", d.QuoteIdentifier(c), d.QuoteIdentifier(c))
	}

	sets := make([]string, len(nonKeyColumns))
	for i, c := range nonKeyColumns {
		sets[i] = fmt.Sprintf("target.%s = source.%s", d.QuoteIdentifier(c), d.QuoteIdentifier(c))
	}

	all := append(append([]string{}, keyColumns...), nonKeyColumns...)
	insertCols := make([]string, len(all))
	insertVals := make([]string, len(all))
	for i, c := range all {
		insertCols[i] = d.QuoteIdentifier(c)
		insertVals[i] = "source." + d.QuoteIdentifier(c)
	}

	return fmt.Sprintf(
		"MERGE %s AS target USING %s AS source ON %s "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		d.QuoteIdentifier(table),
		stage,
		strings.Join(on, " AND "),
		strings.Join(sets, ", "),
		strings.Join(insertCols, ", "),
		strings.Join(insertVals, ", "),
	)
}
