package sqlutil

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SelectSince builds an extraction SELECT with an optional timestamp
// watermark and an optional pre-screened filter fragment. Pass a zero
// since for a full extraction, and nil columns to select everything.
func SelectSince(d Dialect, table string, columns []string, timestampField string, since time.Time, filter string) (string, []any, error) {
	if filter != "" {
		if err := ScreenFilter(filter); err != nil {
			return "", nil, err
		}
	}

	selectList := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = d.QuoteIdentifier(c)
		}
		selectList = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	var params []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", selectList, d.QuoteIdentifier(table))

	var clauses []string
	if !since.IsZero() {
		if timestampField == "" {
			return "", nil, fmt.Errorf("incremental extraction requires a timestamp field for table %q", table)
		}
		params = append(params, since)
		clauses = append(clauses, fmt.Sprintf("%s > %s", d.QuoteIdentifier(timestampField), d.Placeholder(len(params))))
	}
	if filter != "" {
		clauses = append(clauses, "("+filter+")")
	}
	if len(clauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	if timestampField != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", d.QuoteIdentifier(timestampField))
	}

	return sb.String(), params, nil
}

// Insert builds a single-row parameterized INSERT.
func Insert(d Dialect, table string, columns []string, row map[string]any) (string, []any) {
	quoted := make([]string, len(columns))
	params := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		params[i] = row[c]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		Placeholders(d, len(columns), 0),
	)
	return query, params
}

// BulkInsert builds a multi-row parameterized INSERT for one sub-batch.
func BulkInsert(d Dialect, table string, columns []string, rows []map[string]any) (string, []any) {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}

	var values []string
	var params []any
	for _, row := range rows {
		values = append(values, "("+Placeholders(d, len(columns), len(params))+")")
		for _, c := range columns {
			params = append(params, row[c])
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		d.QuoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(values, ", "),
	)
	return query, params
}

// KeyedUpdate builds a parameterized UPDATE over the non-key columns of one
// row, matched on the canonical primary key.
func KeyedUpdate(d Dialect, table string, nonKeyColumns, keyColumns []string, row map[string]any) (string, []any) {
	var params []any
	sets := make([]string, len(nonKeyColumns))
	for i, c := range nonKeyColumns {
		params = append(params, row[c])
		sets[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(c), d.Placeholder(len(params)))
	}

	wheres := make([]string, len(keyColumns))
	for i, c := range keyColumns {
		params = append(params, row[c])
		wheres[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(c), d.Placeholder(len(params)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.QuoteIdentifier(table),
		strings.Join(sets, ", "),
		strings.Join(wheres, " AND "),
	)
	return query, params
}

// KeySelect builds a SELECT of the primary-key columns only, used by the
// loader to split incoming rows into inserts and updates.
func KeySelect(d Dialect, table string, keyColumns []string) string {
	quoted := make([]string, len(keyColumns))
	for i, c := range keyColumns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), d.QuoteIdentifier(table))
}

// FieldUpdate builds an UPDATE of a single field matched on a composite
// key given as field/value pairs. Used by the up-sync apply step, which is
// idempotent per (table, key, field, new_value).
func FieldUpdate(d Dialect, table, field string, value any, key map[string]string) (string, []any) {
	params := []any{value}
	set := fmt.Sprintf("%s = %s", d.QuoteIdentifier(field), d.Placeholder(1))

	// Deterministic key order for stable statements.
	keyCols := make([]string, 0, len(key))
	for k := range key {
		keyCols = append(keyCols, k)
	}
	sort.Strings(keyCols)

	wheres := make([]string, len(keyCols))
	for i, c := range keyCols {
		params = append(params, key[c])
		wheres[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(c), d.Placeholder(len(params)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.QuoteIdentifier(table), set, strings.Join(wheres, " AND "))
	return query, params
}
