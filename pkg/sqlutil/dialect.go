package sqlutil

import (
	"fmt"
	"strings"
)

// Dialect selects placeholder style and identifier quoting for a backend.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLServer
	DialectSQLite
)

// Placeholder returns the 1-based parameter placeholder for the dialect.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case DialectPostgres:
		return fmt.Sprintf("$%d", n)
	case DialectSQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// MaxParams returns the number of bind parameters a single statement may
// carry, kept under each backend's hard limit (SQL Server 2100, SQLite 999,
// Postgres 65535) with headroom for extras appended by drivers.
func (d Dialect) MaxParams() int {
	switch d {
	case DialectSQLServer:
		return 2000
	case DialectSQLite:
		return 900
	default:
		return 65000
	}
}

// QuoteIdentifier safely quotes a table or column name to prevent
// injection through identifiers.
func (d Dialect) QuoteIdentifier(name string) string {
	switch d {
	case DialectSQLServer:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Placeholders renders n placeholders starting at offset+1, e.g.
// Placeholders(DialectPostgres, 2, 3) == "$4, $5".
func Placeholders(d Dialect, count, offset int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = d.Placeholder(offset + i + 1)
	}
	return strings.Join(parts, ", ")
}
