package schema

import (
	"strings"

	"github.com/parcelworks/parcelsync/pkg/models"
)

// Sanitizer cleans extracted rows before they are normalized. It is a
// row-in/row-out collaborator: implementations may rewrite values or
// reject the row by returning an error.
type Sanitizer interface {
	SanitizeRow(row models.Row) (models.Row, error)
}

// TrimSanitizer is the default sanitizer: trims whitespace from string
// values and converts empty strings to nil so they normalize as missing.
type TrimSanitizer struct{}

// SanitizeRow implements Sanitizer.
func (TrimSanitizer) SanitizeRow(row models.Row) (models.Row, error) {
	out := make(models.Row, len(row))
	for col, v := range row {
		if s, ok := v.(string); ok {
			trimmed := strings.TrimSpace(s)
			if trimmed == "" {
				out[col] = nil
				continue
			}
			out[col] = trimmed
			continue
		}
		out[col] = v
	}
	return out, nil
}

// PassthroughSanitizer performs no cleaning. Used in tests and for
// sources whose extraction already guarantees clean rows.
type PassthroughSanitizer struct{}

// SanitizeRow implements Sanitizer.
func (PassthroughSanitizer) SanitizeRow(row models.Row) (models.Row, error) {
	return row, nil
}

var (
	_ Sanitizer = TrimSanitizer{}
	_ Sanitizer = PassthroughSanitizer{}
)
