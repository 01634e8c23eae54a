package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// datetimeLayouts are tried in order when casting strings to datetime.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Normalizer maps arbitrary source columns onto a canonical schema. The
// transform is intentionally lossy and one-directional: unmapped source
// columns are dropped and up-sync never attempts to reverse it.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Mapping resolves source columns for one canonical schema. Matching is
// case-insensitive; an ambiguous collision resolves deterministically to
// the first column in source order. Overrides from field_configuration
// take precedence over name matching.
func (n *Normalizer) Mapping(schema *models.CanonicalSchema, sourceColumns []string, overrides map[string]string) map[string]string {
	// First source column wins per lowercased name.
	byLower := make(map[string]string, len(sourceColumns))
	for _, col := range sourceColumns {
		lower := strings.ToLower(col)
		if _, seen := byLower[lower]; !seen {
			byLower[lower] = col
		}
	}

	mapping := make(map[string]string, len(schema.Fields))
	for _, field := range schema.Fields {
		if override, ok := overrides[field.Name]; ok {
			if src, found := byLower[strings.ToLower(override)]; found {
				mapping[field.Name] = src
			}
			continue
		}
		if src, found := byLower[strings.ToLower(field.Name)]; found {
			mapping[field.Name] = src
		}
	}
	return mapping
}

// NormalizeRow maps one source row onto the schema, casting each value to
// its declared type. Missing source columns yield nil; a required field
// that is missing raises a SchemaError, a failed cast a TransformError.
func (n *Normalizer) NormalizeRow(schema *models.CanonicalSchema, row models.Row, mapping map[string]string) (models.Row, error) {
	out := make(models.Row, len(schema.Fields))

	for _, field := range schema.Fields {
		srcCol, mapped := mapping[field.Name]
		if !mapped {
			if field.Required {
				return nil, &apperrors.SchemaError{
					Table:  string(schema.RecordType),
					Column: field.Name,
					Cause:  fmt.Errorf("required canonical column has no source column"),
				}
			}
			out[field.Name] = nil
			continue
		}

		raw, present := row[srcCol]
		if !present || raw == nil {
			if field.Required {
				return nil, &apperrors.SchemaError{
					Table:  string(schema.RecordType),
					Column: field.Name,
					Cause:  fmt.Errorf("required value is null"),
				}
			}
			out[field.Name] = nil
			continue
		}

		cast, err := CastValue(raw, field.Type)
		if err != nil {
			return nil, &apperrors.TransformError{
				Key:   schema.RecordKey(row),
				Field: field.Name,
				Cause: err,
			}
		}
		out[field.Name] = cast
	}

	return out, nil
}

// Normalize maps a batch of rows. Rows that fail are returned as
// RowErrors alongside the successes; the caller tallies them without
// aborting the batch.
func (n *Normalizer) Normalize(schema *models.CanonicalSchema, rows []models.Row, sourceColumns []string, overrides map[string]string) ([]models.Row, []apperrors.RowError) {
	mapping := n.Mapping(schema, sourceColumns, overrides)

	var out []models.Row
	var rowErrors []apperrors.RowError
	for _, row := range rows {
		normalized, err := n.NormalizeRow(schema, row, mapping)
		if err != nil {
			rowErrors = append(rowErrors, apperrors.NewRowError(schema.RecordKey(row), "normalize", err))
			continue
		}
		out = append(out, normalized)
	}
	return out, rowErrors
}

// Validate checks whether a set of source columns can satisfy a canonical
// schema. Returns human-readable issues; an empty slice means compatible.
func (n *Normalizer) Validate(schema *models.CanonicalSchema, sourceColumns []string, overrides map[string]string) []string {
	mapping := n.Mapping(schema, sourceColumns, overrides)

	var issues []string
	for _, field := range schema.Fields {
		if _, ok := mapping[field.Name]; !ok && field.Required {
			issues = append(issues, fmt.Sprintf("required canonical column %q has no matching source column", field.Name))
		}
	}
	return issues
}

// CastValue converts a raw source value to a declared canonical type.
func CastValue(raw any, fieldType models.FieldType) (any, error) {
	switch fieldType {
	case models.FieldTypeString:
		return castString(raw), nil
	case models.FieldTypeFloat:
		return castFloat(raw)
	case models.FieldTypeInt:
		return castInt(raw)
	case models.FieldTypeDatetime:
		return castDatetime(raw)
	case models.FieldTypeBoolean:
		return castBool(raw)
	}
	return nil, fmt.Errorf("unknown field type %q", fieldType)
}

func castString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}

func castFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot cast %q to float", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot cast %T to float", raw)
}

func castInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot cast %q to int", v)
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot cast %T to int", raw)
}

func castDatetime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot cast %q to datetime", v)
	}
	return time.Time{}, fmt.Errorf("cannot cast %T to datetime", raw)
}

func castBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot cast %q to boolean", v)
	}
	return false, fmt.Errorf("cannot cast %T to boolean", raw)
}
