package models

import (
	"fmt"
	"sort"
	"strings"
)

// Row is one record exchanged between sources, keyed by column name.
type Row = map[string]any

// RecordType identifies which canonical schema a table maps onto.
type RecordType string

const (
	RecordTypeProperty  RecordType = "property"
	RecordTypeSale      RecordType = "sale"
	RecordTypeValuation RecordType = "valuation"
)

// ParseRecordType validates a record type string.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(strings.ToLower(s)) {
	case RecordTypeProperty:
		return RecordTypeProperty, nil
	case RecordTypeSale:
		return RecordTypeSale, nil
	case RecordTypeValuation:
		return RecordTypeValuation, nil
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// FieldType is the declared semantic type of a canonical field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeFloat    FieldType = "float"
	FieldTypeInt      FieldType = "int"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeBoolean  FieldType = "boolean"
)

// CanonicalField is one column of a canonical schema.
type CanonicalField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Key      bool      `json:"key"`      // part of the canonical primary key
	Required bool      `json:"required"` // row is rejected with a SchemaError when absent
}

// CanonicalSchema is the fixed, typed field set every source is normalized
// into before load. Field order is significant for deterministic exports.
type CanonicalSchema struct {
	RecordType RecordType       `json:"record_type"`
	Fields     []CanonicalField `json:"fields"`
}

// KeyFields returns the names of the primary-key fields in schema order.
func (s *CanonicalSchema) KeyFields() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Key {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// NonKeyFields returns the names of all non-key fields in schema order.
func (s *CanonicalSchema) NonKeyFields() []string {
	var cols []string
	for _, f := range s.Fields {
		if !f.Key {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// FieldNames returns every field name in schema order.
func (s *CanonicalSchema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s *CanonicalSchema) Field(name string) (CanonicalField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return CanonicalField{}, false
}

// RecordKey renders the primary key of a row as a stable string, e.g.
// "parcel_id=12-34-56" or "parcel_id=12-34-56|tax_year=2024". Keys are
// stable across source systems, so this string identifies the same record
// everywhere it appears: ledger rows, conflicts, and audit entries.
func (s *CanonicalSchema) RecordKey(row Row) string {
	keys := s.KeyFields()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, row[k]))
	}
	return strings.Join(parts, "|")
}

// ParseRecordKey reverses RecordKey into field/value pairs.
func ParseRecordKey(key string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(key, "|") {
		if name, value, ok := strings.Cut(part, "="); ok {
			out[name] = value
		}
	}
	return out
}

// SortedColumns returns a row's column names sorted alphabetically.
// Used when a deterministic order is needed for an unschema'd row.
func SortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
