package models

import (
	"time"

	"github.com/google/uuid"
)

// TableConfiguration describes how one source table participates in sync:
// which canonical schema it maps onto, which column drives incremental
// extraction, and where it falls in the serialized processing order.
type TableConfiguration struct {
	ID              uuid.UUID  `json:"id"`
	TableName       string     `json:"table_name"`
	RecordType      RecordType `json:"record_type"`
	TimestampField  string     `json:"timestamp_field"` // drives down-sync diffing
	ProcessingOrder int        `json:"processing_order"`
	Filter          string     `json:"filter,omitempty"` // optional extraction predicate, injection-screened
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FieldConfiguration overrides the default case-insensitive column match
// for one canonical field of one table.
type FieldConfiguration struct {
	ID             uuid.UUID `json:"id"`
	TableName      string    `json:"table_name"`
	CanonicalField string    `json:"canonical_field"`
	SourceColumn   string    `json:"source_column"`
	CreatedAt      time.Time `json:"created_at"`
}

// GlobalSetting is a key/value engine setting, e.g. the recorded
// last_sync_time watermark per table.
type GlobalSetting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
