package models

import "time"

// Change actions captured in the up-sync ledger.
const (
	ChangeActionInsert = "insert"
	ChangeActionUpdate = "update"
	ChangeActionDelete = "delete"
)

// ChangeRecord is one captured field-level mutation awaiting up-sync.
// The ledger is append-only; ids increase monotonically so concurrent
// writers need no application-level locks. Once processed, the row is
// moved intact into the archive and removed from the live ledger.
type ChangeRecord struct {
	ID          int64     `json:"id"`
	TableName   string    `json:"table_name"`
	FieldName   string    `json:"field_name"`
	RecordKey   string    `json:"record_key"` // serialized composite key, see CanonicalSchema.RecordKey
	OldValue    *string   `json:"old_value,omitempty"`
	NewValue    *string   `json:"new_value,omitempty"`
	Action      string    `json:"action"`
	Date        time.Time `json:"date"`
	IsProcessed bool      `json:"is_processed"`
}

// ArchivedChange is a settled ledger row. Same shape as ChangeRecord,
// immutable, always is_processed=true.
type ArchivedChange struct {
	ChangeRecord
	ArchivedAt time.Time `json:"archived_at"`
}
