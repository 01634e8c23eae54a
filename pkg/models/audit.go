package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded for every mutation the engine or resolver performs.
const (
	AuditActionInsert  = "insert"
	AuditActionUpdate  = "update"
	AuditActionDelete  = "delete"
	AuditActionResolve = "resolve"
	AuditActionSkip    = "skip"
)

// AuditEntry is one immutable before/after record. Entries are append-only
// and queryable by job, table, or time range; they are the sole mechanism
// for reconstructing who changed what across both sync directions.
type AuditEntry struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	TableName string    `json:"table_name"`
	RecordKey string    `json:"record_key"`
	Before    Row       `json:"before,omitempty"`
	After     Row       `json:"after,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditQuery filters audit entries. Zero values mean "no filter".
type AuditQuery struct {
	JobID     uuid.UUID
	EventType string
	TableName string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
