package models

import (
	"time"

	"github.com/google/uuid"
)

// Conflict resolution status values.
const (
	ResolutionStatusPending  = "pending"
	ResolutionStatusResolved = "resolved"
)

// ResolutionStrategy is the explicit operator choice for a conflict.
// Conflicts are never auto-resolved.
type ResolutionStrategy string

const (
	ResolutionSourceWins ResolutionStrategy = "source_wins"
	ResolutionTargetWins ResolutionStrategy = "target_wins"
	ResolutionManual     ResolutionStrategy = "manual"
)

// Valid reports whether the strategy is one of the three known values.
func (s ResolutionStrategy) Valid() bool {
	return s == ResolutionSourceWins || s == ResolutionTargetWins || s == ResolutionManual
}

// SyncConflict records a divergent concurrent edit: a ledger change whose
// target row was modified more recently than the change's reference date.
// The record is excluded from further propagation until an operator
// resolves the conflict, exactly once.
type SyncConflict struct {
	ID               uuid.UUID          `json:"conflict_id"`
	JobID            uuid.UUID          `json:"job_id"`
	TableName        string             `json:"table_name"`
	RecordKey        string             `json:"record_key"`
	SourceData       Row                `json:"source_data"` // training payload reconstructed from the ledger
	TargetData       Row                `json:"target_data"` // production row at detection time
	ResolutionStatus string             `json:"resolution_status"`
	ResolutionType   ResolutionStrategy `json:"resolution_type,omitempty"`
	ResolvedData     Row                `json:"resolved_data,omitempty"`
	ResolvedBy       string             `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}
