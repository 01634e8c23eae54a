package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
)

// JobType identifies what a sync job does.
type JobType string

const (
	JobTypeFull        JobType = "full"
	JobTypeIncremental JobType = "incremental"
	JobTypeUpSync      JobType = "up_sync"
	JobTypeExport      JobType = "export"
)

// JobStatus values. Transitions are monotonic; terminal states are final.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo enforces the pending -> running -> terminal state machine.
// Cancellation is allowed from pending or running only.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

// SyncJob is the auditable unit of work the orchestrator dispatches.
// At every snapshot ProcessedRecords + ErrorRecords <= TotalRecords.
type SyncJob struct {
	ID               uuid.UUID            `json:"job_id"`
	Type             JobType              `json:"type"`
	Status           JobStatus            `json:"status"`
	SourceID         uuid.UUID            `json:"source_id"`
	TargetID         *uuid.UUID           `json:"target_id,omitempty"` // nil means the internal store
	SubmittedBy      string               `json:"submitted_by"`
	TotalRecords     int                  `json:"total_records"`
	ProcessedRecords int                  `json:"processed_records"`
	NewRecords       int                  `json:"new_records"`
	UpdatedRecords   int                  `json:"updated_records"`
	ErrorRecords     int                  `json:"error_records"`
	ConflictRecords  int                  `json:"conflict_records"`
	RowErrors        []apperrors.RowError `json:"row_errors,omitempty"`
	ErrorDetails     string               `json:"error_details,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	EndedAt          *time.Time           `json:"ended_at,omitempty"`
}

// Duration returns the elapsed run time, zero until the job has started.
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.EndedAt != nil {
		end = *j.EndedAt
	}
	return end.Sub(*j.StartedAt)
}

// TableResult is the per-table outcome the engine returns from one
// pipeline run.
type TableResult struct {
	Status    string    `json:"status"` // "success" or "error"
	Table     string    `json:"table"`
	Records   int       `json:"records"`
	New       int       `json:"new_records"`
	Updated   int       `json:"updated_records"`
	Errors    int       `json:"error_records"`
	Conflicts int       `json:"conflict_records"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

// SyncLog is one persisted log line tied to a job, independently
// discoverable through the log API so nothing is dropped silently.
type SyncLog struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Level     string    `json:"level"` // "info", "warn", "error"
	TableName string    `json:"table_name,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
