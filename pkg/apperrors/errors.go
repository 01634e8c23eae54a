package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrJobNotCancellable       = errors.New("job is not in a cancellable state")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
	ErrUnknownStrategy         = errors.New("unknown resolution strategy")
	ErrSourceDisabled          = errors.New("data source is disabled")
)

// ConnectivityError indicates a backend could not be reached. A job that
// hits one aborts before any rows are written.
type ConnectivityError struct {
	Source string
	Cause  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error on source %q: %v", e.Source, e.Cause)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// SchemaError indicates a required canonical column is missing or has an
// incompatible type. The offending row is skipped and tallied.
type SchemaError struct {
	Table  string
	Column string
	Cause  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error on %s.%s: %v", e.Table, e.Column, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// TransformError indicates sanitization or type casting failed for one row.
// The row is skipped and tallied; the job continues.
type TransformError struct {
	Key   string
	Field string
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform error for key %q field %q: %v", e.Key, e.Field, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

// LoadError indicates an insert/update/MERGE failure. It aborts the
// remaining batch for its table; rows committed in earlier sub-batches are
// not rolled back and must be reconciled through the audit trail.
type LoadError struct {
	Table string
	Stage string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load error on table %q during %s: %v", e.Table, e.Stage, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// RowError records a single swallowed row failure so tests and operators can
// assert on it rather than grepping a log stream.
type RowError struct {
	Key   string `json:"key"`
	Stage string `json:"stage"`
	Cause string `json:"cause"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %q failed at %s: %s", e.Key, e.Stage, e.Cause)
}

// NewRowError captures a row-level failure without holding the original
// error value, so the slice is JSON-serializable into the job record.
func NewRowError(key, stage string, cause error) RowError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return RowError{Key: key, Stage: stage, Cause: msg}
}
