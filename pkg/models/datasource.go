package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BackendType identifies which connector implementation serves a source.
type BackendType string

const (
	BackendSQLServer BackendType = "sqlserver"
	BackendPostgres  BackendType = "postgres"
	BackendSQLite    BackendType = "sqlite"
	BackendFile      BackendType = "file"
)

// ParseBackendType validates a backend type string.
func ParseBackendType(s string) (BackendType, error) {
	switch BackendType(strings.ToLower(s)) {
	case BackendSQLServer:
		return BackendSQLServer, nil
	case BackendPostgres:
		return BackendPostgres, nil
	case BackendSQLite:
		return BackendSQLite, nil
	case BackendFile:
		return BackendFile, nil
	}
	return "", fmt.Errorf("unknown backend type %q", s)
}

// Source status values. Only the engine mutates status and last_sync.
const (
	SourceStatusActive   = "active"
	SourceStatusError    = "error"
	SourceStatusDisabled = "disabled"
)

// DataSourceConfig describes one external backend the engine can sync
// against. Created by configuration; the engine only mutates Status and
// LastSync. Removal is a soft delete so job history stays resolvable.
type DataSourceConfig struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Backend         BackendType    `json:"backend"`
	Config          map[string]any `json:"config"` // connection details, structure varies by backend
	RefreshInterval time.Duration  `json:"refresh_interval"`
	Enabled         bool           `json:"enabled"`
	Status          string         `json:"status"`
	LastSync        *time.Time     `json:"last_sync,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
}
