package connector

import (
	"context"
	"sync"

	"github.com/parcelworks/parcelsync/pkg/models"
)

// Info describes a registered backend for discovery endpoints.
type Info struct {
	Type        models.BackendType `json:"type"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
}

// Registration contains info plus the factory for creating connectors.
type Registration struct {
	Info    Info
	Factory func(ctx context.Context, config map[string]any) (Connector, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.BackendType]Registration)
)

// Register is called by each backend's init() function. Thread-safe for
// concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredBackends returns info for all compiled-in backends.
func RegisteredBackends() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Info, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// GetFactory returns the factory for a backend type, or nil if the type is
// not registered.
func GetFactory(backend models.BackendType) func(ctx context.Context, config map[string]any) (Connector, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[backend]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a backend type is available.
func IsRegistered(backend models.BackendType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[backend]
	return ok
}
