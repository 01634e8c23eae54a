package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/logging"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/retry"
)

const (
	DefaultTTLMinutes      = 5
	DefaultCleanupInterval = 1 * time.Minute
)

// ManagerConfig holds configuration for the connection manager.
type ManagerConfig struct {
	TTLMinutes     int
	ConnectTimeout time.Duration
}

// Manager caches one connector per data source with TTL-based cleanup.
// Connect is idempotent: repeated calls on a healthy source return the
// cached connector without reopening.
type Manager struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*managedConn
	ttl         time.Duration
	timeout     time.Duration
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type managedConn struct {
	conn     Connector
	lastUsed time.Time
}

// NewManager creates a connection manager and starts its background
// cleanup goroutine, which runs until Close() is called.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultTTLMinutes
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	m := &Manager{
		connections: make(map[uuid.UUID]*managedConn),
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		timeout:     cfg.ConnectTimeout,
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connector-manager"),
	}

	go m.cleanupExpired()
	return m
}

// Connect returns a healthy connector for the source, reusing a cached one
// when possible. On failure it returns a typed ConnectivityError; the
// caller decides whether to retry and is responsible for marking the
// source's status.
func (m *Manager) Connect(ctx context.Context, src *models.DataSourceConfig) (Connector, error) {
	if !src.Enabled {
		return nil, apperrors.ErrSourceDisabled
	}

	// Fast path: cached and healthy.
	m.mu.RLock()
	managed, exists := m.connections[src.ID]
	m.mu.RUnlock()

	if exists {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.conn.Ping(healthCtx)
		})
		cancel()

		if err == nil {
			m.mu.Lock()
			managed.lastUsed = time.Now()
			m.mu.Unlock()
			return managed.conn, nil
		}

		m.logger.Warn("cached connection unhealthy, recreating",
			zap.String("source", src.Name),
			zap.String("error", logging.SanitizeError(err)),
		)
		m.remove(src.ID)
	}

	return m.create(ctx, src)
}

func (m *Manager) create(ctx context.Context, src *models.DataSourceConfig) (Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock.
	if managed, exists := m.connections[src.ID]; exists {
		managed.lastUsed = time.Now()
		return managed.conn, nil
	}

	factory := GetFactory(src.Backend)
	if factory == nil {
		return nil, &apperrors.ConnectivityError{
			Source: src.Name,
			Cause:  fmt.Errorf("unsupported backend type %q (not compiled in)", src.Backend),
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	conn, err := factory(connectCtx, src.Config)
	if err != nil {
		m.logger.Error("failed to open connection",
			zap.String("source", src.Name),
			zap.String("backend", string(src.Backend)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, &apperrors.ConnectivityError{Source: src.Name, Cause: err}
	}

	if err := conn.Ping(connectCtx); err != nil {
		_ = conn.Close()
		return nil, &apperrors.ConnectivityError{Source: src.Name, Cause: err}
	}

	m.connections[src.ID] = &managedConn{conn: conn, lastUsed: time.Now()}
	m.logger.Info("opened connection",
		zap.String("source", src.Name),
		zap.String("backend", string(src.Backend)),
	)
	return conn, nil
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[id]; exists {
		_ = managed.conn.Close()
		delete(m.connections, id)
	}
}

func (m *Manager) cleanupExpired() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	removed := 0
	for id, managed := range m.connections {
		if now.Sub(managed.lastUsed) > m.ttl {
			_ = managed.conn.Close()
			delete(m.connections, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned up idle connections",
			zap.Int("count", removed),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// ActiveCount returns the number of cached connections.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close closes all cached connections and stops the cleanup goroutine.
// Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		_ = managed.conn.Close()
	}
	m.connections = make(map[uuid.UUID]*managedConn)
	m.logger.Info("connection manager closed")
	return nil
}
