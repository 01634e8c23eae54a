package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
)

// stubConn is a minimal scriptable connector.
type stubConn struct {
	kind    models.BackendType
	pingErr error
	closed  bool
}

func (s *stubConn) Ping(context.Context) error { return s.pingErr }
func (s *stubConn) Kind() models.BackendType   { return s.kind }
func (s *stubConn) Close() error               { s.closed = true; return nil }

const testBackend models.BackendType = "stub"

func registerStub(t *testing.T, factory func(ctx context.Context, config map[string]any) (Connector, error)) {
	t.Helper()
	Register(Registration{
		Info:    Info{Type: testBackend, DisplayName: "Stub", Description: "test backend"},
		Factory: factory,
	})
}

func stubSource(enabled bool) *models.DataSourceConfig {
	return &models.DataSourceConfig{
		ID:      uuid.New(),
		Name:    "stub-source",
		Backend: testBackend,
		Enabled: enabled,
		Config:  map[string]any{},
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{}, zap.NewNop())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRegistry(t *testing.T) {
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		return &stubConn{kind: testBackend}, nil
	})

	assert.True(t, IsRegistered(testBackend))
	assert.NotNil(t, GetFactory(testBackend))
	assert.Nil(t, GetFactory(models.BackendType("nonexistent")))

	var found bool
	for _, info := range RegisteredBackends() {
		if info.Type == testBackend {
			found = true
		}
	}
	assert.True(t, found)
}

func TestManagerConnectCachesConnection(t *testing.T) {
	opened := 0
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		opened++
		return &stubConn{kind: testBackend}, nil
	})

	m := newTestManager(t)
	src := stubSource(true)

	first, err := m.Connect(context.Background(), src)
	require.NoError(t, err)
	second, err := m.Connect(context.Background(), src)
	require.NoError(t, err)

	assert.Same(t, first, second, "healthy cached connection is reused")
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManagerConnectDisabledSource(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Connect(context.Background(), stubSource(false))
	require.ErrorIs(t, err, apperrors.ErrSourceDisabled)
}

func TestManagerConnectUnknownBackend(t *testing.T) {
	m := newTestManager(t)
	src := stubSource(true)
	src.Backend = models.BackendType("nonexistent")

	_, err := m.Connect(context.Background(), src)
	require.Error(t, err)

	var connErr *apperrors.ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, src.Name, connErr.Source)
}

func TestManagerConnectFactoryFailure(t *testing.T) {
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		return nil, errors.New("dial failed")
	})

	m := newTestManager(t)
	_, err := m.Connect(context.Background(), stubSource(true))

	var connErr *apperrors.ConnectivityError
	require.True(t, errors.As(err, &connErr))
	assert.Zero(t, m.ActiveCount())
}

func TestManagerConnectPingFailureClosesConnection(t *testing.T) {
	conn := &stubConn{kind: testBackend, pingErr: errors.New("refused")}
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		return conn, nil
	})

	m := newTestManager(t)
	_, err := m.Connect(context.Background(), stubSource(true))

	require.Error(t, err)
	assert.True(t, conn.closed, "unhealthy new connection is closed, not cached")
	assert.Zero(t, m.ActiveCount())
}

func TestManagerRecreatesUnhealthyCachedConnection(t *testing.T) {
	conns := []*stubConn{
		{kind: testBackend},
		{kind: testBackend},
	}
	opened := 0
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		c := conns[opened]
		opened++
		return c, nil
	})

	m := newTestManager(t)
	src := stubSource(true)

	first, err := m.Connect(context.Background(), src)
	require.NoError(t, err)

	// Sicken the cached connection; the next Connect must replace it.
	conns[0].pingErr = errors.New("connection reset")

	second, err := m.Connect(context.Background(), src)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, conns[0].closed)
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManagerCloseIdempotent(t *testing.T) {
	registerStub(t, func(context.Context, map[string]any) (Connector, error) {
		return &stubConn{kind: testBackend}, nil
	})

	m := NewManager(ManagerConfig{}, zap.NewNop())
	conn, err := m.Connect(context.Background(), stubSource(true))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.True(t, conn.(*stubConn).closed)
	assert.Zero(t, m.ActiveCount())
}
