package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/schema"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// ValidationResult reports whether a source table can be normalized onto
// its configured canonical schema.
type ValidationResult struct {
	IsCompatible bool     `json:"is_compatible"`
	Issues       []string `json:"issues"`
}

// SourceService manages configured backends and schema compatibility
// checks against them.
type SourceService interface {
	Create(ctx context.Context, src *models.DataSourceConfig) error
	Get(ctx context.Context, id uuid.UUID) (*models.DataSourceConfig, error)
	List(ctx context.Context) ([]*models.DataSourceConfig, error)
	Update(ctx context.Context, src *models.DataSourceConfig) error
	Delete(ctx context.Context, id uuid.UUID) error

	// TestConnection pings the backend without caching the connection state.
	TestConnection(ctx context.Context, id uuid.UUID) error

	// Validate checks a source table's columns against the canonical schema
	// configured for it, without moving any rows.
	Validate(ctx context.Context, sourceID uuid.UUID, tableName string) (*ValidationResult, error)
}

type sourceService struct {
	sources    repositories.DataSourceRepository
	tables     repositories.TableConfigRepository
	manager    *connector.Manager
	normalizer *schema.Normalizer
	logger     *zap.Logger
}

// NewSourceService creates a source service.
func NewSourceService(
	sources repositories.DataSourceRepository,
	tables repositories.TableConfigRepository,
	manager *connector.Manager,
	logger *zap.Logger,
) SourceService {
	return &sourceService{
		sources:    sources,
		tables:     tables,
		manager:    manager,
		normalizer: schema.NewNormalizer(),
		logger:     logger,
	}
}

func (s *sourceService) Create(ctx context.Context, src *models.DataSourceConfig) error {
	if _, err := models.ParseBackendType(string(src.Backend)); err != nil {
		return err
	}
	return s.sources.Create(ctx, src)
}

func (s *sourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSourceConfig, error) {
	return s.sources.GetByID(ctx, id)
}

func (s *sourceService) List(ctx context.Context) ([]*models.DataSourceConfig, error) {
	return s.sources.List(ctx)
}

func (s *sourceService) Update(ctx context.Context, src *models.DataSourceConfig) error {
	return s.sources.Update(ctx, src)
}

func (s *sourceService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.sources.Delete(ctx, id)
}

func (s *sourceService) TestConnection(ctx context.Context, id uuid.UUID) error {
	src, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return err
	}
	conn, err := s.manager.Connect(ctx, src)
	if err != nil {
		if statusErr := s.sources.SetStatus(ctx, id, models.SourceStatusError); statusErr != nil {
			s.logger.Warn("failed to record source status", zap.Error(statusErr))
		}
		return err
	}
	if err := conn.Ping(ctx); err != nil {
		if statusErr := s.sources.SetStatus(ctx, id, models.SourceStatusError); statusErr != nil {
			s.logger.Warn("failed to record source status", zap.Error(statusErr))
		}
		return err
	}
	return s.sources.SetStatus(ctx, id, models.SourceStatusActive)
}

func (s *sourceService) Validate(ctx context.Context, sourceID uuid.UUID, tableName string) (*ValidationResult, error) {
	cfg, err := s.tables.GetByTable(ctx, tableName)
	if err != nil {
		return nil, err
	}
	canonical, ok := schema.SchemaFor(cfg.RecordType)
	if !ok {
		return nil, fmt.Errorf("table %q maps to unknown record type %q", tableName, cfg.RecordType)
	}

	columns, err := s.sourceColumns(ctx, sourceID, cfg)
	if err != nil {
		return nil, err
	}
	overrides, err := s.tables.FieldOverrides(ctx, tableName)
	if err != nil {
		return nil, err
	}

	issues := s.normalizer.Validate(canonical, columns, overrides)
	return &ValidationResult{IsCompatible: len(issues) == 0, Issues: issues}, nil
}

// sourceColumns discovers the column set of a source table with a
// zero-row probe for SQL backends, or the header row for files.
func (s *sourceService) sourceColumns(ctx context.Context, sourceID uuid.UUID, cfg *models.TableConfiguration) ([]string, error) {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	conn, err := s.manager.Connect(ctx, src)
	if err != nil {
		return nil, err
	}

	switch c := conn.(type) {
	case connector.SQLConnector:
		d := c.Dialect()
		probe := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", d.QuoteIdentifier(cfg.TableName))
		if d == sqlutil.DialectSQLServer {
			probe = fmt.Sprintf("SELECT TOP 0 * FROM %s", d.QuoteIdentifier(cfg.TableName))
		}
		_, columns, err := c.Query(ctx, probe)
		return columns, err
	case connector.FileConnector:
		_, columns, err := c.ReadAll(ctx)
		return columns, err
	}
	return nil, fmt.Errorf("backend %q exposes no columns", src.Backend)
}

var _ SourceService = (*sourceService)(nil)
