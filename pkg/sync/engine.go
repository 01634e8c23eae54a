package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/schema"
)

// ErrCancelled is returned when a cooperative cancellation check fires
// between pipeline steps. Work already committed stays committed.
var ErrCancelled = errors.New("job cancelled")

// CancelCheck reports whether the running job has been asked to stop. It
// is consulted between tables and between pipeline steps, never mid-batch.
type CancelCheck func(ctx context.Context) bool

// Engine runs the down-sync pipeline: extract, sanitize, normalize, load,
// one configured table at a time in processing order. Row failures are
// tallied and logged; only connectivity and load failures abort.
type Engine struct {
	normalizer *schema.Normalizer
	sanitizer  schema.Sanitizer
	loader     *Loader
	tables     repositories.TableConfigRepository
	settings   repositories.SettingsRepository
	logs       repositories.LogRepository
	tableOrder []string
	logger     *zap.Logger
}

// NewEngine creates a sync engine. tableOrder, when non-empty, overrides the
// stored processing order for the tables it names; unlisted tables run after
// them in their stored order.
func NewEngine(
	loader *Loader,
	tables repositories.TableConfigRepository,
	settings repositories.SettingsRepository,
	logs repositories.LogRepository,
	tableOrder []string,
	logger *zap.Logger,
) *Engine {
	if loader == nil {
		loader = NewLoader(0, logger)
	}
	return &Engine{
		normalizer: schema.NewNormalizer(),
		sanitizer:  schema.TrimSanitizer{},
		loader:     loader,
		tables:     tables,
		settings:   settings,
		logs:       logs,
		tableOrder: tableOrder,
		logger:     logger,
	}
}

// Run executes one down-sync job from source into target, which is the
// internal store unless the job names an external target. Incremental jobs
// extract only rows past each table's recorded watermark. The job's
// counters are mutated in place as tables complete so callers can persist
// progress snapshots.
func (e *Engine) Run(ctx context.Context, job *models.SyncJob, source, target connector.Connector, cancelled CancelCheck) ([]models.TableResult, error) {
	if cancelled == nil {
		cancelled = func(context.Context) bool { return false }
	}

	// Connectivity is verified on both ends before any rows move. A dead
	// backend fails the whole job with zero rows written.
	if err := source.Ping(ctx); err != nil {
		return nil, &apperrors.ConnectivityError{Source: job.SourceID.String(), Cause: err}
	}
	if err := target.Ping(ctx); err != nil {
		name := "internal store"
		if job.TargetID != nil {
			name = job.TargetID.String()
		}
		return nil, &apperrors.ConnectivityError{Source: name, Cause: err}
	}

	configs, err := e.tables.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load table configurations: %w", err)
	}
	configs = orderTables(configs, e.tableOrder)

	var results []models.TableResult
	for _, cfg := range configs {
		if cancelled(ctx) || ctx.Err() != nil {
			return results, ErrCancelled
		}

		result, err := e.runTable(ctx, job, source, target, cfg, cancelled)
		results = append(results, result)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return results, ErrCancelled
			}
			// A load failure stops this table but not the job; later
			// tables still run. The result row carries the detail.
			e.logJob(ctx, job.ID, "error", cfg.TableName, err.Error())
			continue
		}
	}
	return results, nil
}

func (e *Engine) runTable(ctx context.Context, job *models.SyncJob, source, target connector.Connector, cfg *models.TableConfiguration, cancelled CancelCheck) (models.TableResult, error) {
	result := models.TableResult{Table: cfg.TableName, Timestamp: time.Now(), Status: "success"}

	canonical, ok := schema.SchemaFor(cfg.RecordType)
	if !ok {
		result.Status = "error"
		result.Details = fmt.Sprintf("unknown record type %q", cfg.RecordType)
		return result, fmt.Errorf("unknown record type %q for table %q", cfg.RecordType, cfg.TableName)
	}

	since := time.Time{}
	if job.Type == models.JobTypeIncremental {
		watermark, err := e.settings.GetLastSyncTime(ctx, cfg.TableName)
		if err != nil {
			result.Status = "error"
			result.Details = err.Error()
			return result, err
		}
		since = watermark
	}

	extractStart := time.Now()
	rows, columns, err := Extract(ctx, source, cfg, since)
	if err != nil {
		result.Status = "error"
		result.Details = err.Error()
		return result, fmt.Errorf("extraction failed for %q: %w", cfg.TableName, err)
	}
	job.TotalRecords += len(rows)
	result.Records = len(rows)
	e.logger.Info("extracted rows",
		zap.String("table", cfg.TableName),
		zap.Int("rows", len(rows)),
		zap.Duration("took", time.Since(extractStart)))

	if cancelled(ctx) {
		return result, ErrCancelled
	}

	// Sanitize before normalization so type casting sees clean input.
	sanitized := make([]models.Row, 0, len(rows))
	var rowErrors []apperrors.RowError
	for _, row := range rows {
		clean, err := e.sanitizer.SanitizeRow(row)
		if err != nil {
			rowErrors = append(rowErrors, apperrors.NewRowError(canonical.RecordKey(row), "sanitize", err))
			continue
		}
		sanitized = append(sanitized, clean)
	}

	if cancelled(ctx) {
		return result, ErrCancelled
	}

	overrides, err := e.tables.FieldOverrides(ctx, cfg.TableName)
	if err != nil {
		result.Status = "error"
		result.Details = err.Error()
		return result, err
	}

	normalized, normErrors := e.normalizer.Normalize(canonical, sanitized, columns, overrides)
	rowErrors = append(rowErrors, normErrors...)

	if cancelled(ctx) {
		return result, ErrCancelled
	}

	var stats LoadStats
	var loadErr error
	switch t := target.(type) {
	case connector.SQLConnector:
		stats, loadErr = e.loader.LoadSQL(ctx, t, cfg.TableName, canonical, normalized)
	case connector.FileConnector:
		stats, loadErr = e.loader.LoadFile(ctx, t, canonical, normalized)
	default:
		loadErr = fmt.Errorf("backend %q supports no load", target.Kind())
	}
	result.New = stats.New
	result.Updated = stats.Updated
	result.Errors = len(rowErrors) + stats.Errors
	rowErrors = append(rowErrors, stats.RowErrors...)

	job.ProcessedRecords += stats.New + stats.Updated
	job.NewRecords += stats.New
	job.UpdatedRecords += stats.Updated
	job.ErrorRecords += result.Errors
	job.RowErrors = append(job.RowErrors, rowErrors...)

	for _, re := range rowErrors {
		e.logJob(ctx, job.ID, "warn", cfg.TableName, re.Error())
	}

	if loadErr != nil {
		result.Status = "error"
		result.Details = loadErr.Error()
		return result, loadErr
	}

	// The watermark only advances after a clean load into the internal
	// store, so a failed run is re-extracted in full next time and external
	// targets never starve the internal copy.
	if job.TargetID == nil {
		if err := e.settings.SetLastSyncTime(ctx, cfg.TableName, extractStart); err != nil {
			e.logger.Warn("failed to record watermark", zap.String("table", cfg.TableName), zap.Error(err))
		}
	}

	return result, nil
}

// orderTables applies a configured table order on top of the stored one.
// Named tables come first, in the configured order; the rest keep their
// stored order after them.
func orderTables(configs []*models.TableConfiguration, order []string) []*models.TableConfiguration {
	if len(order) == 0 {
		return configs
	}
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	ordered := make([]*models.TableConfiguration, len(configs))
	copy(ordered, configs)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iOK := rank[ordered[i].TableName]
		rj, jOK := rank[ordered[j].TableName]
		switch {
		case iOK && jOK:
			return ri < rj
		case iOK:
			return true
		default:
			return false
		}
	})
	return ordered
}

func (e *Engine) logJob(ctx context.Context, jobID uuid.UUID, level, table, message string) {
	log := &models.SyncLog{JobID: jobID, Level: level, TableName: table, Message: message}
	if err := e.logs.Insert(ctx, log); err != nil {
		e.logger.Warn("failed to persist sync log", zap.Error(err))
	}
}
