package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// UpSyncActor is the audit actor recorded for engine-applied changes.
const UpSyncActor = "sync-engine"

// changeGroup is every pending ledger row for one (table, record) pair,
// in capture order.
type changeGroup struct {
	tableName string
	recordKey string
	changes   []*models.ChangeRecord
}

// UpSyncer propagates the append-only change ledger back to a production
// target. Changes for a record whose target row was modified after the
// change was captured become conflicts instead of writes; everything else
// is applied idempotently and archived in the same pass.
type UpSyncer struct {
	changes   repositories.ChangeRepository
	conflicts repositories.ConflictRepository
	audit     repositories.AuditRepository
	tables    repositories.TableConfigRepository
	logger    *zap.Logger
	batchSize int
}

// NewUpSyncer creates an up-sync processor.
func NewUpSyncer(
	changes repositories.ChangeRepository,
	conflicts repositories.ConflictRepository,
	audit repositories.AuditRepository,
	tables repositories.TableConfigRepository,
	batchSize int,
	logger *zap.Logger,
) *UpSyncer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &UpSyncer{
		changes:   changes,
		conflicts: conflicts,
		audit:     audit,
		tables:    tables,
		logger:    logger,
		batchSize: batchSize,
	}
}

// Run drains the pending ledger against the target. The job's counters
// are mutated in place. Cancellation is checked between record groups, so
// a cancelled run leaves a clean boundary: each group is either fully
// applied and archived or untouched.
func (u *UpSyncer) Run(ctx context.Context, job *models.SyncJob, target connector.SQLConnector, cancelled CancelCheck) error {
	if cancelled == nil {
		cancelled = func(context.Context) bool { return false }
	}

	if err := target.Ping(ctx); err != nil {
		return &apperrors.ConnectivityError{Source: job.SourceID.String(), Cause: err}
	}

	pending, err := u.changes.ListUnprocessed(ctx, u.batchSize)
	if err != nil {
		return fmt.Errorf("failed to read change ledger: %w", err)
	}
	job.TotalRecords = len(pending)

	for _, group := range groupChanges(pending) {
		if cancelled(ctx) || ctx.Err() != nil {
			return ErrCancelled
		}

		if err := u.processGroup(ctx, job, target, group); err != nil {
			// Row-level failure: tally and move on, the ledger rows stay
			// pending for the next run.
			job.ErrorRecords += len(group.changes)
			job.RowErrors = append(job.RowErrors, apperrors.NewRowError(group.recordKey, "up-sync", err))
			u.logger.Warn("up-sync group failed",
				zap.String("table", group.tableName),
				zap.String("record_key", group.recordKey),
				zap.Error(err))
		}
	}
	return nil
}

func (u *UpSyncer) processGroup(ctx context.Context, job *models.SyncJob, target connector.SQLConnector, group changeGroup) error {
	// Records with an unresolved conflict are excluded from propagation
	// until an operator decides.
	blocked, err := u.conflicts.HasPending(ctx, group.tableName, group.recordKey)
	if err != nil {
		return err
	}
	if blocked {
		job.ConflictRecords += len(group.changes)
		return nil
	}

	targetRow, err := u.fetchTargetRow(ctx, target, group)
	if err != nil {
		return err
	}

	if conflicted, err := u.detectConflict(ctx, job, target, group, targetRow); err != nil {
		return err
	} else if conflicted {
		job.ConflictRecords += len(group.changes)
		return nil
	}

	applied, err := u.applyGroup(ctx, job, target, group, targetRow)
	if err != nil {
		return err
	}

	// Archive only after every change in the group applied cleanly; the
	// move itself is a single transaction on the internal store.
	if err := u.changes.Archive(ctx, applied); err != nil {
		return err
	}
	job.ProcessedRecords += len(applied)
	return nil
}

// detectConflict compares the target row's timestamp column against the
// oldest pending ledger date in the group. Any target edit made after the
// first unapplied capture wins a conflict record; a target with no timestamp
// value never conflicts.
func (u *UpSyncer) detectConflict(ctx context.Context, job *models.SyncJob, target connector.SQLConnector, group changeGroup, targetRow models.Row) (bool, error) {
	if targetRow == nil {
		return false, nil
	}

	cfg, err := u.tables.GetByTable(ctx, group.tableName)
	if err != nil {
		return false, err
	}
	targetUpdated, ok := timestampValue(targetRow[cfg.TimestampField])
	if !ok {
		return false, nil
	}

	oldest := group.changes[0].Date
	if !targetUpdated.After(oldest) {
		return false, nil
	}

	conflict := &models.SyncConflict{
		JobID:      job.ID,
		TableName:  group.tableName,
		RecordKey:  group.recordKey,
		SourceData: sourcePayload(group),
		TargetData: targetRow,
	}
	if err := u.conflicts.Create(ctx, conflict); err != nil {
		return false, err
	}
	u.logger.Info("conflict detected",
		zap.String("table", group.tableName),
		zap.String("record_key", group.recordKey),
		zap.Time("target_updated", targetUpdated),
		zap.Time("change_date", oldest))
	return true, nil
}

// applyGroup writes every change of one group to the target and records
// an audit entry per change. Each write is idempotent: re-running it sets
// the same field to the same value.
func (u *UpSyncer) applyGroup(ctx context.Context, job *models.SyncJob, target connector.SQLConnector, group changeGroup, targetRow models.Row) ([]int64, error) {
	key := models.ParseRecordKey(group.recordKey)
	d := target.Dialect()

	var applied []int64
	var entries []*models.AuditEntry
	for _, change := range group.changes {
		skipped := false
		switch change.Action {
		case models.ChangeActionDelete:
			if err := u.applyDelete(ctx, target, group.tableName, key); err != nil {
				return nil, err
			}
		default:
			var value any
			if change.NewValue != nil {
				value = *change.NewValue
			}
			query, params := sqlutil.FieldUpdate(d, group.tableName, change.FieldName, value, key)
			affected, err := target.Exec(ctx, query, params...)
			if err != nil {
				return nil, &apperrors.LoadError{Table: group.tableName, Stage: "up-sync apply", Cause: err}
			}
			if affected == 0 {
				if change.Action == models.ChangeActionInsert {
					if err := u.applyInsert(ctx, target, group.tableName, key, change); err != nil {
						return nil, err
					}
				} else {
					// The target row vanished between capture and apply.
					// Archive the change so it never retries, with an audit
					// entry recording the zero-write.
					skipped = true
					u.logger.Warn("up-sync change skipped, target row missing",
						zap.String("table", group.tableName),
						zap.String("record_key", group.recordKey),
						zap.String("field", change.FieldName),
						zap.Int64("change_id", change.ID))
				}
			}
		}

		entry := auditForChange(job, group, change, targetRow)
		if skipped {
			entry.Action = models.AuditActionSkip
		}
		applied = append(applied, change.ID)
		entries = append(entries, entry)
	}

	if err := u.audit.InsertBatch(ctx, entries); err != nil {
		return nil, err
	}
	return applied, nil
}

func (u *UpSyncer) applyDelete(ctx context.Context, target connector.SQLConnector, table string, key map[string]string) error {
	d := target.Dialect()
	query, params := keyedDelete(d, table, key)
	if _, err := target.Exec(ctx, query, params...); err != nil {
		return &apperrors.LoadError{Table: table, Stage: "up-sync delete", Cause: err}
	}
	return nil
}

// applyInsert materializes a record the target has never seen, seeded
// with the key columns and the changed field.
func (u *UpSyncer) applyInsert(ctx context.Context, target connector.SQLConnector, table string, key map[string]string, change *models.ChangeRecord) error {
	row := make(models.Row, len(key)+1)
	columns := make([]string, 0, len(key)+1)
	for k, v := range key {
		row[k] = v
		columns = append(columns, k)
	}
	if change.FieldName != "" {
		var value any
		if change.NewValue != nil {
			value = *change.NewValue
		}
		row[change.FieldName] = value
		columns = append(columns, change.FieldName)
	}

	query, params := sqlutil.Insert(target.Dialect(), table, columns, row)
	if _, err := target.Exec(ctx, query, params...); err != nil {
		return &apperrors.LoadError{Table: table, Stage: "up-sync insert", Cause: err}
	}
	return nil
}

func (u *UpSyncer) fetchTargetRow(ctx context.Context, target connector.SQLConnector, group changeGroup) (models.Row, error) {
	key := models.ParseRecordKey(group.recordKey)
	query, params := keyedSelect(target.Dialect(), group.tableName, key)
	rows, _, err := target.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to read target row: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// groupChanges buckets ledger rows by (table, record key), preserving
// capture order both across groups and within each group.
func groupChanges(changes []*models.ChangeRecord) []changeGroup {
	index := make(map[string]int)
	var groups []changeGroup
	for _, c := range changes {
		id := c.TableName + "\x00" + c.RecordKey
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, changeGroup{tableName: c.TableName, recordKey: c.RecordKey})
		}
		groups[i].changes = append(groups[i].changes, c)
	}
	return groups
}

// sourcePayload reconstructs the training-side view of a record from its
// ledger rows: field name to newest value.
func sourcePayload(group changeGroup) models.Row {
	payload := make(models.Row)
	for _, c := range group.changes {
		if c.NewValue != nil {
			payload[c.FieldName] = *c.NewValue
		} else {
			payload[c.FieldName] = nil
		}
	}
	return payload
}

func auditForChange(job *models.SyncJob, group changeGroup, change *models.ChangeRecord, targetRow models.Row) *models.AuditEntry {
	entry := &models.AuditEntry{
		JobID:     job.ID,
		Actor:     UpSyncActor,
		Action:    change.Action,
		TableName: group.tableName,
		RecordKey: group.recordKey,
	}
	if targetRow != nil {
		entry.Before = targetRow
	}
	if change.Action != models.ChangeActionDelete {
		after := models.Row{change.FieldName: nil}
		if change.NewValue != nil {
			after[change.FieldName] = *change.NewValue
		}
		entry.After = after
	}
	return entry
}

// timestampValue coerces a scanned timestamp column into a time.Time.
func timestampValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func keyedSelect(d sqlutil.Dialect, table string, key map[string]string) (string, []any) {
	where, params := keyPredicate(d, key, 0)
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", d.QuoteIdentifier(table), where), params
}

func keyedDelete(d sqlutil.Dialect, table string, key map[string]string) (string, []any) {
	where, params := keyPredicate(d, key, 0)
	return fmt.Sprintf("DELETE FROM %s WHERE %s", d.QuoteIdentifier(table), where), params
}

func keyPredicate(d sqlutil.Dialect, key map[string]string, offset int) (string, []any) {
	cols := make([]string, 0, len(key))
	for k := range key {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	var params []any
	clauses := make([]string, len(cols))
	for i, c := range cols {
		params = append(params, key[c])
		clauses[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(c), d.Placeholder(offset+len(params)))
	}
	return strings.Join(clauses, " AND "), params
}
