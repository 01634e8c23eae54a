package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
)

var captureDate = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func upsyncFixtures() (*fakeChanges, *fakeConflicts, *fakeAudit, *fakeTables) {
	changes := &fakeChanges{}
	conflicts := newFakeConflicts()
	audit := &fakeAudit{}
	tables := &fakeTables{configs: []*models.TableConfiguration{propertiesTableConfig()}}
	return changes, conflicts, audit, tables
}

func newTestUpSyncer(changes *fakeChanges, conflicts *fakeConflicts, audit *fakeAudit, tables *fakeTables) *UpSyncer {
	return NewUpSyncer(changes, conflicts, audit, tables, 100, zap.NewNop())
}

func pendingChange(id int64, key, field, value string) *models.ChangeRecord {
	return &models.ChangeRecord{
		ID:        id,
		TableName: "properties",
		RecordKey: key,
		FieldName: field,
		NewValue:  strptr(value),
		Action:    models.ChangeActionUpdate,
		Date:      captureDate,
	}
}

// targetWithRow answers the keyed SELECT with one row and records
// everything else as a write.
func targetWithRow(row models.Row) *fakeSQL {
	return &fakeSQL{
		queryFn: func(query string, _ ...any) ([]models.Row, []string, error) {
			if row == nil {
				return nil, nil, nil
			}
			return []models.Row{row}, nil, nil
		},
	}
}

func TestUpSyncAppliesAndArchives(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
		pendingChange(2, "parcel_id=A-1", "assessed_value", "275000"),
	}

	// Target row is older than the captured change: no conflict.
	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"owner_name": "Smith",
		"updated_at": captureDate.Add(-time.Hour),
	})

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	assert.Equal(t, 2, job.TotalRecords)
	assert.Equal(t, 2, job.ProcessedRecords)
	assert.Zero(t, job.ConflictRecords)
	assert.Zero(t, job.ErrorRecords)

	// Both field updates hit the target.
	updates := execsContaining(target.execs, "UPDATE")
	require.Len(t, updates, 2)
	assert.Contains(t, updates[0].params, "Jones")

	// Applied rows moved to the archive and left the live ledger.
	assert.Equal(t, []int64{1, 2}, changes.archived)
	assert.Empty(t, changes.pending)

	// One audit entry per change, attributed to the engine.
	require.Len(t, audit.entries, 2)
	assert.Equal(t, UpSyncActor, audit.entries[0].Actor)
	assert.Equal(t, "parcel_id=A-1", audit.entries[0].RecordKey)
	assert.Equal(t, models.Row{"owner_name": "Jones"}, audit.entries[0].After)
	assert.Empty(t, conflicts.created)
}

func TestUpSyncDetectsConflictWhenTargetNewer(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
	}

	targetRow := models.Row{
		"parcel_id":  "A-1",
		"owner_name": "Martinez",
		"updated_at": captureDate.Add(time.Hour),
	}
	target := targetWithRow(targetRow)

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	assert.Equal(t, 1, job.ConflictRecords)
	assert.Zero(t, job.ProcessedRecords)

	// No writes, no archive: the ledger row stays pending.
	assert.Empty(t, target.execs)
	assert.Empty(t, changes.archived)
	require.Len(t, changes.pending, 1)

	require.Len(t, conflicts.created, 1)
	conflict := conflicts.created[0]
	assert.Equal(t, "properties", conflict.TableName)
	assert.Equal(t, "parcel_id=A-1", conflict.RecordKey)
	assert.Equal(t, models.Row{"owner_name": "Jones"}, conflict.SourceData)
	assert.Equal(t, targetRow, conflict.TargetData)
}

func TestUpSyncConflictChecksOldestPendingChange(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	first := pendingChange(1, "parcel_id=A-1", "owner_name", "Jones")
	first.Date = captureDate.Add(-2 * time.Hour)
	second := pendingChange(2, "parcel_id=A-1", "assessed_value", "275000")
	changes.pending = []*models.ChangeRecord{first, second}

	// The target was edited after the first capture but before the second.
	// That edit must still surface as a conflict, not be overwritten.
	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"owner_name": "Martinez",
		"updated_at": captureDate.Add(-time.Hour),
	})

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	assert.Equal(t, 2, job.ConflictRecords)
	assert.Zero(t, job.ProcessedRecords)
	assert.Empty(t, target.execs)
	assert.Empty(t, changes.archived)
	require.Len(t, changes.pending, 2)
	require.Len(t, conflicts.created, 1)
}

func TestUpSyncNullTimestampNeverConflicts(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
	}

	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"owner_name": "Smith",
		"updated_at": nil,
	})

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	assert.Zero(t, job.ConflictRecords)
	assert.Equal(t, 1, job.ProcessedRecords)
	assert.Empty(t, conflicts.created)
	assert.Equal(t, []int64{1}, changes.archived)
}

func TestUpSyncPendingConflictBlocksRecord(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
		pendingChange(2, "parcel_id=A-2", "owner_name", "Lee"),
	}
	conflicts.pendingFor["properties\x00parcel_id=A-1"] = true

	target := targetWithRow(models.Row{
		"parcel_id":  "A-2",
		"updated_at": captureDate.Add(-time.Hour),
	})

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	// A-1 is blocked and stays in the ledger; A-2 propagates.
	assert.Equal(t, 1, job.ConflictRecords)
	assert.Equal(t, 1, job.ProcessedRecords)
	assert.Equal(t, []int64{2}, changes.archived)
	require.Len(t, changes.pending, 1)
	assert.Equal(t, int64(1), changes.pending[0].ID)
}

func TestUpSyncInsertSeedsMissingTargetRow(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	insert := pendingChange(1, "parcel_id=B-9", "owner_name", "New Owner")
	insert.Action = models.ChangeActionInsert
	changes.pending = []*models.ChangeRecord{insert}

	// Target has no such row: the update affects zero rows, so the engine
	// falls back to an insert seeded from the key and changed field.
	target := targetWithRow(nil)
	target.execFn = func(query string, _ ...any) (int64, error) { return 0, nil }

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	inserts := execsContaining(target.execs, "INSERT INTO")
	require.Len(t, inserts, 1)
	assert.Contains(t, inserts[0].params, "B-9")
	assert.Contains(t, inserts[0].params, "New Owner")
	assert.Equal(t, []int64{1}, changes.archived)
}

func TestUpSyncUpdateWithVanishedTargetRowAuditedAsSkip(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=C-3", "owner_name", "Jones"),
	}

	// The target row is gone, so the update affects zero rows. The change
	// is still settled but the zero-write leaves a skip audit entry.
	target := targetWithRow(nil)
	target.execFn = func(query string, _ ...any) (int64, error) { return 0, nil }

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	assert.Empty(t, execsContaining(target.execs, "INSERT INTO"))
	assert.Equal(t, []int64{1}, changes.archived)
	assert.Empty(t, changes.pending)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionSkip, audit.entries[0].Action)
	assert.Empty(t, conflicts.created)
}

func TestUpSyncRerunAfterArchiveFailureConverges(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
	}
	changes.archiveErr = errors.New("connection reset")

	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"owner_name": "Smith",
		"updated_at": captureDate.Add(-time.Hour),
	})

	// First pass applies the write but fails to archive, so the ledger row
	// stays pending.
	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))
	require.Len(t, changes.pending, 1)
	assert.Empty(t, changes.archived)

	// A re-run repeats the identical write and settles the row. The second
	// write sets the same field to the same value, so the target converges.
	changes.archiveErr = nil
	rerun := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), rerun, target, nil))

	updates := execsContaining(target.execs, "UPDATE")
	require.Len(t, updates, 2)
	assert.Equal(t, updates[0].query, updates[1].query)
	assert.Equal(t, updates[0].params, updates[1].params)
	assert.Equal(t, []int64{1}, changes.archived)
	assert.Empty(t, changes.pending)
	assert.Equal(t, 1, rerun.ProcessedRecords)
}

func TestUpSyncDelete(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	del := pendingChange(1, "parcel_id=A-1", "", "")
	del.Action = models.ChangeActionDelete
	del.NewValue = nil
	changes.pending = []*models.ChangeRecord{del}

	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"updated_at": captureDate.Add(-time.Hour),
	})

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil))

	deletes := execsContaining(target.execs, "DELETE FROM")
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{"A-1"}, deletes[0].params)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ChangeActionDelete, audit.entries[0].Action)
	assert.Nil(t, audit.entries[0].After)
}

func TestUpSyncGroupFailureLeavesLedgerPending(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
	}

	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"updated_at": captureDate.Add(-time.Hour),
	})
	target.execFn = func(string, ...any) (int64, error) {
		return 0, errors.New("permission denied")
	}

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	require.NoError(t, u.Run(context.Background(), job, target, nil), "group failures are tallied, not fatal")

	assert.Equal(t, 1, job.ErrorRecords)
	require.Len(t, job.RowErrors, 1)
	assert.Equal(t, "up-sync", job.RowErrors[0].Stage)
	assert.Empty(t, changes.archived)
	require.Len(t, changes.pending, 1)
}

func TestUpSyncCancelBetweenGroups(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	changes.pending = []*models.ChangeRecord{
		pendingChange(1, "parcel_id=A-1", "owner_name", "Jones"),
		pendingChange(2, "parcel_id=A-2", "owner_name", "Lee"),
	}

	target := targetWithRow(models.Row{
		"parcel_id":  "A-1",
		"updated_at": captureDate.Add(-time.Hour),
	})

	// Cancel after the first group.
	calls := 0
	cancelled := func(context.Context) bool {
		calls++
		return calls > 1
	}

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync}
	err := u.Run(context.Background(), job, target, cancelled)
	require.ErrorIs(t, err, ErrCancelled)

	// Clean boundary: the first group is fully applied and archived, the
	// second untouched.
	assert.Equal(t, []int64{1}, changes.archived)
	require.Len(t, changes.pending, 1)
	assert.Equal(t, int64(2), changes.pending[0].ID)
}

func TestUpSyncTargetUnreachable(t *testing.T) {
	changes, conflicts, audit, tables := upsyncFixtures()
	target := &fakeSQL{pingErr: errors.New("connection refused")}

	u := newTestUpSyncer(changes, conflicts, audit, tables)
	job := &models.SyncJob{ID: uuid.New(), Type: models.JobTypeUpSync, SourceID: uuid.New()}
	err := u.Run(context.Background(), job, target, nil)

	var connErr *apperrors.ConnectivityError
	require.True(t, errors.As(err, &connErr))
}

func TestGroupChangesPreservesCaptureOrder(t *testing.T) {
	groups := groupChanges([]*models.ChangeRecord{
		{ID: 1, TableName: "properties", RecordKey: "parcel_id=A-1"},
		{ID: 2, TableName: "sales", RecordKey: "parcel_id=A-1"},
		{ID: 3, TableName: "properties", RecordKey: "parcel_id=A-1"},
		{ID: 4, TableName: "properties", RecordKey: "parcel_id=A-2"},
	})

	require.Len(t, groups, 3)
	assert.Equal(t, "properties", groups[0].tableName)
	require.Len(t, groups[0].changes, 2)
	assert.Equal(t, int64(1), groups[0].changes[0].ID)
	assert.Equal(t, int64(3), groups[0].changes[1].ID)
	assert.Equal(t, "sales", groups[1].tableName)
	assert.Equal(t, "parcel_id=A-2", groups[2].recordKey)
}

func TestTimestampValue(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, ok := timestampValue(now)
	assert.True(t, ok)
	assert.Equal(t, now, got)

	got, ok = timestampValue("2024-06-01T12:00:00Z")
	assert.True(t, ok)
	assert.Equal(t, now, got)

	_, ok = timestampValue(nil)
	assert.False(t, ok)

	var nilTime *time.Time
	_, ok = timestampValue(nilTime)
	assert.False(t, ok)
}
