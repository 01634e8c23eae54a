package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
)

func resolverFixtures(t *testing.T) (*Resolver, *fakeConflicts, *fakeChanges, *fakeAudit, *models.SyncConflict) {
	t.Helper()

	conflicts := newFakeConflicts()
	changes := &fakeChanges{}
	audit := &fakeAudit{}

	conflict := &models.SyncConflict{
		JobID:      uuid.New(),
		TableName:  "properties",
		RecordKey:  "parcel_id=A-1",
		SourceData: models.Row{"owner_name": "Jones", "assessed_value": "275000"},
		TargetData: models.Row{"parcel_id": "A-1", "owner_name": "Martinez", "assessed_value": 250000.0},
	}
	require.NoError(t, conflicts.Create(context.Background(), conflict))

	// The record's ledger rows are still pending while the conflict blocks it.
	changes.pending = []*models.ChangeRecord{
		{ID: 7, TableName: "properties", RecordKey: "parcel_id=A-1", FieldName: "owner_name", NewValue: strptr("Jones"), Action: models.ChangeActionUpdate},
		{ID: 8, TableName: "other", RecordKey: "parcel_id=A-1", FieldName: "owner_name", NewValue: strptr("X"), Action: models.ChangeActionUpdate},
	}

	return NewResolver(conflicts, changes, audit, zap.NewNop()), conflicts, changes, audit, conflict
}

func TestResolveSourceWins(t *testing.T) {
	r, conflicts, changes, audit, conflict := resolverFixtures(t)
	target := &fakeSQL{}

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionSourceWins, nil, "appraiser1", target)
	require.NoError(t, err)

	// The ledger's view lands on the target, one field update per non-key
	// field.
	updates := execsContaining(target.execs, "UPDATE")
	assert.Len(t, updates, 2)

	resolved := conflicts.byID[conflict.ID]
	assert.Equal(t, models.ResolutionStatusResolved, resolved.ResolutionStatus)
	assert.Equal(t, models.ResolutionSourceWins, resolved.ResolutionType)
	assert.Equal(t, conflict.SourceData, resolved.ResolvedData)
	assert.Equal(t, "appraiser1", resolved.ResolvedBy)

	// Only this record's ledger rows are settled; the other table's row
	// with the same key stays pending.
	assert.Equal(t, []int64{7}, changes.archived)
	require.Len(t, changes.pending, 1)
	assert.Equal(t, "other", changes.pending[0].TableName)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionResolve, audit.entries[0].Action)
	assert.Equal(t, "appraiser1", audit.entries[0].Actor)
	assert.Equal(t, conflict.TargetData, audit.entries[0].Before)
	assert.Equal(t, conflict.SourceData, audit.entries[0].After)
}

func TestResolveTargetWins(t *testing.T) {
	r, conflicts, changes, _, conflict := resolverFixtures(t)
	target := &fakeSQL{}

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionTargetWins, nil, "appraiser1", target)
	require.NoError(t, err)

	// Target wins means the target row is left exactly as it is.
	assert.Empty(t, target.execs)

	resolved := conflicts.byID[conflict.ID]
	assert.Equal(t, models.ResolutionTargetWins, resolved.ResolutionType)
	assert.Equal(t, conflict.TargetData, resolved.ResolvedData)

	// The ledger still settles so the record unblocks.
	assert.Equal(t, []int64{7}, changes.archived)
}

func TestResolveManual(t *testing.T) {
	r, conflicts, _, _, conflict := resolverFixtures(t)
	target := &fakeSQL{}

	manual := models.Row{"owner_name": "Jones-Martinez"}
	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionManual, manual, "appraiser1", target)
	require.NoError(t, err)

	updates := execsContaining(target.execs, "UPDATE")
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].params, "Jones-Martinez")

	assert.Equal(t, manual, conflicts.byID[conflict.ID].ResolvedData)
}

func TestResolveManualRequiresPayload(t *testing.T) {
	r, _, _, _, conflict := resolverFixtures(t)

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionManual, nil, "appraiser1", &fakeSQL{})
	require.ErrorIs(t, err, apperrors.ErrUnknownStrategy)
}

func TestResolveUnknownStrategy(t *testing.T) {
	r, _, _, _, conflict := resolverFixtures(t)

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionStrategy("coin_flip"), nil, "appraiser1", &fakeSQL{})
	require.ErrorIs(t, err, apperrors.ErrUnknownStrategy)
}

func TestResolveExactlyOnce(t *testing.T) {
	r, _, _, audit, conflict := resolverFixtures(t)
	target := &fakeSQL{}

	require.NoError(t, r.Resolve(context.Background(), conflict.ID, models.ResolutionTargetWins, nil, "appraiser1", target))

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionSourceWins, nil, "appraiser2", target)
	require.ErrorIs(t, err, apperrors.ErrConflictAlreadyResolved)

	// The losing attempt wrote nothing.
	assert.Empty(t, target.execs)
	assert.Len(t, audit.entries, 1)
}

func TestResolveSettlesRecordBehindDeepBacklog(t *testing.T) {
	r, _, changes, _, conflict := resolverFixtures(t)
	target := &fakeSQL{}

	// Bury the conflicted record's rows behind more pending rows than one
	// capped ledger page holds. Every one of its rows must still settle.
	for i := int64(0); i < 1200; i++ {
		changes.pending = append(changes.pending, &models.ChangeRecord{
			ID:        100 + i,
			TableName: "sales",
			RecordKey: "parcel_id=Z-9",
			FieldName: "sale_price",
			NewValue:  strptr("1"),
			Action:    models.ChangeActionUpdate,
		})
	}
	changes.pending = append(changes.pending, &models.ChangeRecord{
		ID:        2000,
		TableName: "properties",
		RecordKey: "parcel_id=A-1",
		FieldName: "assessed_value",
		NewValue:  strptr("275000"),
		Action:    models.ChangeActionUpdate,
	})

	err := r.Resolve(context.Background(), conflict.ID, models.ResolutionTargetWins, nil, "appraiser1", target)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{7, 2000}, changes.archived)
	for _, c := range changes.pending {
		if c.TableName == "properties" {
			assert.NotEqual(t, "parcel_id=A-1", c.RecordKey)
		}
	}
}

func TestResolveUnknownConflict(t *testing.T) {
	r, _, _, _, _ := resolverFixtures(t)

	err := r.Resolve(context.Background(), uuid.New(), models.ResolutionSourceWins, nil, "appraiser1", &fakeSQL{})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
