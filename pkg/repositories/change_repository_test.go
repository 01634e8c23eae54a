//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/testhelpers"
)

// changeTestContext holds test dependencies for change ledger tests.
type changeTestContext struct {
	t     *testing.T
	store *testhelpers.StoreDB
	repo  ChangeRepository
}

// setupChangeTest initializes the test context against the shared container
// and starts from an empty ledger.
func setupChangeTest(t *testing.T) *changeTestContext {
	store := testhelpers.GetStoreDB(t)
	tc := &changeTestContext{t: t, store: store, repo: NewChangeRepository(store.DB)}
	tc.truncate()
	t.Cleanup(tc.truncate)
	return tc
}

func (tc *changeTestContext) truncate() {
	tc.t.Helper()
	ctx := context.Background()
	_, _ = tc.store.DB.Exec(ctx, "DELETE FROM up_sync_data_change")
	_, _ = tc.store.DB.Exec(ctx, "DELETE FROM up_sync_data_change_archive")
}

func (tc *changeTestContext) append(key, field, value string) *models.ChangeRecord {
	tc.t.Helper()
	change := &models.ChangeRecord{
		TableName: "properties",
		RecordKey: key,
		FieldName: field,
		NewValue:  &value,
		Action:    models.ChangeActionUpdate,
		Date:      time.Now(),
	}
	require.NoError(tc.t, tc.repo.Append(context.Background(), change))
	return change
}

func TestChangeArchiveMovesRowsAtomically(t *testing.T) {
	tc := setupChangeTest(t)
	ctx := context.Background()

	a := tc.append("parcel_id=A-1", "owner_name", "Jones")
	b := tc.append("parcel_id=A-1", "assessed_value", "275000")
	c := tc.append("parcel_id=A-2", "owner_name", "Lee")

	require.NoError(t, tc.repo.Archive(ctx, []int64{a.ID, b.ID}))

	pending, err := tc.repo.ListUnprocessed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)

	archived, err := tc.repo.ListArchived(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	for _, row := range archived {
		assert.True(t, row.IsProcessed)
		assert.False(t, row.ArchivedAt.IsZero())
	}
}

func TestChangeArchiveUnknownIDLeavesLedgerIntact(t *testing.T) {
	tc := setupChangeTest(t)
	ctx := context.Background()

	a := tc.append("parcel_id=A-1", "owner_name", "Jones")

	// One id does not exist: the copy count mismatch aborts the whole move.
	require.Error(t, tc.repo.Archive(ctx, []int64{a.ID, a.ID + 999}))

	pending, err := tc.repo.ListUnprocessed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the real row must stay pending")

	archived, err := tc.repo.ListArchived(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, archived, "nothing may land in the archive")
}

func TestChangeListUnprocessedForRecord(t *testing.T) {
	tc := setupChangeTest(t)
	ctx := context.Background()

	first := tc.append("parcel_id=A-1", "owner_name", "Jones")
	tc.append("parcel_id=A-2", "owner_name", "Lee")
	second := tc.append("parcel_id=A-1", "assessed_value", "275000")

	rows, err := tc.repo.ListUnprocessedForRecord(ctx, "properties", "parcel_id=A-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID, "capture order is preserved")
	assert.Equal(t, second.ID, rows[1].ID)

	rows, err = tc.repo.ListUnprocessedForRecord(ctx, "sales", "parcel_id=A-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestChangeCountUnprocessed(t *testing.T) {
	tc := setupChangeTest(t)
	ctx := context.Background()

	tc.append("parcel_id=A-1", "owner_name", "Jones")
	tc.append("parcel_id=A-2", "owner_name", "Lee")

	count, err := tc.repo.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
