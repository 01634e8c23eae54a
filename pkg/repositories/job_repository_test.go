//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelworks/parcelsync/pkg/apperrors"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/testhelpers"
)

// jobTestContext holds test dependencies for job repository tests.
type jobTestContext struct {
	t     *testing.T
	store *testhelpers.StoreDB
	repo  JobRepository
}

func setupJobTest(t *testing.T) *jobTestContext {
	store := testhelpers.GetStoreDB(t)
	tc := &jobTestContext{t: t, store: store, repo: NewJobRepository(store.DB)}
	return tc
}

func (tc *jobTestContext) createJob() *models.SyncJob {
	tc.t.Helper()
	job := &models.SyncJob{
		Type:        models.JobTypeFull,
		SourceID:    uuid.New(),
		SubmittedBy: "tester",
	}
	require.NoError(tc.t, tc.repo.Create(context.Background(), job))
	return job
}

func TestJobLifecycle(t *testing.T) {
	tc := setupJobTest(t)
	ctx := context.Background()

	job := tc.createJob()

	stored, err := tc.repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Nil(t, stored.StartedAt)

	require.NoError(t, tc.repo.MarkRunning(ctx, job.ID))
	stored, err = tc.repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
	require.NotNil(t, stored.StartedAt)

	job.TotalRecords = 10
	job.ProcessedRecords = 9
	job.ErrorRecords = 1
	job.RowErrors = []apperrors.RowError{{Key: "parcel_id=A-1", Stage: "normalize", Cause: "bad year"}}
	require.NoError(t, tc.repo.MarkTerminal(ctx, job, models.JobStatusCompleted))

	stored, err = tc.repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 10, stored.TotalRecords)
	assert.Equal(t, 9, stored.ProcessedRecords)
	require.Len(t, stored.RowErrors, 1)
	require.NotNil(t, stored.EndedAt)
	// Finalizing touches counters and ended_at, never the start stamp.
	require.NotNil(t, stored.StartedAt)
}

func TestJobMarkRunningOnlyFromPending(t *testing.T) {
	tc := setupJobTest(t)
	ctx := context.Background()

	job := tc.createJob()
	require.NoError(t, tc.repo.MarkRunning(ctx, job.ID))

	// A second worker racing on the same job loses.
	err := tc.repo.MarkRunning(ctx, job.ID)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestJobMarkTerminalOnlyFromRunning(t *testing.T) {
	tc := setupJobTest(t)
	ctx := context.Background()

	job := tc.createJob()
	err := tc.repo.MarkTerminal(ctx, job, models.JobStatusCompleted)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	stored, err := tc.repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
}

func TestJobCancel(t *testing.T) {
	tc := setupJobTest(t)
	ctx := context.Background()

	pending := tc.createJob()
	require.NoError(t, tc.repo.Cancel(ctx, pending.ID))
	stored, err := tc.repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)

	// A terminal job cannot be cancelled again.
	err = tc.repo.Cancel(ctx, pending.ID)
	require.ErrorIs(t, err, apperrors.ErrJobNotCancellable)

	err = tc.repo.Cancel(ctx, uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
