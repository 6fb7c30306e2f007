package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	run := &models.VerificationRun{
		Status: models.StatusPending,
		Mode:   models.ModeBestEffort,
		Engine: models.EngineRod,
	}
	require.NoError(t, db.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.EngineRod, got.Engine)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, db.MarkRunStarted(ctx, run.ID, "page-verification-"+run.ID, "temporal-run"))
	got, err = db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, "page-verification-"+run.ID, got.TemporalWorkflowID)
	assert.Equal(t, "temporal-run", got.TemporalRunID)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, db.UpdateRunStatus(ctx, run.ID, models.StatusFailed, "1 check failed"))
	got, err = db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "1 check failed", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestGetRunNotFound(t *testing.T) {
	db := newTestDB(t)

	got, err := db.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	runs, err := db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.CreateRun(ctx, &models.VerificationRun{Status: models.StatusPending}))
	}

	runs, err = db.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSaveAndGetResults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	src := "assets/demo.mp4"
	results := []models.VerificationResult{
		{
			Name:            "demo",
			Target:          "file:///srv/docs/demo.html",
			ConditionMet:    true,
			Outcome:         models.OutcomeSuccess,
			DiagnosticValue: &src,
			ScreenshotPath:  "/tmp/screenshots/run_demo_page.png",
			Duration:        120,
		},
		{
			Name:           "dashboard",
			Target:         "http://localhost:3000/mobile",
			Outcome:        models.OutcomeFailure,
			ScreenshotPath: "/tmp/screenshots/run_dashboard.png",
			Duration:       5100,
		},
	}

	require.NoError(t, db.SaveResults(ctx, "run-1", results))
	for _, r := range results {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "run-1", r.RunID)
	}

	got, err := db.GetResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// ordered by check name
	assert.Equal(t, "dashboard", got[0].Name)
	assert.False(t, got[0].ConditionMet)
	assert.Nil(t, got[0].DiagnosticValue)
	assert.Equal(t, int64(5100), got[0].Duration)

	assert.Equal(t, "demo", got[1].Name)
	assert.True(t, got[1].ConditionMet)
	assert.Equal(t, models.OutcomeSuccess, got[1].Outcome)
	require.NotNil(t, got[1].DiagnosticValue)
	assert.Equal(t, "assets/demo.mp4", *got[1].DiagnosticValue)

	// Saving again replaces rather than appends
	require.NoError(t, db.SaveResults(ctx, "run-1", results[:1]))
	got, err = db.GetResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := db.GetResults(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
