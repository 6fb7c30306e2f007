package activities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verifier"
)

type stubDriver struct {
	session *stubSession
	opts    browser.Options
}

func (d *stubDriver) Open(ctx context.Context) (verifier.Session, error) {
	return d.session, nil
}

type stubSession struct {
	navErr error
	src    string
}

func (s *stubSession) SetViewport(ctx context.Context, width, height int) error { return nil }
func (s *stubSession) Navigate(ctx context.Context, url string) error          { return s.navErr }
func (s *stubSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return false, nil
}
func (s *stubSession) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	return s.src, nil
}
func (s *stubSession) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (s *stubSession) Close() error                                   { return nil }

func newTestActivities(t *testing.T, session *stubSession) (*Activities, *stubDriver) {
	t.Helper()
	driver := &stubDriver{session: session}
	acts := &Activities{
		Config:        config.ServiceConfig{BrowserEngine: "rod", Headless: true},
		ScreenshotDir: "/shots",
		Fs:            afero.NewMemMapFs(),
		NewDriver: func(opts browser.Options) (verifier.Driver, error) {
			driver.opts = opts
			return driver, nil
		},
	}
	return acts, driver
}

func demoInput(mode models.Mode) workflows.VerifyPageInput {
	return workflows.VerifyPageInput{
		RunID: "run-1",
		Mode:  mode,
		Check: models.Check{
			Name:       "demo",
			Target:     "http://localhost:8000/demo.html",
			Screenshot: "verification/demo_page.png",
			Attribute:  &models.Attribute{Selector: "video source", Name: "src", Contains: "assets/demo.mp4"},
		},
	}
}

func TestVerifyPageActivity(t *testing.T) {
	acts, driver := newTestActivities(t, &stubSession{src: "assets/demo.mp4"})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.VerifyPageActivity, demoInput(models.ModeBestEffort))
	require.NoError(t, err)

	var result models.VerificationResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, models.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "/shots/run-1_demo_page.png", result.ScreenshotPath)

	exists, err := afero.Exists(acts.Fs, "/shots/run-1_demo_page.png")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.Equal(t, models.EngineRod, driver.opts.Engine)
	assert.True(t, driver.opts.Headless)
}

func TestVerifyPageActivityBrowserOptions(t *testing.T) {
	acts, driver := newTestActivities(t, &stubSession{src: "assets/demo.mp4"})
	acts.Config.Headless = false
	acts.Config.BrowserRemoteURL = "ws://chrome:9222"

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	// Unset run options fall back to the worker environment
	_, err := env.ExecuteActivity(acts.VerifyPageActivity, demoInput(models.ModeBestEffort))
	require.NoError(t, err)
	assert.False(t, driver.opts.Headless)
	assert.Equal(t, "ws://chrome:9222", driver.opts.RemoteURL)
	assert.Empty(t, driver.opts.BlockResources)

	headless := true
	input := demoInput(models.ModeBestEffort)
	input.Browser = models.BrowserOptions{
		Headless:       &headless,
		RemoteURL:      "ws://suite-chrome:9222",
		BlockResources: []string{"images"},
	}
	_, err = env.ExecuteActivity(acts.VerifyPageActivity, input)
	require.NoError(t, err)
	assert.True(t, driver.opts.Headless)
	assert.Equal(t, "ws://suite-chrome:9222", driver.opts.RemoteURL)
	assert.Equal(t, []string{"images"}, driver.opts.BlockResources)
}

func TestVerifyPageActivityFailureIsNotAnError(t *testing.T) {
	acts, _ := newTestActivities(t, &stubSession{src: "assets/wrong.mp4"})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.VerifyPageActivity, demoInput(models.ModeBestEffort))
	require.NoError(t, err)

	var result models.VerificationResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, models.OutcomeFailure, result.Outcome)
	require.NotNil(t, result.DiagnosticValue)
	assert.Equal(t, "assets/wrong.mp4", *result.DiagnosticValue)
}

func TestVerifyPageActivityErrors(t *testing.T) {
	tests := []struct {
		name    string
		session *stubSession
		mode    models.Mode
		errType string
		outcome models.Outcome
		hasShot bool
	}{
		{
			name:    "navigation",
			session: &stubSession{navErr: errors.New("net::ERR_CONNECTION_REFUSED")},
			mode:    models.ModeBestEffort,
			errType: ErrTypeNavigation,
			outcome: models.OutcomeError,
		},
		{
			name:    "strict assertion",
			session: &stubSession{src: "assets/wrong.mp4"},
			mode:    models.ModeStrict,
			errType: ErrTypeAssertion,
			outcome: models.OutcomeFailure,
			hasShot: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acts, _ := newTestActivities(t, tt.session)

			var ts testsuite.WorkflowTestSuite
			env := ts.NewTestActivityEnvironment()
			env.RegisterActivity(acts)

			_, err := env.ExecuteActivity(acts.VerifyPageActivity, demoInput(tt.mode))
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.errType, appErr.Type())
			assert.True(t, appErr.NonRetryable())

			var result models.VerificationResult
			require.NoError(t, appErr.Details(&result))
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Equal(t, "demo", result.Name)

			exists, err := afero.Exists(acts.Fs, "/shots/run-1_demo_page.png")
			require.NoError(t, err)
			assert.Equal(t, tt.hasShot, exists)
		})
	}
}

func TestVerifyPageActivityUnknownEngine(t *testing.T) {
	acts := &Activities{
		Config:    config.ServiceConfig{BrowserEngine: "rod"},
		Fs:        afero.NewMemMapFs(),
		NewDriver: browser.NewDriver,
	}

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	input := demoInput(models.ModeBestEffort)
	input.Browser.Engine = "firefox"
	_, err := env.ExecuteActivity(acts.VerifyPageActivity, input)
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeLaunch, appErr.Type())
}

func TestScreenshotPath(t *testing.T) {
	acts := &Activities{ScreenshotDir: "/tmp/screenshots"}
	assert.Equal(t, "/tmp/screenshots/r1_demo_page.png", acts.screenshotPath("r1", "verification/demo_page.png"))
	assert.Equal(t, "/tmp/screenshots/demo_page.png", acts.screenshotPath("", "verification/demo_page.png"))

	acts.ScreenshotDir = ""
	assert.Equal(t, "verification/demo_page.png", acts.screenshotPath("r1", "verification/demo_page.png"))
}

func TestRecordResultsActivity(t *testing.T) {
	ctx := context.Background()
	db, err := database.New("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	run := &models.VerificationRun{Status: models.StatusRunning}
	require.NoError(t, db.CreateRun(ctx, run))

	acts := &Activities{DB: db}
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	_, err = env.ExecuteActivity(acts.RecordResultsActivity, workflows.RecordResultsInput{
		RunID:        run.ID,
		Status:       models.StatusFailed,
		ErrorMessage: "1 of 1 checks did not pass",
		Results: []models.VerificationResult{
			{Name: "dashboard", Target: "http://localhost:3000/mobile", Outcome: models.OutcomeFailure},
		},
	})
	require.NoError(t, err)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	results, err := db.GetResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeFailure, results[0].Outcome)
}

func TestRecordResultsActivityWithoutDB(t *testing.T) {
	acts := &Activities{}
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.RecordResultsActivity, workflows.RecordResultsInput{RunID: "run-1"})
	require.NoError(t, err)
}
