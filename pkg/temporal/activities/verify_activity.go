package activities

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// Error types carried by non-retryable activity errors
const (
	ErrTypeLaunch           = "LaunchError"
	ErrTypeNavigation       = "NavigationError"
	ErrTypeReadinessTimeout = "ReadinessTimeoutError"
	ErrTypeAssertion        = "AssertionMismatchError"
	ErrTypeVerification     = "VerificationError"
)

// Activities holds activity implementations
type Activities struct {
	Config        config.ServiceConfig
	ScreenshotDir string
	DB            *database.DB
	Fs            afero.Fs

	// NewDriver builds the browser driver for a check. Default: browser.NewDriver.
	NewDriver func(browser.Options) (verifier.Driver, error)
}

// NewActivities creates new activities. db may be nil.
func NewActivities(cfg config.ServiceConfig, db *database.DB) *Activities {
	return &Activities{
		Config:        cfg,
		ScreenshotDir: cfg.ScreenshotDir,
		DB:            db,
		Fs:            afero.NewOsFs(),
		NewDriver:     browser.NewDriver,
	}
}

// VerifyPageActivity verifies one check in its own browser session
func (a *Activities) VerifyPageActivity(ctx context.Context, input workflows.VerifyPageInput) (models.VerificationResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Verifying page", "runID", input.RunID, "check", input.Check.Name)

	check := input.Check
	check.Screenshot = a.screenshotPath(input.RunID, check.Screenshot)

	newDriver := a.NewDriver
	if newDriver == nil {
		newDriver = browser.NewDriver
	}
	driver, err := newDriver(a.Config.BrowserOptions(input.Browser))
	if err != nil {
		result := models.VerificationResult{
			Name:    check.Name,
			Target:  check.Target,
			Outcome: models.OutcomeError,
			Error:   err.Error(),
		}
		return result, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeLaunch, err, result)
	}

	fs := a.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	v := verifier.New(driver,
		verifier.WithLogger(logger),
		verifier.WithFs(fs),
		verifier.WithMode(input.Mode),
	)

	result, err := v.Verify(ctx, check)
	result.RunID = input.RunID
	if err != nil {
		logger.Warn("Verification failed", "check", check.Name, "error", err.Error())
		return result, temporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err, result)
	}

	logger.Info("Page verified", "check", check.Name, "outcome", result.Outcome)
	return result, nil
}

// RecordResultsActivity persists the results and final status of a run
func (a *Activities) RecordResultsActivity(ctx context.Context, input workflows.RecordResultsInput) error {
	logger := activity.GetLogger(ctx)

	if a.DB == nil {
		logger.Warn("Database not configured, results not recorded", "runID", input.RunID)
		return nil
	}

	if err := a.DB.SaveResults(ctx, input.RunID, input.Results); err != nil {
		return fmt.Errorf("record results for run %s: %w", input.RunID, err)
	}
	if err := a.DB.UpdateRunStatus(ctx, input.RunID, input.Status, input.ErrorMessage); err != nil {
		return fmt.Errorf("record status for run %s: %w", input.RunID, err)
	}

	logger.Info("Results recorded", "runID", input.RunID, "status", input.Status, "results", len(input.Results))
	return nil
}

// screenshotPath places screenshots of concurrent runs side by side in ScreenshotDir
func (a *Activities) screenshotPath(runID, configured string) string {
	if a.ScreenshotDir == "" {
		return configured
	}
	name := filepath.Base(configured)
	if runID != "" {
		name = runID + "_" + name
	}
	return filepath.Join(a.ScreenshotDir, name)
}

func errorType(err error) string {
	var (
		launchErr    *verifier.LaunchError
		navErr       *verifier.NavigationError
		readinessErr *verifier.ReadinessTimeoutError
		assertErr    *verifier.AssertionMismatchError
	)
	switch {
	case errors.As(err, &launchErr):
		return ErrTypeLaunch
	case errors.As(err, &navErr):
		return ErrTypeNavigation
	case errors.As(err, &readinessErr):
		return ErrTypeReadinessTimeout
	case errors.As(err, &assertErr):
		return ErrTypeAssertion
	default:
		return ErrTypeVerification
	}
}
