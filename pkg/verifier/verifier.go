// Package verifier opens a page in a browser, checks that it is ready and
// saves a full-page screenshot of it.
//
// Launch and navigation failures are fatal. A selector that never appears and
// an attribute that does not match are reported in the result and, in strict
// mode, also returned as errors once the screenshot has been written.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.temporal.io/sdk/log"

	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/models"
)

// Verifier runs checks against pages opened through a Driver
type Verifier struct {
	driver Driver
	logger log.Logger
	fs     afero.Fs
	mode   models.Mode
}

// Option configures a Verifier
type Option func(*Verifier)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger log.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// WithFs sets the filesystem screenshots are written to
func WithFs(fs afero.Fs) Option {
	return func(v *Verifier) { v.fs = fs }
}

// WithMode sets strict or best-effort reporting
func WithMode(mode models.Mode) Option {
	return func(v *Verifier) { v.mode = mode }
}

// New creates a verifier
func New(driver Driver, opts ...Option) *Verifier {
	v := &Verifier{
		driver: driver,
		logger: logging.NewTemporalLogger(logging.NewNullLogger()),
		fs:     afero.NewOsFs(),
		mode:   models.ModeBestEffort,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.mode == "" {
		v.mode = models.ModeBestEffort
	}
	return v
}

// Verify opens check.Target, applies its readiness condition and writes a screenshot.
// The browser session is closed before Verify returns on every path.
func (v *Verifier) Verify(ctx context.Context, check models.Check) (models.VerificationResult, error) {
	startTime := time.Now()
	result := models.VerificationResult{
		Name:    check.Name,
		Target:  ResolveTarget(check.Target),
		Outcome: models.OutcomeError,
	}

	session, err := v.driver.Open(ctx)
	if err != nil {
		launchErr := &LaunchError{Err: err}
		result.Error = launchErr.Error()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, launchErr
	}
	defer func() {
		if err := session.Close(); err != nil {
			v.logger.Warn("Failed to close browser session", "check", check.Name, "error", err)
		}
	}()

	if vp := check.Viewport; vp != nil && vp.Width > 0 && vp.Height > 0 {
		if err := session.SetViewport(ctx, vp.Width, vp.Height); err != nil {
			v.logger.Warn("Failed to set viewport", "check", check.Name, "error", err)
		}
	}

	v.logger.Info("Navigating", "check", check.Name, "target", result.Target)
	if err := session.Navigate(ctx, result.Target); err != nil {
		navErr := &NavigationError{Target: result.Target, Err: err}
		result.Error = navErr.Error()
		result.Duration = time.Since(startTime).Milliseconds()
		return result, navErr
	}

	logical := v.applyReadiness(ctx, session, check, &result)
	if logical == nil {
		result.Outcome = models.OutcomeSuccess
	} else {
		result.Outcome = models.OutcomeFailure
	}

	if err := v.captureScreenshot(ctx, session, check.Screenshot); err != nil {
		v.logger.Error("Failed to save screenshot", "check", check.Name, "path", check.Screenshot, "error", err)
		result.Error = joinErrors(result.Error, err.Error())
	} else {
		result.ScreenshotPath = check.Screenshot
		v.logger.Info("Screenshot saved", "check", check.Name, "path", check.Screenshot)
	}

	result.Duration = time.Since(startTime).Milliseconds()
	if logical != nil && v.mode == models.ModeStrict {
		return result, logical
	}
	return result, nil
}

// applyReadiness fills ConditionMet and DiagnosticValue and returns the logical failure, if any
func (v *Verifier) applyReadiness(ctx context.Context, session Session, check models.Check, result *models.VerificationResult) error {
	switch {
	case check.WaitFor != nil:
		timeout := check.WaitFor.Timeout()
		found, err := session.WaitForSelector(ctx, check.WaitFor.Selector, timeout)
		if err != nil {
			v.logger.Warn("Waiting for selector failed, taking screenshot anyway",
				"check", check.Name, "selector", check.WaitFor.Selector, "error", err)
			result.Error = err.Error()
		}
		if !found {
			if err == nil {
				result.TimedOut = true
				v.logger.Warn("Timeout waiting for selector, taking screenshot anyway",
					"check", check.Name, "selector", check.WaitFor.Selector, "timeout", timeout)
			}
			return &ReadinessTimeoutError{Selector: check.WaitFor.Selector, Timeout: timeout}
		}
		result.ConditionMet = true
		return nil

	case check.Attribute != nil:
		attr := check.Attribute
		value, err := session.Attribute(ctx, attr.Selector, attr.Name, attr.Timeout())
		if err != nil {
			v.logger.Warn("Failed to read attribute", "check", check.Name, "selector", attr.Selector, "attribute", attr.Name, "error", err)
			result.Error = err.Error()
			return &AssertionMismatchError{Selector: attr.Selector, Attribute: attr.Name, Expected: attr.Contains, Err: err}
		}
		result.DiagnosticValue = &value
		v.logger.Info("Attribute read", "check", check.Name, "selector", attr.Selector, "attribute", attr.Name, "value", value)
		if !strings.Contains(value, attr.Contains) {
			return &AssertionMismatchError{Selector: attr.Selector, Attribute: attr.Name, Expected: attr.Contains, Actual: value}
		}
		result.ConditionMet = true
		return nil

	default:
		result.ConditionMet = true
		return nil
	}
}

func (v *Verifier) captureScreenshot(ctx context.Context, session Session, path string) error {
	if path == "" {
		return errors.New("no screenshot path")
	}

	data, err := session.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}

	if err := v.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	if err := afero.WriteFile(v.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// ResolveTarget turns a local path into an absolute file:// URL and leaves URLs untouched
func ResolveTarget(target string) string {
	if u, err := url.Parse(target); err == nil && len(u.Scheme) > 1 {
		return target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func joinErrors(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
