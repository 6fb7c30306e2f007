// Package report prints verification results to the console.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"dev/bravebird/page-verifier/pkg/models"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	failureColor = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	faintColor   = color.New(color.Faint)
)

// Reporter writes human readable result lines
type Reporter struct {
	w io.Writer
}

// New creates a reporter writing to w
func New(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// Start prints the line shown before a check runs
func (r *Reporter) Start(check models.Check, target string) {
	fmt.Fprintf(r.w, "Navigating to %s\n", target)
}

// Result prints the outcome of one check
func (r *Reporter) Result(check models.Check, result models.VerificationResult) {
	if check.Attribute != nil && result.DiagnosticValue != nil {
		fmt.Fprintf(r.w, "%s: %s\n", describeAttribute(check.Attribute), *result.DiagnosticValue)
	}

	switch result.Outcome {
	case models.OutcomeSuccess:
		successColor.Fprint(r.w, "SUCCESS")
		fmt.Fprintf(r.w, ": %s\n", successMessage(check))
	case models.OutcomeFailure:
		if check.WaitFor != nil {
			if result.TimedOut {
				warnColor.Fprintf(r.w, "Timeout waiting for %s, taking screenshot anyway\n", check.WaitFor.Selector)
			} else {
				warnColor.Fprintf(r.w, "Waiting for %s failed, taking screenshot anyway\n", check.WaitFor.Selector)
			}
		}
		failureColor.Fprint(r.w, "FAILURE")
		fmt.Fprintf(r.w, ": %s\n", failureMessage(check, result))
	default:
		failureColor.Fprint(r.w, "ERROR")
		fmt.Fprintf(r.w, ": %s\n", result.Error)
	}

	if result.ScreenshotPath != "" {
		fmt.Fprintf(r.w, "Screenshot saved to %s\n", result.ScreenshotPath)
	}
}

// Summary prints totals across all results
func (r *Reporter) Summary(results []models.VerificationResult) {
	var passed, failed, errored int
	for _, res := range results {
		switch res.Outcome {
		case models.OutcomeSuccess:
			passed++
		case models.OutcomeFailure:
			failed++
		default:
			errored++
		}
	}
	faintColor.Fprintf(r.w, "\n%d checks: %d passed, %d failed, %d errors\n", len(results), passed, failed, errored)
}

func describeAttribute(a *models.Attribute) string {
	return fmt.Sprintf("%s %s", a.Selector, a.Name)
}

func successMessage(check models.Check) string {
	switch {
	case check.Attribute != nil:
		return fmt.Sprintf("%s contains %q", describeAttribute(check.Attribute), check.Attribute.Contains)
	case check.WaitFor != nil:
		return fmt.Sprintf("%s appeared", check.WaitFor.Selector)
	default:
		return fmt.Sprintf("%s loaded", check.Name)
	}
}

func failureMessage(check models.Check, result models.VerificationResult) string {
	switch {
	case check.Attribute != nil && result.DiagnosticValue == nil:
		return fmt.Sprintf("could not read %s: %s", describeAttribute(check.Attribute), result.Error)
	case check.Attribute != nil:
		return fmt.Sprintf("%s does not contain %q", describeAttribute(check.Attribute), check.Attribute.Contains)
	case check.WaitFor != nil && !result.TimedOut && result.Error != "":
		return fmt.Sprintf("%s did not appear: %s", check.WaitFor.Selector, result.Error)
	case check.WaitFor != nil:
		return fmt.Sprintf("%s did not appear", check.WaitFor.Selector)
	default:
		return result.Error
	}
}
