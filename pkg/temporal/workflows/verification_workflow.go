package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/page-verifier/pkg/models"
)

const (
	// TaskQueue is shared by the worker and the API client
	TaskQueue = "page-verification"

	VerifyPageActivityName    = "VerifyPageActivity"
	RecordResultsActivityName = "RecordResultsActivity"

	// ProgressQuery returns the SuiteResult collected so far
	ProgressQuery = "getProgress"

	defaultTimeoutSeconds = 120
)

// WorkflowID returns the Temporal workflow ID used for a run
func WorkflowID(runID string) string {
	return "page-verification-" + runID
}

// VerificationSuiteWorkflow verifies every check of a suite concurrently, one
// browser session per check, and records the results.
func VerificationSuiteWorkflow(ctx workflow.Context, input models.SuiteInput) (models.SuiteResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting verification suite", "runID", input.RunID, "checks", len(input.Checks), "mode", input.Mode)

	result := models.SuiteResult{
		RunID:   input.RunID,
		Status:  models.StatusRunning,
		Results: make([]models.VerificationResult, 0, len(input.Checks)),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.SuiteResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	timeout := input.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}

	// A verification is never retried
	verifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	ordered := make([]models.VerificationResult, len(input.Checks))
	selector := workflow.NewSelector(ctx)

	for i, check := range input.Checks {
		idx, check := i, check
		future := workflow.ExecuteActivity(verifyCtx, VerifyPageActivityName, VerifyPageInput{
			RunID:   input.RunID,
			Check:   check,
			Mode:    input.Mode,
			Browser: input.Browser,
		})

		selector.AddFuture(future, func(f workflow.Future) {
			var checkResult models.VerificationResult
			if err := f.Get(ctx, &checkResult); err != nil {
				checkResult = resultFromError(check, err)
				logger.Warn("Check did not complete", "check", check.Name, "error", err)
			}
			ordered[idx] = checkResult
			result.Results = append(result.Results, checkResult)
		})
	}

	// Wait for all checks to complete
	for range input.Checks {
		selector.Select(ctx)
	}

	result.Results = ordered
	result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
	result.Status, result.ErrorMessage = summarize(ordered)

	recordCtx := ctx
	if ctx.Err() != nil {
		result.Status = models.StatusCanceled
		result.ErrorMessage = "canceled"
		recordCtx, _ = workflow.NewDisconnectedContext(ctx)
	}

	recordCtx = workflow.WithActivityOptions(recordCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	})
	err = workflow.ExecuteActivity(recordCtx, RecordResultsActivityName, RecordResultsInput{
		RunID:        input.RunID,
		Status:       result.Status,
		ErrorMessage: result.ErrorMessage,
		Results:      ordered,
	}).Get(recordCtx, nil)
	if err != nil {
		logger.Warn("Failed to record results", "runID", input.RunID, "error", err.Error())
	}

	logger.Info("Verification suite completed", "status", result.Status, "duration", result.TotalDuration)
	return result, nil
}

// resultFromError recovers the partial result carried in the activity error,
// falling back to an ERROR result built from the check.
func resultFromError(check models.Check, err error) models.VerificationResult {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.HasDetails() {
		var res models.VerificationResult
		if appErr.Details(&res) == nil {
			if res.Error == "" {
				res.Error = appErr.Error()
			}
			return res
		}
	}

	return models.VerificationResult{
		Name:    check.Name,
		Target:  check.Target,
		Outcome: models.OutcomeError,
		Error:   err.Error(),
	}
}

func summarize(results []models.VerificationResult) (models.RunStatus, string) {
	var notPassed int
	for _, r := range results {
		if r.Outcome != models.OutcomeSuccess {
			notPassed++
		}
	}
	if notPassed == 0 {
		return models.StatusSuccess, ""
	}
	return models.StatusFailed, fmt.Sprintf("%d of %d checks did not pass", notPassed, len(results))
}

// VerifyPageInput is the input for verifying one check
type VerifyPageInput struct {
	RunID   string                `json:"run_id"`
	Check   models.Check          `json:"check"`
	Mode    models.Mode           `json:"mode"`
	Browser models.BrowserOptions `json:"browser"`
}

// RecordResultsInput is the input for persisting a finished run
type RecordResultsInput struct {
	RunID        string                      `json:"run_id"`
	Status       models.RunStatus            `json:"status"`
	ErrorMessage string                      `json:"error_message,omitempty"`
	Results      []models.VerificationResult `json:"results"`
}
