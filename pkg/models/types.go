package models

import (
	"time"
)

// ==================== Check Types ====================

// Check describes one page to verify
type Check struct {
	Name       string     `json:"name" yaml:"name"`
	Target     string     `json:"target" yaml:"target"`         // URL or local file path
	Screenshot string     `json:"screenshot" yaml:"screenshot"` // Output PNG path
	WaitFor    *WaitFor   `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
	Attribute  *Attribute `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Viewport   *Viewport  `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// WaitFor waits for a CSS selector to appear
type WaitFor struct {
	Selector  string `json:"selector" yaml:"selector"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// Attribute reads a DOM attribute and compares it against an expected substring
type Attribute struct {
	Selector  string `json:"selector" yaml:"selector"`
	Name      string `json:"name" yaml:"name"`
	Contains  string `json:"contains" yaml:"contains"`
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// Viewport overrides the page size before navigation
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// DefaultTimeoutMs bounds readiness waits when a check does not set one
const DefaultTimeoutMs = 5000

// Timeout returns the wait bound for the selector
func (w WaitFor) Timeout() time.Duration {
	return timeoutOrDefault(w.TimeoutMs)
}

// Timeout returns the element lookup bound for the attribute
func (a Attribute) Timeout() time.Duration {
	return timeoutOrDefault(a.TimeoutMs)
}

func timeoutOrDefault(ms int) time.Duration {
	if ms <= 0 {
		ms = DefaultTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Mode controls how logical failures are reported
type Mode string

const (
	ModeBestEffort Mode = "best-effort" // Timeouts and mismatches are diagnostics only
	ModeStrict     Mode = "strict"      // Timeouts and mismatches are returned as errors
)

// Engine selects the browser automation library
type Engine string

const (
	EngineRod      Engine = "rod"
	EngineChromedp Engine = "chromedp"
)

// ==================== Result Types ====================

// Outcome classifies a single verification
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeError   Outcome = "ERROR" // Launch or navigation failed
)

// VerificationResult is the outcome of verifying one check
type VerificationResult struct {
	ID              string  `json:"id,omitempty" db:"id"`
	RunID           string  `json:"run_id,omitempty" db:"run_id"`
	Name            string  `json:"name" db:"check_name"`
	Target          string  `json:"target" db:"target"`
	ConditionMet    bool    `json:"condition_met" db:"condition_met"`
	TimedOut        bool    `json:"timed_out,omitempty" db:"-"` // awaited selector never appeared within its timeout
	Outcome         Outcome `json:"outcome" db:"outcome"`
	DiagnosticValue *string `json:"diagnostic_value,omitempty" db:"diagnostic_value"`
	ScreenshotPath  string  `json:"screenshot_path,omitempty" db:"screenshot_path"`
	Error           string  `json:"error,omitempty" db:"error_message"`
	Duration        int64   `json:"duration_ms" db:"duration_ms"`
}

// ==================== Suite Run Types ====================

// RunStatus represents the status of a suite run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// IsTerminal reports whether no further updates are expected
func (s RunStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// VerificationRun represents a single execution of a suite
type VerificationRun struct {
	ID                 string     `json:"id" db:"id"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	Mode               Mode       `json:"mode" db:"mode"`
	Engine             Engine     `json:"engine" db:"engine"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`

	// Computed fields
	Results []VerificationResult `json:"results,omitempty"`
}

// BrowserOptions configures how a worker opens browsers for a run.
// Unset fields fall back to the worker's environment.
type BrowserOptions struct {
	Engine         Engine   `json:"engine"`
	Headless       *bool    `json:"headless,omitempty"`
	Stealth        bool     `json:"stealth"`
	RemoteURL      string   `json:"remote_url,omitempty"`
	BlockResources []string `json:"block_resources,omitempty"`
}

// SuiteInput is the input of the suite workflow
type SuiteInput struct {
	RunID          string         `json:"run_id"`
	Checks         []Check        `json:"checks"`
	Mode           Mode           `json:"mode"`
	Browser        BrowserOptions `json:"browser"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

// SuiteResult is the output of the suite workflow
type SuiteResult struct {
	RunID         string               `json:"run_id"`
	Status        RunStatus            `json:"status"`
	Results       []VerificationResult `json:"results"`
	TotalDuration int64                `json:"total_duration_ms"`
	ErrorMessage  string               `json:"error_message,omitempty"`
}

// ==================== API Request/Response Types ====================

// RunRequest represents a request to start a suite run
type RunRequest struct {
	Checks   []Check `json:"checks,omitempty"`
	Mode     Mode    `json:"mode,omitempty"`
	Engine   Engine  `json:"engine,omitempty"`
	Headless *bool   `json:"headless,omitempty"`
	Stealth  bool    `json:"stealth,omitempty"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
