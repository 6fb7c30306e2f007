package verifier

import (
	"fmt"
	"time"
)

// LaunchError means the browser could not be started or connected to
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError means the target could not be loaded
type NavigationError struct {
	Target string
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("failed to navigate to %s: %v", e.Target, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ReadinessTimeoutError means the awaited selector never appeared.
// Returned only in strict mode.
type ReadinessTimeoutError struct {
	Selector string
	Timeout  time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for selector %q", e.Timeout, e.Selector)
}

// AssertionMismatchError means the observed attribute did not contain the expected value.
// Returned only in strict mode.
type AssertionMismatchError struct {
	Selector  string
	Attribute string
	Expected  string
	Actual    string
	Err       error // lookup failure, if the value could not be read at all
}

func (e *AssertionMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %v", e.Selector, e.Attribute, e.Err)
	}
	return fmt.Sprintf("%s[%s] = %q does not contain %q", e.Selector, e.Attribute, e.Actual, e.Expected)
}

func (e *AssertionMismatchError) Unwrap() error { return e.Err }
