package verifier

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned by a Session when no element matches within the bound
	ErrElementNotFound = errors.New("element not found")

	// ErrAttributeMissing is returned by a Session when the element has no such attribute
	ErrAttributeMissing = errors.New("attribute not present")
)

// Driver opens isolated browser sessions
type Driver interface {
	// Open launches (or connects to) a browser and creates a blank page
	Open(ctx context.Context) (Session, error)
}

// Session is a single browser with one page. Close must be safe to call more than once.
type Session interface {
	SetViewport(ctx context.Context, width, height int) error

	// Navigate loads url and returns an error when the page could not be loaded
	Navigate(ctx context.Context, url string) error

	// WaitForSelector reports whether selector appeared before timeout.
	// A timeout is not an error.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// Attribute returns the named attribute of the first element matching selector
	Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error)

	// Screenshot captures the full page as PNG
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}
