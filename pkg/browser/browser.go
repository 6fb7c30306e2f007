// Package browser implements verifier.Driver on top of go-rod and chromedp.
package browser

import (
	"fmt"
	"os"
	"time"

	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// Options configures how browsers are launched
type Options struct {
	Engine   models.Engine
	Headless bool

	// Bin is the Chrome binary. Empty = CHROME_BIN, then the engine's lookup.
	Bin string

	// RemoteURL connects to an already running browser instead of launching one
	RemoteURL string

	// Stealth hides automation fingerprints (rod only)
	Stealth bool

	// BlockResources lists resource types to block: images, fonts, media, stylesheets (rod only)
	BlockResources []string

	// NavigationTimeout bounds page loads. Default: 30s.
	NavigationTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Engine == "" {
		o.Engine = models.EngineRod
	}
	if o.Bin == "" {
		o.Bin = os.Getenv("CHROME_BIN")
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
}

// chromeFlags are passed to locally launched browsers for container compatibility
var chromeFlags = []string{"no-sandbox", "disable-gpu", "disable-dev-shm-usage"}

// NewDriver returns the driver for opts.Engine
func NewDriver(opts Options) (verifier.Driver, error) {
	opts.defaults()

	switch opts.Engine {
	case models.EngineRod:
		return NewRodDriver(opts), nil
	case models.EngineChromedp:
		return NewChromedpDriver(opts), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine: %s", opts.Engine)
	}
}
