package config

import (
	"fmt"

	"github.com/mstoykov/envconfig"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/models"
)

// ServiceConfig is the environment configuration shared by the worker and the API server
type ServiceConfig struct {
	Port          string `envconfig:"PORT" default:"8080"`
	DBDriver      string `envconfig:"DB_DRIVER" default:"mysql"`
	DSN           string `envconfig:"MYSQL_DSN" default:"verifier:verifier@tcp(localhost:3306)/verifier?parseTime=true"`
	TemporalHost  string `envconfig:"TEMPORAL_HOST" default:"localhost:7233"`
	ScreenshotDir string `envconfig:"SCREENSHOT_DIR" default:"/tmp/screenshots"`
	SuitePath     string `envconfig:"SUITE_PATH" default:"verification/suite.yaml"`

	ChromeBin        string `envconfig:"CHROME_BIN"`
	BrowserEngine    string `envconfig:"BROWSER_ENGINE" default:"rod"`
	BrowserRemoteURL string `envconfig:"BROWSER_REMOTE_URL"`
	Headless         bool   `envconfig:"BROWSER_HEADLESS" default:"true"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// LoadServiceConfig reads ServiceConfig from the environment
func LoadServiceConfig() (ServiceConfig, error) {
	var cfg ServiceConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}

	switch models.Engine(cfg.BrowserEngine) {
	case models.EngineRod, models.EngineChromedp:
	default:
		return cfg, fmt.Errorf("unknown BROWSER_ENGINE %q", cfg.BrowserEngine)
	}

	return cfg, nil
}

// BrowserOptions merges the environment defaults with per-run options.
// Settings the run leaves unset come from the environment.
func (c ServiceConfig) BrowserOptions(run models.BrowserOptions) browser.Options {
	opts := browser.Options{
		Engine:         run.Engine,
		Headless:       c.Headless,
		Stealth:        run.Stealth,
		Bin:            c.ChromeBin,
		RemoteURL:      run.RemoteURL,
		BlockResources: run.BlockResources,
	}
	if opts.Engine == "" {
		opts.Engine = models.Engine(c.BrowserEngine)
	}
	if run.Headless != nil {
		opts.Headless = *run.Headless
	}
	if opts.RemoteURL == "" {
		opts.RemoteURL = c.BrowserRemoteURL
	}
	return opts
}

// BrowserOptions converts the suite browser section into driver options
func (b BrowserConfig) BrowserOptions() browser.Options {
	return browser.Options{
		Engine:         b.Engine,
		Headless:       b.Headless == nil || *b.Headless,
		Stealth:        b.Stealth,
		RemoteURL:      b.RemoteURL,
		BlockResources: b.BlockResources,
	}
}
