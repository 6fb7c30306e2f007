package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dev/bravebird/page-verifier/pkg/models"
)

// DefaultSuitePath is read when no suite file is given
const DefaultSuitePath = "verification/suite.yaml"

// Suite is a set of checks plus the browser settings they run with
type Suite struct {
	Mode    models.Mode    `yaml:"mode"`
	Browser BrowserConfig  `yaml:"browser"`
	Checks  []models.Check `yaml:"checks"`
}

// BrowserConfig defines how browsers are launched for a suite
type BrowserConfig struct {
	Engine         models.Engine `yaml:"engine"`
	Headless       *bool         `yaml:"headless"` // nil means headless
	Stealth        bool          `yaml:"stealth"`
	RemoteURL      string        `yaml:"remote_url"`
	BlockResources []string      `yaml:"block_resources"`
}

// DefaultChecks returns the demo page and mobile dashboard checks
func DefaultChecks() []models.Check {
	return []models.Check{
		{
			Name:       "demo",
			Target:     "docs/demo.html",
			Screenshot: "verification/demo_page.png",
			Attribute: &models.Attribute{
				Selector: "video source",
				Name:     "src",
				Contains: "assets/demo.mp4",
			},
		},
		{
			Name:       "dashboard",
			Target:     "http://localhost:3000/mobile",
			Screenshot: "verification/dashboard_mobile_after_fix.png",
			WaitFor: &models.WaitFor{
				Selector:  ".t-pending",
				TimeoutMs: 5000,
			},
		},
	}
}

// DefaultSuite returns the built-in suite
func DefaultSuite() Suite {
	return Suite{
		Mode: models.ModeBestEffort,
		Browser: BrowserConfig{
			Engine: models.EngineRod,
		},
		Checks: DefaultChecks(),
	}
}

// LoadSuite reads and parses a suite YAML file.
// Returns the default suite if the file doesn't exist.
func LoadSuite(path string) (Suite, error) {
	suite := DefaultSuite()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return suite, nil
		}
		return suite, fmt.Errorf("read suite %s: %w", path, err)
	}

	// Checks from the file replace the defaults rather than merging into them
	suite.Checks = nil
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return suite, fmt.Errorf("parse suite %s: %w", path, err)
	}

	if err := suite.Validate(); err != nil {
		return suite, fmt.Errorf("invalid suite %s: %w", path, err)
	}

	return suite, nil
}

// Validate checks the suite for missing or conflicting fields
func (s Suite) Validate() error {
	switch s.Mode {
	case "", models.ModeBestEffort, models.ModeStrict:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}

	switch s.Browser.Engine {
	case "", models.EngineRod, models.EngineChromedp:
	default:
		return fmt.Errorf("unknown browser engine %q", s.Browser.Engine)
	}

	return ValidateChecks(s.Checks)
}

// ValidateChecks checks each check and that names are unique
func ValidateChecks(checks []models.Check) error {
	if len(checks) == 0 {
		return errors.New("no checks defined")
	}

	seen := make(map[string]bool, len(checks))
	// Workers store screenshots flat under one directory, keyed by base name
	shots := make(map[string]string, len(checks))
	for i, c := range checks {
		if c.Name == "" {
			return fmt.Errorf("check %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("check %q: duplicate name", c.Name)
		}
		seen[c.Name] = true

		if c.Target == "" {
			return fmt.Errorf("check %q: target is required", c.Name)
		}
		if c.Screenshot == "" {
			return fmt.Errorf("check %q: screenshot is required", c.Name)
		}
		base := filepath.Base(c.Screenshot)
		if other, ok := shots[base]; ok {
			return fmt.Errorf("check %q: screenshot file name %q already used by %q", c.Name, base, other)
		}
		shots[base] = c.Name
		if c.WaitFor != nil && c.Attribute != nil {
			return fmt.Errorf("check %q: wait_for and attribute are mutually exclusive", c.Name)
		}
		if c.WaitFor != nil {
			if c.WaitFor.Selector == "" {
				return fmt.Errorf("check %q: wait_for.selector is required", c.Name)
			}
			if c.WaitFor.TimeoutMs < 0 {
				return fmt.Errorf("check %q: wait_for.timeout_ms must not be negative", c.Name)
			}
		}
		if c.Attribute != nil {
			if c.Attribute.Selector == "" || c.Attribute.Name == "" {
				return fmt.Errorf("check %q: attribute.selector and attribute.name are required", c.Name)
			}
			if c.Attribute.TimeoutMs < 0 {
				return fmt.Errorf("check %q: attribute.timeout_ms must not be negative", c.Name)
			}
		}
		if c.Viewport != nil && (c.Viewport.Width <= 0 || c.Viewport.Height <= 0) {
			return fmt.Errorf("check %q: viewport width and height must be positive", c.Name)
		}
	}
	return nil
}

// Select returns the checks with the given names, in the order given.
// No names selects every check.
func (s Suite) Select(names ...string) ([]models.Check, error) {
	if len(names) == 0 {
		return s.Checks, nil
	}

	byName := make(map[string]models.Check, len(s.Checks))
	for _, c := range s.Checks {
		byName[c.Name] = c
	}

	selected := make([]models.Check, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		selected = append(selected, c)
	}
	return selected, nil
}
