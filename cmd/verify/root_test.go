package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/verifier"
)

func init() {
	color.NoColor = true
}

type fakeDriver struct {
	session *fakeSession
	opts    browser.Options
	openErr error
}

func (d *fakeDriver) Open(ctx context.Context) (verifier.Session, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.session, nil
}

type fakeSession struct {
	navErr error
	found  bool
	src    string
}

func (s *fakeSession) SetViewport(ctx context.Context, width, height int) error { return nil }
func (s *fakeSession) Navigate(ctx context.Context, url string) error          { return s.navErr }
func (s *fakeSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return s.found, nil
}
func (s *fakeSession) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	return s.src, nil
}
func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }
func (s *fakeSession) Close() error                                   { return nil }

func writeSuite(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	suite := `
mode: best-effort
browser:
  engine: rod
  headless: true
checks:
  - name: demo
    target: ` + filepath.Join(dir, "demo.html") + `
    screenshot: ` + filepath.Join(dir, "demo_page.png") + `
    attribute:
      selector: video source
      name: src
      contains: assets/demo.mp4
  - name: dashboard
    target: http://localhost:3000/mobile
    screenshot: ` + filepath.Join(dir, "dashboard.png") + `
    wait_for:
      selector: .t-pending
      timeout_ms: 5000
`
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suite), 0o644))
	return path, dir
}

func execute(t *testing.T, driver *fakeDriver, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr, func(opts browser.Options) (verifier.Driver, error) {
		driver.opts = opts
		return driver, nil
	})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVerifyAllChecks(t *testing.T) {
	suitePath, dir := writeSuite(t)
	driver := &fakeDriver{session: &fakeSession{found: true, src: "assets/demo.mp4"}}

	out, err := execute(t, driver, "--config", suitePath)
	require.NoError(t, err)

	assert.Contains(t, out, "Navigating to file://"+filepath.Join(dir, "demo.html"))
	assert.Contains(t, out, "video source src: assets/demo.mp4")
	assert.Contains(t, out, "Navigating to http://localhost:3000/mobile")
	assert.Contains(t, out, "Screenshot saved to "+filepath.Join(dir, "dashboard.png"))
	assert.Contains(t, out, "2 checks: 2 passed, 0 failed, 0 errors")

	_, err = os.Stat(filepath.Join(dir, "demo_page.png"))
	assert.NoError(t, err)
}

func TestVerifyFailureExitsZero(t *testing.T) {
	suitePath, _ := writeSuite(t)
	driver := &fakeDriver{session: &fakeSession{found: false}}

	out, err := execute(t, driver, "--config", suitePath, "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Timeout waiting for .t-pending, taking screenshot anyway")
	assert.Contains(t, out, "FAILURE")
}

func TestVerifyStrictFailureExitsNonZero(t *testing.T) {
	suitePath, _ := writeSuite(t)
	driver := &fakeDriver{session: &fakeSession{found: false}}

	out, err := execute(t, driver, "--config", suitePath, "--strict", "dashboard")
	assert.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "Screenshot saved to")
}

func TestVerifyNavigationErrorExitsNonZero(t *testing.T) {
	suitePath, _ := writeSuite(t)
	driver := &fakeDriver{session: &fakeSession{navErr: errors.New("net::ERR_CONNECTION_REFUSED")}}

	out, err := execute(t, driver, "--config", suitePath, "dashboard")
	assert.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, out, "ERROR")
	assert.NotContains(t, out, "Screenshot saved to")
}

func TestVerifyLaunchErrorExitsNonZero(t *testing.T) {
	suitePath, _ := writeSuite(t)
	driver := &fakeDriver{openErr: errors.New("chrome not found")}

	_, err := execute(t, driver, "--config", suitePath, "demo")
	assert.ErrorIs(t, err, errChecksFailed)
}

func TestVerifyFlagsOverrideSuite(t *testing.T) {
	suitePath, _ := writeSuite(t)
	driver := &fakeDriver{session: &fakeSession{found: true}}

	_, err := execute(t, driver, "--config", suitePath, "--engine", "chromedp", "--headless=false", "--stealth", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, "chromedp", string(driver.opts.Engine))
	assert.False(t, driver.opts.Headless)
	assert.True(t, driver.opts.Stealth)
}

func TestVerifyUsageErrors(t *testing.T) {
	suitePath, dir := writeSuite(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown check", args: []string{"--config", suitePath, "missing"}},
		{name: "missing suite file", args: []string{"--config", filepath.Join(dir, "nope.yaml")}},
		{name: "bad log level", args: []string{"--config", suitePath, "--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{session: &fakeSession{}}
			_, err := execute(t, driver, tt.args...)
			require.Error(t, err)
			assert.NotErrorIs(t, err, errChecksFailed)
		})
	}
}
