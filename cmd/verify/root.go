package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"dev/bravebird/page-verifier/pkg/browser"
	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/report"
	"dev/bravebird/page-verifier/pkg/verifier"
)

// errChecksFailed makes the process exit with 1 without printing anything more
var errChecksFailed = errors.New("one or more checks did not complete")

type rootFlags struct {
	configPath string
	engine     string
	strict     bool
	headless   bool
	stealth    bool
	logLevel   string
	logFormat  string
}

func (f *rootFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.StringVarP(&f.configPath, "config", "c", config.DefaultSuitePath, "suite file")
	fs.StringVar(&f.engine, "engine", "", "browser engine: rod or chromedp (default from suite)")
	fs.BoolVar(&f.strict, "strict", false, "treat timeouts and assertion mismatches as errors")
	fs.BoolVar(&f.headless, "headless", true, "run the browser without a window")
	fs.BoolVar(&f.stealth, "stealth", false, "hide automation fingerprints (rod only)")
	fs.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	return fs
}

type driverFactory func(browser.Options) (verifier.Driver, error)

func newRootCommand(stdout, stderr io.Writer, newDriver driverFactory) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "verify [check...]",
		Short: "Verify pages in a headless browser and capture screenshots",
		Long: `Verify opens each check's target in a headless browser, waits for the
configured element or asserts an attribute, and saves a full-page screenshot.

Without arguments every check of the suite runs. The built-in suite is used
when no suite file exists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args, flags, stdout, stderr, newDriver)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().AddFlagSet(flags.flagSet())

	return cmd
}

func runVerify(
	cmd *cobra.Command, args []string, flags *rootFlags,
	stdout, stderr io.Writer, newDriver driverFactory,
) error {
	logger, err := logging.New(flags.logLevel, flags.logFormat)
	if err != nil {
		return err
	}
	logger.SetOutput(stderr)

	// An explicitly given suite file must exist
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(flags.configPath); err != nil {
			return fmt.Errorf("suite file: %w", err)
		}
	}

	suite, err := config.LoadSuite(flags.configPath)
	if err != nil {
		return err
	}

	checks, err := suite.Select(args...)
	if err != nil {
		return err
	}

	opts := suite.Browser.BrowserOptions()
	if cmd.Flags().Changed("engine") {
		opts.Engine = models.Engine(flags.engine)
	}
	if cmd.Flags().Changed("headless") {
		opts.Headless = flags.headless
	}
	if flags.stealth {
		opts.Stealth = true
	}

	mode := suite.Mode
	if flags.strict {
		mode = models.ModeStrict
	}

	driver, err := newDriver(opts)
	if err != nil {
		return err
	}

	v := verifier.New(driver,
		verifier.WithLogger(logging.NewTemporalLogger(logger)),
		verifier.WithMode(mode),
	)
	reporter := report.New(stdout)

	var (
		results []models.VerificationResult
		failed  bool
	)
	for _, check := range checks {
		reporter.Start(check, verifier.ResolveTarget(check.Target))

		result, err := v.Verify(cmd.Context(), check)
		if err != nil {
			failed = true
			if result.Error == "" {
				result.Error = err.Error()
			}
		}
		reporter.Result(check, result)
		results = append(results, result)
	}

	if len(results) > 1 {
		reporter.Summary(results)
	}

	if failed {
		return errChecksFailed
	}
	return nil
}
