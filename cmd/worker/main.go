package main

import (
	"context"
	"log"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/temporal/activities"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

func main() {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	temporalLogger := logging.NewTemporalLogger(logger)

	// Results are still verified without a database, just not recorded
	db, err := database.New(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to database, running without persistence")
		db = nil
	} else {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to migrate database")
		}
	}

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   temporalLogger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Temporal client")
	}
	defer c.Close()

	acts := activities.NewActivities(cfg, db)

	// Each activity holds a browser; bound them
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.VerificationSuiteWorkflow)

	w.RegisterActivity(acts.VerifyPageActivity)
	w.RegisterActivity(acts.RecordResultsActivity)

	logger.WithFields(logrus.Fields{
		"taskQueue":     workflows.TaskQueue,
		"temporalHost":  cfg.TemporalHost,
		"engine":        cfg.BrowserEngine,
		"screenshotDir": cfg.ScreenshotDir,
	}).Info("Starting Temporal worker")

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.WithError(err).Fatal("Worker failed")
	}
}
