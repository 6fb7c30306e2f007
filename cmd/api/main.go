package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.temporal.io/sdk/client"

	"dev/bravebird/page-verifier/pkg/api"
	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/logging"
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

	logger.Info("Starting Page Verification API Server")

	suite, err := config.LoadSuite(cfg.SuitePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load suite")
	}

	// Initialize database
	db, err := database.New(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to database, running without persistence")
		db = nil
	}
	if db != nil {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			logger.WithError(err).Fatal("Failed to migrate database")
		}
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
		Logger:   temporalLogger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Temporal client")
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(db, temporalClient, suite, cfg.ScreenshotDir, temporalLogger)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
