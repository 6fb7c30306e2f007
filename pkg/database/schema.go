package database

import (
	"context"
	"fmt"
)

// The statements stay within the subset MySQL and SQLite share
var schema = []string{
	`CREATE TABLE IF NOT EXISTS verification_runs (
		id VARCHAR(36) PRIMARY KEY,
		temporal_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
		temporal_run_id VARCHAR(255) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		mode VARCHAR(16) NOT NULL DEFAULT '',
		engine VARCHAR(16) NOT NULL DEFAULT '',
		error_message TEXT,
		started_at DATETIME NULL,
		completed_at DATETIME NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS verification_results (
		id VARCHAR(36) PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		check_name VARCHAR(255) NOT NULL,
		target TEXT NOT NULL,
		condition_met BOOLEAN NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		diagnostic_value TEXT NULL,
		screenshot_path TEXT NOT NULL,
		error_message TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
