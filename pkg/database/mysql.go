package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/page-verifier/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New opens a database connection. driver is "mysql" or "sqlite".
func New(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == "sqlite" {
		// In-memory databases exist per connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// ==================== Verification Runs ====================

// CreateRun creates a new verification run
func (db *DB) CreateRun(ctx context.Context, run *models.VerificationRun) error {
	query := `
		INSERT INTO verification_runs (id, temporal_workflow_id, temporal_run_id, status, mode, engine, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		string(run.Status),
		string(run.Mode),
		string(run.Engine),
		run.ErrorMessage,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

const runColumns = `id, temporal_workflow_id, temporal_run_id, status, mode, engine,
		       error_message, started_at, completed_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.VerificationRun, error) {
	var (
		run                    models.VerificationRun
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&run.ID,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.Status,
		&run.Mode,
		&run.Engine,
		&run.ErrorMessage,
		&startedAt,
		&completedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// GetRun retrieves a verification run by ID. Returns nil, nil when not found.
func (db *DB) GetRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	query := `SELECT ` + runColumns + ` FROM verification_runs WHERE id = ?`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.VerificationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM verification_runs ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.VerificationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkRunStarted stores the Temporal IDs and moves the run to running
func (db *DB) MarkRunStarted(ctx context.Context, id, workflowID, runID string) error {
	query := `
		UPDATE verification_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?, status = ?, started_at = ?
		WHERE id = ?
	`
	_, err := db.conn.ExecContext(ctx, query, workflowID, runID, string(models.StatusRunning), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	return nil
}

// UpdateRunStatus updates the status of a run; terminal statuses also set completed_at
func (db *DB) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	var completedAt sql.NullTime
	if status.IsTerminal() {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`
	_, err := db.conn.ExecContext(ctx, query, string(status), errorMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// ==================== Verification Results ====================

// SaveResults replaces the results of a run in one transaction
func (db *DB) SaveResults(ctx context.Context, runID string, results []models.VerificationResult) error {
	query := `
		INSERT INTO verification_results (id, run_id, check_name, target, condition_met, outcome,
		                                  diagnostic_value, screenshot_path, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM verification_results WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range results {
		result := &results[i]
		if result.ID == "" {
			result.ID = uuid.New().String()
		}
		result.RunID = runID

		var diagnostic sql.NullString
		if result.DiagnosticValue != nil {
			diagnostic = sql.NullString{String: *result.DiagnosticValue, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			result.ID,
			runID,
			result.Name,
			result.Target,
			result.ConditionMet,
			string(result.Outcome),
			diagnostic,
			result.ScreenshotPath,
			result.Error,
			result.Duration,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return tx.Commit()
}

// GetResults retrieves the results of a run ordered by check name
func (db *DB) GetResults(ctx context.Context, runID string) ([]models.VerificationResult, error) {
	query := `
		SELECT id, run_id, check_name, target, condition_met, outcome,
		       diagnostic_value, screenshot_path, error_message, duration_ms
		FROM verification_results
		WHERE run_id = ?
		ORDER BY check_name
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := []models.VerificationResult{}
	for rows.Next() {
		var (
			result     models.VerificationResult
			diagnostic sql.NullString
		)
		err := rows.Scan(
			&result.ID,
			&result.RunID,
			&result.Name,
			&result.Target,
			&result.ConditionMet,
			&result.Outcome,
			&diagnostic,
			&result.ScreenshotPath,
			&result.Error,
			&result.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if diagnostic.Valid {
			result.DiagnosticValue = &diagnostic.String
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
