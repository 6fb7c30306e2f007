package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"dev/bravebird/page-verifier/pkg/config"
	"dev/bravebird/page-verifier/pkg/database"
	"dev/bravebird/page-verifier/pkg/logging"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/temporal/workflows"
)

// Handlers contains API handlers
type Handlers struct {
	db             *database.DB
	temporalClient client.Client
	suite          config.Suite
	screenshotDir  string
	logger         log.Logger
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. db may be nil; run endpoints then answer 503.
func NewHandlers(
	db *database.DB,
	temporalClient client.Client,
	suite config.Suite,
	screenshotDir string,
	logger log.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewTemporalLogger(logging.NewNullLogger())
	}
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		suite:          suite,
		screenshotDir:  screenshotDir,
		logger:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// RegisterRoutes mounts the handlers on router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/checks", h.ListChecks).Methods("GET")

	// Runs
	apiRouter.HandleFunc("/runs", h.StartRun).Methods("POST")
	apiRouter.HandleFunc("/runs", h.ListRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods("POST")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/runs/{id}/stream", h.StreamRunUpdates).Methods("GET")

	// Screenshots
	apiRouter.HandleFunc("/screenshots/{filename}", h.ServeScreenshot).Methods("GET")
}

// Health reports that the server is up
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ListChecks returns the checks of the default suite
func (h *Handlers) ListChecks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.suite.Checks)
}

// ==================== Run Handlers ====================

// StartRun creates a run record and starts the suite workflow
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	input, err := h.suiteInput(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run := &models.VerificationRun{
		Status: models.StatusPending,
		Mode:   input.Mode,
		Engine: input.Browser.Engine,
	}
	if err := h.db.CreateRun(ctx, run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	input.RunID = run.ID

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(run.ID),
		TaskQueue: workflows.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.VerificationSuiteWorkflow, input)
	if err != nil {
		if uerr := h.db.UpdateRunStatus(ctx, run.ID, models.StatusFailed, err.Error()); uerr != nil {
			h.logger.Warn("Failed to mark run failed", "runID", run.ID, "error", uerr)
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.db.MarkRunStarted(ctx, run.ID, we.GetID(), we.GetRunID()); err != nil {
		h.logger.Warn("Failed to mark run started", "runID", run.ID, "error", err)
	}
	h.logger.Info("Started verification run", "runID", run.ID, "workflowID", we.GetID(), "checks", len(input.Checks))

	respondJSON(w, map[string]interface{}{
		"run_id":               run.ID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// suiteInput fills the request's gaps from the default suite
func (h *Handlers) suiteInput(req models.RunRequest) (models.SuiteInput, error) {
	suite := h.suite
	if len(req.Checks) > 0 {
		suite.Checks = req.Checks
	}
	if req.Mode != "" {
		suite.Mode = req.Mode
	}
	if req.Engine != "" {
		suite.Browser.Engine = req.Engine
	}
	if req.Headless != nil {
		suite.Browser.Headless = req.Headless
	}
	if req.Stealth {
		suite.Browser.Stealth = true
	}

	if err := suite.Validate(); err != nil {
		return models.SuiteInput{}, err
	}

	return models.SuiteInput{
		Checks: suite.Checks,
		Mode:   suite.Mode,
		Browser: models.BrowserOptions{
			Engine:         suite.Browser.Engine,
			Headless:       suite.Browser.Headless,
			Stealth:        suite.Browser.Stealth,
			RemoteURL:      suite.Browser.RemoteURL,
			BlockResources: suite.Browser.BlockResources,
		},
	}, nil
}

// ListRuns lists the most recent runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.db.ListRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, err := h.db.GetResults(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	run.Results = results

	respondJSON(w, run)
}

// CancelRun cancels a running suite workflow
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.IsTerminal() {
		http.Error(w, "Run already finished", http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates streams run updates via WebSocket until the run reaches a terminal status
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	lastStatus := models.RunStatus("")
	lastResultCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var (
				status  models.RunStatus
				results []models.VerificationResult
			)

			// Query the workflow for real-time progress
			if h.temporalClient != nil {
				queryResp, err := h.temporalClient.QueryWorkflow(ctx, workflows.WorkflowID(runID), "", workflows.ProgressQuery)
				if err == nil {
					var progress models.SuiteResult
					if queryResp.Get(&progress) == nil {
						status = progress.Status
						results = progress.Results
					}
				}
			}

			// Fall back to DB if the query didn't work
			if status == "" && h.db != nil {
				run, err := h.db.GetRun(ctx, runID)
				if err != nil || run == nil {
					continue
				}
				status = run.Status
				results, _ = h.db.GetResults(ctx, runID)
			}
			if status == "" {
				continue
			}

			if status != lastStatus || len(results) != lastResultCount {
				msg := models.WSMessage{
					Type: "run_update",
					Payload: map[string]interface{}{
						"run_id":  runID,
						"status":  status,
						"results": results,
					},
				}
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("Stream closed", "runID", runID, "error", err)
					return
				}

				lastStatus = status
				lastResultCount = len(results)

				if status.IsTerminal() {
					return
				}
			}
		}
	}
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a screenshot file
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only files directly inside the screenshot directory
	filePath := filepath.Join(h.screenshotDir, filepath.Base(filename))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
