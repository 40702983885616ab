/*
handlers.go - HTTP handlers for the operational API

PURPOSE:
  Exposes batch triggering and inspection over REST. This is an ops
  surface, not a user-facing UI: template creation/editing and rendering
  live elsewhere; here the handlers only trigger runs and read state.

HANDLER PATTERN:
  1. Parse/validate query parameters
  2. Call the driver or a store
  3. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input
  - 500: Store or batch failures

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/recurrence-engine/recurring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Driver    *recurring.Driver
	Templates recurring.TemplateStore
	Ledger    recurring.LedgerStore
	Runs      recurring.RunStore
	Log       zerolog.Logger
}

func NewHandler(driver *recurring.Driver, templates recurring.TemplateStore, ledger recurring.LedgerStore, runs recurring.RunStore, log zerolog.Logger) *Handler {
	return &Handler{
		Driver:    driver,
		Templates: templates,
		Ledger:    ledger,
		Runs:      runs,
		Log:       log,
	}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// TriggerRun runs one batch pass, for a single user when ?user= is given,
// otherwise for every user. POST /api/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := recurring.UserID(r.URL.Query().Get("user"))

	run := recurring.RunRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Trigger:   "manual",
		StartedAt: time.Now().UTC(),
	}

	var (
		stats recurring.RunStats
		err   error
	)
	if userID != "" {
		stats, err = h.Driver.RunBatch(ctx, userID)
	} else {
		stats, err = h.Driver.RunAll(ctx)
	}

	run.Stats = stats
	run.CompletedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	if saveErr := h.Runs.SaveRun(ctx, run); saveErr != nil {
		h.Log.Error().Err(saveErr).Str("run", run.ID).Msg("failed to save run record")
	}

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, TriggerRunResponse{
		RunID:   run.ID,
		Created: stats.Created,
		Skipped: stats.Skipped,
		Errors:  stats.Errors,
	})
}

// ListRuns returns recent batch-run records. GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	runs, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// READ-ONLY LISTINGS (ops visibility)
// =============================================================================

// ListTemplates returns a user's active templates. GET /api/templates?user=
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	userID := recurring.UserID(r.URL.Query().Get("user"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "user query parameter is required"})
		return
	}

	templates, err := h.Templates.ListActive(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	dtos := make([]TemplateDTO, 0, len(templates))
	for _, tpl := range templates {
		dtos = append(dtos, toTemplateDTO(tpl))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListTransactions returns a user's ledger entries. GET /api/transactions?user=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := recurring.UserID(r.URL.Query().Get("user"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "user query parameter is required"})
		return
	}

	txs, err := h.Ledger.ListByUser(r.Context(), userID, parseLimit(r, 100))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health is a liveness probe. GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return fallback
	}
	return limit
}
