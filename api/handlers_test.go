package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/recurring"
	"github.com/warp/recurrence-engine/recurring/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router    http.Handler
	templates *store.MemoryTemplates
	ledger    *store.MemoryLedger
	runs      *store.MemoryRuns
}

func newTestEnv(now time.Time) *testEnv {
	templates := store.NewMemoryTemplates()
	ledger := store.NewMemoryLedger()
	runs := store.NewMemoryRuns()
	driver := recurring.NewDriver(templates, ledger, recurring.FixedClock{At: now}, zerolog.Nop())
	handler := api.NewHandler(driver, templates, ledger, runs, zerolog.Nop())
	return &testEnv{
		router:    api.NewRouter(handler),
		templates: templates,
		ledger:    ledger,
		runs:      runs,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, want int) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	e.router.ServeHTTP(rec, req)
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
	return rec
}

func dueTemplate() recurring.RecurringTemplate {
	return recurring.RecurringTemplate{
		ID:         "tpl-netflix",
		UserID:     "user-1",
		Name:       "Netflix",
		Category:   "entertainment",
		Amount:     decimal.NewFromInt(500),
		Kind:       recurring.KindExpense,
		Frequency:  recurring.FreqMonthly,
		Status:     recurring.StatusActive,
		Anchor:     recurring.NewDate(2024, time.January, 1),
		NextRun:    recurring.NewDate(2024, time.January, 31),
		HasNextRun: true,
	}
}

var afterCutover = time.Date(2024, time.January, 31, 9, 0, 0, 0, time.UTC)

// =============================================================================
// RUN ENDPOINTS
// =============================================================================

func TestTriggerRun_SingleUser(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.templates.Put(dueTemplate())

	rec := env.do(t, http.MethodPost, "/api/runs?user=user-1", http.StatusOK)

	var resp api.TriggerRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 0, resp.Errors)
	assert.NotEmpty(t, resp.RunID)

	// The pass was recorded.
	runs, err := env.runs.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, 1, runs[0].Stats.Created)
}

func TestTriggerRun_AllUsers(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.templates.Put(dueTemplate())
	other := dueTemplate()
	other.ID = "tpl-rent"
	other.UserID = "user-2"
	env.templates.Put(other)

	rec := env.do(t, http.MethodPost, "/api/runs", http.StatusOK)

	var resp api.TriggerRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Created)
}

func TestListRuns_ReturnsRecorded(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.do(t, http.MethodPost, "/api/runs", http.StatusOK)
	env.do(t, http.MethodPost, "/api/runs", http.StatusOK)

	rec := env.do(t, http.MethodGet, "/api/runs", http.StatusOK)

	var runs []api.RunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)
}

// =============================================================================
// LISTINGS
// =============================================================================

func TestListTemplates_RequiresUser(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.do(t, http.MethodGet, "/api/templates", http.StatusBadRequest)
}

func TestListTemplates_ReturnsActive(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.templates.Put(dueTemplate())

	rec := env.do(t, http.MethodGet, "/api/templates?user=user-1", http.StatusOK)

	var templates []api.TemplateDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &templates))
	require.Len(t, templates, 1)
	assert.Equal(t, "tpl-netflix", templates[0].ID)
	assert.Equal(t, "500", templates[0].Amount)
	assert.Equal(t, "2024-01-31", templates[0].NextRunDate)
}

func TestListTransactions_AfterRun(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.templates.Put(dueTemplate())
	env.do(t, http.MethodPost, "/api/runs?user=user-1", http.StatusOK)

	rec := env.do(t, http.MethodGet, "/api/transactions?user=user-1", http.StatusOK)

	var txs []api.TransactionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "tpl-netflix", txs[0].TemplateID)
	assert.Equal(t, "2024-01-31", txs[0].Date)
	assert.Equal(t, "auto-generated", txs[0].Note)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(afterCutover)
	env.do(t, http.MethodGet, "/api/health", http.StatusOK)
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestScheduler_RunNow_RecordsCronRun(t *testing.T) {
	templates := store.NewMemoryTemplates()
	ledger := store.NewMemoryLedger()
	runs := store.NewMemoryRuns()
	driver := recurring.NewDriver(templates, ledger, recurring.FixedClock{At: afterCutover}, zerolog.Nop())
	templates.Put(dueTemplate())

	sched, err := api.NewScheduler(driver, runs, "0 4 * * *", time.UTC, zerolog.Nop())
	require.NoError(t, err)

	sched.RunNow()

	recorded, err := runs.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "cron", recorded[0].Trigger)
	assert.Equal(t, 1, recorded[0].Stats.Created)
	assert.Empty(t, recorded[0].Error)
}

func TestScheduler_RejectsBadCronSpec(t *testing.T) {
	driver := recurring.NewDriver(store.NewMemoryTemplates(), store.NewMemoryLedger(),
		recurring.FixedClock{At: afterCutover}, zerolog.Nop())

	_, err := api.NewScheduler(driver, store.NewMemoryRuns(), "not a cron spec", time.UTC, zerolog.Nop())
	require.Error(t, err)
}
