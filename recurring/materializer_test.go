package recurring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recurrence-engine/recurring"
	"github.com/warp/recurrence-engine/recurring/store"
)

func newTestMaterializer() (*recurring.Materializer, *store.MemoryTemplates, *store.MemoryLedger) {
	templates := store.NewMemoryTemplates()
	ledger := store.NewMemoryLedger()
	return recurring.NewMaterializer(templates, ledger), templates, ledger
}

func rentTemplate() recurring.RecurringTemplate {
	return recurring.RecurringTemplate{
		ID:         "tpl-rent",
		UserID:     "user-1",
		Name:       "Rent",
		Category:   "housing",
		Amount:     decimal.NewFromInt(15000),
		Kind:       recurring.KindExpense,
		Frequency:  recurring.FreqMonthly,
		Status:     recurring.StatusActive,
		Anchor:     recurring.NewDate(2024, time.January, 1),
		NextRun:    recurring.NewDate(2024, time.January, 31),
		HasNextRun: true,
	}
}

func TestMaterialize_CreatesTransactionAndAdvancesPointer(t *testing.T) {
	m, templates, ledger := newTestMaterializer()
	tpl := rentTemplate()
	templates.Put(tpl)
	ctx := context.Background()

	outcome := m.Materialize(ctx, tpl, tpl.NextRun)

	require.Equal(t, recurring.OutcomeCreated, outcome.Kind)
	assert.NotEmpty(t, outcome.TransactionID)

	exists, err := ledger.HasTransactionOn(ctx, "user-1", "tpl-rent", tpl.NextRun)
	require.NoError(t, err)
	assert.True(t, exists)

	stored, ok := templates.Get("user-1", "tpl-rent")
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", stored.NextRun.String())
}

func TestMaterialize_ExistingTransaction_SkippedWithoutWrite(t *testing.T) {
	m, templates, ledger := newTestMaterializer()
	tpl := rentTemplate()
	templates.Put(tpl)
	ctx := context.Background()

	require.NoError(t, ledger.Insert(ctx, recurring.NewTransactionFromTemplate("tx-1", tpl, tpl.NextRun)))

	outcome := m.Materialize(ctx, tpl, tpl.NextRun)
	assert.Equal(t, recurring.OutcomeSkippedDuplicate, outcome.Kind)

	// The pointer was not touched either.
	stored, _ := templates.Get("user-1", "tpl-rent")
	assert.Equal(t, "2024-01-31", stored.NextRun.String())
}

func TestMaterialize_ClaimConflict_TreatedAsDuplicate(t *testing.T) {
	// GIVEN: an overlapping invocation already advanced the pointer
	m, templates, _ := newTestMaterializer()
	tpl := rentTemplate()
	templates.Put(tpl)
	ctx := context.Background()

	require.NoError(t, templates.ClaimNextRun(ctx, "user-1", "tpl-rent",
		tpl.NextRun, recurring.NewDate(2024, time.March, 1)))

	// This invocation still holds the stale snapshot.
	outcome := m.Materialize(ctx, tpl, tpl.NextRun)
	assert.Equal(t, recurring.OutcomeSkippedDuplicate, outcome.Kind)
}

func TestMaterialize_InsertFailure_RollsBackClaim(t *testing.T) {
	m, templates, ledger := newTestMaterializer()
	tpl := rentTemplate()
	templates.Put(tpl)
	ledger.InsertErr = errors.New("store down")

	outcome := m.Materialize(context.Background(), tpl, tpl.NextRun)

	require.Equal(t, recurring.OutcomeFailed, outcome.Kind)
	var mErr *recurring.MaterializeError
	require.ErrorAs(t, outcome.Err, &mErr)
	assert.Equal(t, "insert", mErr.Step)

	// Claim rolled back: the occurrence stays due for the next pass.
	stored, _ := templates.Get("user-1", "tpl-rent")
	assert.Equal(t, "2024-01-31", stored.NextRun.String())
}

func TestMaterialize_RecomputesFromOccurrenceNotNow(t *testing.T) {
	// Materializing an overdue occurrence keeps the chain anchored at the
	// occurrence; wall-clock time plays no part.
	m, templates, _ := newTestMaterializer()
	tpl := rentTemplate()
	templates.Put(tpl)

	outcome := m.Materialize(context.Background(), tpl, tpl.NextRun)
	require.Equal(t, recurring.OutcomeCreated, outcome.Kind)

	stored, _ := templates.Get("user-1", "tpl-rent")
	assert.Equal(t, recurring.NextDue(tpl.Anchor, tpl.Frequency, tpl.NextRun), stored.NextRun)
}
