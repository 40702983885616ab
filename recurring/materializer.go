/*
materializer.go - Idempotent side effects for one due occurrence

PURPOSE:
  Given one due template, create its ledger transaction and advance the
  template's next-run pointer, at most once per occurrence.

WRITE PROTOCOL:
  1. Guard check: if the ledger already has a transaction for this
     (template, day), report SkippedDuplicate. This recovers templates
     whose pointer went stale after a partial failure.
  2. Claim: compare-and-set the next-run pointer from the due date to the
     recomputed next occurrence. A conflict means an overlapping invocation
     owns this occurrence; report SkippedDuplicate.
  3. Insert the ledger transaction. On failure, roll the claim back so the
     occurrence stays due, and report Failed.

  The claim-before-insert ordering is what closes the duplicate window
  under concurrent invocations: two racers cannot both win the CAS. The
  cost is the rollback path; if the rollback itself fails the occurrence is
  lost until an operator resets the pointer, which the outcome error makes
  visible.

RECOMPUTATION REFERENCE:
  The next occurrence is computed with the due date just materialized as
  the reference, not "now". Batch-run timing jitter therefore never shifts
  the anchor chain.

SEE ALSO:
  - guard.go: the ledger existence check
  - calculator.go: NextDue
*/
package recurring

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// =============================================================================
// OUTCOME
// =============================================================================

type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	OutcomeSkippedDuplicate
	OutcomeFailed
)

// Outcome reports what happened to one due occurrence.
type Outcome struct {
	Kind          OutcomeKind
	TransactionID TransactionID // set when Kind == OutcomeCreated
	Err           error         // set when Kind == OutcomeFailed
}

func created(id TransactionID) Outcome { return Outcome{Kind: OutcomeCreated, TransactionID: id} }
func skippedDuplicate() Outcome        { return Outcome{Kind: OutcomeSkippedDuplicate} }
func failed(err error) Outcome         { return Outcome{Kind: OutcomeFailed, Err: err} }

// =============================================================================
// MATERIALIZER
// =============================================================================

// Materializer creates ledger transactions for due occurrences.
type Materializer struct {
	Templates TemplateStore
	Ledger    LedgerStore
	Guard     *IdempotencyGuard

	// NewID generates transaction IDs. Defaults to random UUIDs.
	NewID func() TransactionID
}

func NewMaterializer(templates TemplateStore, ledger LedgerStore) *Materializer {
	return &Materializer{
		Templates: templates,
		Ledger:    ledger,
		Guard:     &IdempotencyGuard{Ledger: ledger},
		NewID:     func() TransactionID { return TransactionID(uuid.NewString()) },
	}
}

// Materialize applies the side effects for one due occurrence of tpl.
func (m *Materializer) Materialize(ctx context.Context, tpl RecurringTemplate, dueDate Date) Outcome {
	done, err := m.Guard.AlreadyMaterialized(ctx, tpl.UserID, tpl.ID, dueDate)
	if err != nil {
		return failed(&MaterializeError{TemplateID: tpl.ID, Date: dueDate, Step: "guard", Err: err})
	}
	if done {
		return skippedDuplicate()
	}

	next := NextDue(tpl.Anchor, tpl.Frequency, dueDate)

	// Claim the occurrence before writing the transaction.
	if err := m.Templates.ClaimNextRun(ctx, tpl.UserID, tpl.ID, tpl.NextRun, next); err != nil {
		if errors.Is(err, ErrClaimConflict) {
			return skippedDuplicate()
		}
		return failed(&MaterializeError{TemplateID: tpl.ID, Date: dueDate, Step: "claim", Err: err})
	}

	tx := NewTransactionFromTemplate(m.NewID(), tpl, dueDate)
	if err := m.Ledger.Insert(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateOccurrence) {
			// Lost a race the guard did not see; the claim already advanced
			// the pointer to the value the winner would have written.
			return skippedDuplicate()
		}
		if rbErr := m.Templates.ClaimNextRun(ctx, tpl.UserID, tpl.ID, next, tpl.NextRun); rbErr != nil {
			return failed(&MaterializeError{TemplateID: tpl.ID, Date: dueDate, Step: "rollback", Err: rbErr})
		}
		return failed(&MaterializeError{TemplateID: tpl.ID, Date: dueDate, Step: "insert", Err: err})
	}

	return created(tx.ID)
}
