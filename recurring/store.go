/*
store.go - Persistence interfaces for templates, the ledger, and run records

PURPOSE:
  Defines the boundary between the engine and the stores that own the data.
  The engine holds no state between runs; everything it reads or writes
  lives behind these interfaces.

OWNERSHIP:
  The template store owns RecurringTemplate records; this engine writes
  exactly one field of them (the next-run pointer). The ledger store owns
  transactions; this engine only ever appends. Run records are this
  engine's own audit trail.

CLAIM SEMANTICS:
  ClaimNextRun is a compare-and-set: it advances the next-run pointer only
  if the stored value still matches what the batch read. A failed claim
  means an overlapping invocation already took this occurrence. This is
  what makes materialization safe under duplicate cron fires; the ledger
  existence check alone has a read-to-write race window.

IMPLEMENTATIONS:
  - store/sqlite: production
  - recurring/store: in-memory, for tests and dev

SEE ALSO:
  - materializer.go: the only writer through these interfaces
*/
package recurring

import (
	"context"
	"time"
)

// =============================================================================
// TEMPLATE STORE
// =============================================================================

// TemplateStore is the engine's view of recurring-template persistence.
type TemplateStore interface {
	// ListActive returns the user's templates with status "active", legacy
	// isActive records normalized. Templates with a missing or unparseable
	// next-run date are returned with HasNextRun=false, not dropped, so the
	// driver can count them as skips.
	ListActive(ctx context.Context, userID UserID) ([]RecurringTemplate, error)

	// ListUsers returns every user owning at least one template.
	ListUsers(ctx context.Context) ([]UserID, error)

	// UpdateNextRun unconditionally sets the template's next-run date.
	UpdateNextRun(ctx context.Context, userID UserID, id TemplateID, next Date) error

	// ClaimNextRun sets the next-run date only if the stored value still
	// equals expect. Returns ErrClaimConflict when it does not.
	ClaimNextRun(ctx context.Context, userID UserID, id TemplateID, expect, next Date) error
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// LedgerStore is the engine's view of the transaction ledger.
type LedgerStore interface {
	// HasTransactionOn reports whether a transaction generated from the
	// template already exists on the given calendar day.
	HasTransactionOn(ctx context.Context, userID UserID, templateID TemplateID, day Date) (bool, error)

	// Insert appends one transaction. The ID must be set by the caller.
	Insert(ctx context.Context, tx Transaction) error

	// ListByUser returns the user's transactions, newest first, up to limit
	// (0 means no limit).
	ListByUser(ctx context.Context, userID UserID, limit int) ([]Transaction, error)
}

// =============================================================================
// RUN STORE - Batch-run audit records
// =============================================================================

// RunRecord captures one batch pass for audit and the ops API.
type RunRecord struct {
	ID          string
	UserID      UserID // empty for an all-users pass
	Trigger     string // "cron" or "manual"
	Stats       RunStats
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
}

// RunStore persists batch-run records.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
