/*
Package recurring materializes recurring-payment templates into concrete
ledger transactions on a schedule, exactly once per due occurrence.

PURPOSE:
  This package contains the core engine: the recurrence calculator, the
  idempotency guard, the materializer, and the batch driver. It owns no
  persistence; templates and transactions live behind the store interfaces
  in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - RecurringTemplate: the schedule definition ("Netflix 500/month")
  - Transaction:       one concrete ledger entry produced for one occurrence
  - Frequency/Status:  template enums, normalized at the store boundary
  - RunStats:          aggregated counters returned by a batch pass

DESIGN PRINCIPLES:
  1. Determinism: all date math anchors at the template's original start
     date, never at the previous run, so rounding never accumulates
  2. Precision: amounts use decimal.Decimal, never float64
  3. Idempotence: one transaction per (template, calendar day), enforced by
     a claim on the next-run pointer plus a ledger existence check

SEE ALSO:
  - calculator.go: next-due date arithmetic
  - materializer.go: single-occurrence side effects
  - driver.go: batch orchestration
*/
package recurring

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type TemplateID string
type TransactionID string

// =============================================================================
// TEMPLATE ENUMS
// =============================================================================

// Frequency is how often a template recurs. Immutable once created; a
// mid-life frequency change is not handled by this design.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// DefaultFrequency is substituted when a stored template has no frequency.
// Missing frequency is a data-quality issue, not an operational fault.
const DefaultFrequency = FreqMonthly

// ParseFrequency normalizes a stored frequency string. Unknown or empty
// values fall back to DefaultFrequency.
func ParseFrequency(s string) Frequency {
	switch Frequency(s) {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return Frequency(s)
	default:
		return DefaultFrequency
	}
}

// Status is the template lifecycle state. This engine only ever reads it;
// transitions happen in the template management surface, out of scope here.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// NormalizeStatus folds the legacy isActive boolean into the status enum.
// Older template records carry only the boolean; newer ones carry the enum.
// Everything downstream of the store boundary sees only the enum.
func NormalizeStatus(status string, legacyActive bool) Status {
	switch Status(status) {
	case StatusActive, StatusPaused, StatusCancelled:
		return Status(status)
	}
	if legacyActive {
		return StatusActive
	}
	return StatusPaused
}

// Kind distinguishes money out from money in.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// =============================================================================
// RECURRING TEMPLATE
// =============================================================================

// RecurringTemplate is the schedule definition for one recurring payment.
//
// Anchor holds the original start date and is never mutated; monthly and
// yearly recurrence math is always computed relative to it. NextRun is the
// only field this engine writes, and it is monotonically non-decreasing.
type RecurringTemplate struct {
	ID            TemplateID
	UserID        UserID
	Name          string
	Category      string
	PaymentMethod string
	Amount        decimal.Decimal
	Kind          Kind
	Frequency     Frequency
	Status        Status

	Anchor  Date
	NextRun Date
	// HasNextRun is false when the stored next-run date was absent or
	// unparseable. Such templates are skipped, never errored.
	HasNextRun bool
}

// =============================================================================
// LEDGER TRANSACTION
// =============================================================================

// AutoGeneratedNote marks transactions this engine created.
const AutoGeneratedNote = "auto-generated"

// Transaction is one concrete ledger entry. Created once per due occurrence
// and never mutated by this engine afterwards.
type Transaction struct {
	ID         TransactionID
	UserID     UserID
	TemplateID TemplateID // back-reference, not ownership
	Date       Date
	Amount     decimal.Decimal
	Kind       Kind
	Category   string
	Note       string
}

// NewTransactionFromTemplate builds the ledger entry for one due occurrence,
// copying the descriptive fields verbatim from the template.
func NewTransactionFromTemplate(id TransactionID, tpl RecurringTemplate, dueDate Date) Transaction {
	return Transaction{
		ID:         id,
		UserID:     tpl.UserID,
		TemplateID: tpl.ID,
		Date:       dueDate,
		Amount:     tpl.Amount,
		Kind:       tpl.Kind,
		Category:   tpl.Category,
		Note:       AutoGeneratedNote,
	}
}

// =============================================================================
// RUN STATS
// =============================================================================

// RunStats aggregates one batch pass. Every eligible template lands in
// exactly one counter.
type RunStats struct {
	Created int
	Skipped int
	Errors  int
}

// Add merges another stats value in (used when aggregating across users).
func (s *RunStats) Add(other RunStats) {
	s.Created += other.Created
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}
