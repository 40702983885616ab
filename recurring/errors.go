/*
errors.go - Centralized error types for the materialization engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations wrap these with additional context.

ERROR CATEGORIES:
  1. Duplicate/claim errors - Expected during retries and overlapping runs
  2. Template-data errors   - Data quality issues, counted as skips
  3. Store errors           - Persistence failures, counted as errors

PROPAGATION POLICY:
  Per-template failures are swallowed by the driver and surfaced only via
  RunStats counters. Only a failure to list templates at all propagates out
  of a batch run; without the template list there is nothing useful to do.

SEE ALSO:
  - driver.go: maps these errors onto the stats counters
  - materializer.go: produces them
*/
package recurring

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateOccurrence is returned when a ledger transaction already
	// exists for a (template, calendar day) pair. Expected on retried runs.
	ErrDuplicateOccurrence = errors.New("occurrence already materialized")

	// ErrClaimConflict is returned when the conditional next-run update
	// finds an unexpected stored value. Another invocation got there first.
	ErrClaimConflict = errors.New("next-run claim conflict")

	// ErrMalformedTemplate is returned for templates with missing or
	// unparseable schedule data. A data quality issue, not an outage.
	ErrMalformedTemplate = errors.New("malformed template")

	// ErrTemplateNotFound is returned by template-store lookups and
	// conditional updates against a missing record.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrStoreUnavailable wraps a failure to reach a store at all.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MaterializeError records which occurrence failed and at which step.
type MaterializeError struct {
	TemplateID TemplateID
	Date       Date
	Step       string // "guard", "claim", "insert", "rollback"
	Err        error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s on %s: %s failed: %v", e.TemplateID, e.Date, e.Step, e.Err)
}

func (e *MaterializeError) Unwrap() error { return e.Err }

// IsRetryable reports whether the next scheduled batch run may succeed where
// this one failed. Claim conflicts and store outages resolve themselves;
// malformed templates do not.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrClaimConflict) || errors.Is(err, ErrStoreUnavailable)
}
