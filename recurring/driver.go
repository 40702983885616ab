/*
driver.go - Batch orchestration over all due templates

PURPOSE:
  One batch pass: load the user's active templates, decide which are due,
  materialize each with per-item failure isolation, aggregate counters.

DUE DECISION:
  A template is due when its next-run date is today or earlier AND the
  current moment is past the daily cutover (a reference-timezone 4 AM
  settlement boundary). Before the cutover even a mathematically due
  template counts as skipped; the next pass after the boundary picks it up.

FAILURE ISOLATION:
  Templates are independent, so one failure never aborts the batch. Each
  failed item is logged and counted; the only error that propagates out of
  a pass is a failure to list templates at all.

CATCH-UP:
  Each pass materializes at most one occurrence per template. A template
  several periods behind converges over successive passes, since the
  recomputed next-run may itself already be due.

SEE ALSO:
  - materializer.go: per-occurrence side effects
  - api/scheduler.go: the cron trigger that invokes batches
*/
package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCutoverHour is the daily settlement boundary: occurrences for the
// current day post only after 4 AM reference time.
const DefaultCutoverHour = 4

// =============================================================================
// SCHEDULER DRIVER
// =============================================================================

// Driver runs batch materialization passes.
type Driver struct {
	Templates    TemplateStore
	Materializer *Materializer
	Clock        Clock

	// CutoverHour and Location define the daily posting boundary.
	CutoverHour int
	Location    *time.Location

	Log zerolog.Logger
}

func NewDriver(templates TemplateStore, ledger LedgerStore, clock Clock, log zerolog.Logger) *Driver {
	return &Driver{
		Templates:    templates,
		Materializer: NewMaterializer(templates, ledger),
		Clock:        clock,
		CutoverHour:  DefaultCutoverHour,
		Location:     time.UTC,
		Log:          log,
	}
}

// RunBatch processes every active template for one user.
// It only returns an error when the template listing itself fails.
func (d *Driver) RunBatch(ctx context.Context, userID UserID) (RunStats, error) {
	var stats RunStats

	templates, err := d.Templates.ListActive(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("list active templates for %s: %w", userID, err)
	}

	now := d.Clock.Now().In(d.Location)
	today := DateOf(now)
	postCutover := now.Hour() >= d.CutoverHour

	for _, tpl := range templates {
		if !tpl.HasNextRun {
			d.Log.Warn().Str("template", string(tpl.ID)).Msg("template has no usable next-run date, skipping")
			stats.Skipped++
			continue
		}
		if tpl.NextRun.After(today) || !postCutover {
			stats.Skipped++
			continue
		}

		outcome := d.Materializer.Materialize(ctx, tpl, tpl.NextRun)
		switch outcome.Kind {
		case OutcomeCreated:
			stats.Created++
		case OutcomeSkippedDuplicate:
			stats.Skipped++
		case OutcomeFailed:
			d.Log.Error().Err(outcome.Err).
				Str("user", string(userID)).
				Str("template", string(tpl.ID)).
				Str("due", tpl.NextRun.String()).
				Bool("retryable", IsRetryable(outcome.Err)).
				Msg("materialization failed")
			stats.Errors++
		}
	}

	d.Log.Info().
		Str("user", string(userID)).
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Msg("batch pass complete")

	return stats, nil
}

// RunAll processes every user that owns templates, aggregating stats.
// A listing failure for one user counts toward Errors and the pass
// continues; only a failure to enumerate users aborts.
func (d *Driver) RunAll(ctx context.Context) (RunStats, error) {
	var total RunStats

	users, err := d.Templates.ListUsers(ctx)
	if err != nil {
		return total, fmt.Errorf("list users: %w", err)
	}

	for _, userID := range users {
		stats, err := d.RunBatch(ctx, userID)
		if err != nil {
			d.Log.Error().Err(err).Str("user", string(userID)).Msg("batch pass failed")
			total.Errors++
			continue
		}
		total.Add(stats)
	}
	return total, nil
}
