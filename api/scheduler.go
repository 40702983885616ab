/*
scheduler.go - Automated batch materialization scheduler

PURPOSE:
  Triggers one materialization pass per day on a cron schedule, evaluated
  in the reference timezone, and records each pass for audit and the ops
  API. Running the timer in-process keeps single-binary deployments
  simple; the run subcommand covers deployments that prefer a real
  external cron.

DESIGN:
  - robfig/cron entry in the reference timezone, default "0 4 * * *"
    (the cutover hour, so the day's occurrences post as soon as allowed)
  - Each fire runs Driver.RunAll; overlapping fires are safe because the
    materializer claims occurrences, but cron's schedule makes them rare
  - Every pass is recorded via the RunStore, including failed ones

USAGE:
  sched, err := NewScheduler(driver, runs, "0 4 * * *", loc, log)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - recurring/driver.go: the batch pass itself
  - config/config.go: cron spec, timezone, cutover hour
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/recurrence-engine/recurring"
)

// Scheduler fires batch passes on a cron schedule.
type Scheduler struct {
	Driver *recurring.Driver
	Runs   recurring.RunStore
	Log    zerolog.Logger

	c       *cron.Cron
	entryID cron.EntryID
}

// NewScheduler builds a scheduler with the cron entry registered but not
// started. spec is a standard 5-field cron expression; loc is the
// reference timezone the expression is evaluated in.
func NewScheduler(driver *recurring.Driver, runs recurring.RunStore, spec string, loc *time.Location, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		Driver: driver,
		Runs:   runs,
		Log:    log,
		c:      cron.New(cron.WithLocation(loc)),
	}

	id, err := s.c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins firing on schedule.
func (s *Scheduler) Start() {
	s.c.Start()
	s.Log.Info().Time("next", s.NextRunTime()).Msg("batch scheduler started")
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	s.Log.Info().Msg("batch scheduler stopped")
}

// RunNow triggers an immediate pass (for testing/admin).
func (s *Scheduler) RunNow() {
	s.runOnce()
}

// NextRunTime returns when the next scheduled pass will fire.
func (s *Scheduler) NextRunTime() time.Time {
	return s.c.Entry(s.entryID).Next
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()

	run := recurring.RunRecord{
		ID:        uuid.NewString(),
		Trigger:   "cron",
		StartedAt: time.Now().UTC(),
	}

	stats, err := s.Driver.RunAll(ctx)
	run.Stats = stats
	run.CompletedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
		s.Log.Error().Err(err).Str("run", run.ID).Msg("scheduled pass failed")
	}

	if saveErr := s.Runs.SaveRun(ctx, run); saveErr != nil {
		s.Log.Error().Err(saveErr).Str("run", run.ID).Msg("failed to save run record")
	}
}
