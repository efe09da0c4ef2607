/*
scheduler.go - Automated renewal advancement

PURPOSE:
  Subscriptions whose next payment date has passed are moved forward to
  their next renewal on or after today, with a billing record for every
  renewal that passed. The scheduler runs that pass on a cron schedule and
  on demand (POST /api/renewal-runs).

DESIGN:
  - robfig/cron drives the schedule (standard 5-field spec or @daily)
  - Runs are serialized: a manual run waits for a scheduled one to finish
  - Every run is recorded (running -> completed | failed) for audit and UI
  - Advancement is idempotent: a second run on the same day finds nothing due

CONFIGURATION:
  - Schedule:   cron spec (default: @daily)
  - Enabled:    whether Start schedules anything (default: true)
  - RunOnStart: run once immediately when started

USAGE:
  scheduler := NewRenewalScheduler(catalog, store, metrics)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - catalog/catalog.go: AdvanceDue
  - billing/renewal.go: Advance
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/catalog"
	"github.com/warp/subtrack/logging"
)

// RenewalScheduler runs the renewal advancer on a schedule.
type RenewalScheduler struct {
	Catalog    *catalog.Catalog
	Runs       billing.RunStore
	Metrics    *Metrics
	Schedule   string
	Enabled    bool
	RunOnStart bool

	Now   func() time.Time
	NewID func() string

	logger zerolog.Logger
	cron   *cron.Cron
	mu     sync.Mutex // guards cron
	runMu  sync.Mutex // serializes runs
}

// NewRenewalScheduler creates a scheduler. metrics may be nil.
func NewRenewalScheduler(cat *catalog.Catalog, runs billing.RunStore, metrics *Metrics) *RenewalScheduler {
	return &RenewalScheduler{
		Catalog:  cat,
		Runs:     runs,
		Metrics:  metrics,
		Schedule: "@daily",
		Enabled:  true,
		Now:      time.Now,
		NewID:    uuid.NewString,
		logger:   logging.Component("scheduler"),
	}
}

// Start schedules the advancer. Calling Start twice is a no-op.
func (rs *RenewalScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info().Msg("Scheduler disabled, not starting")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(rs.Schedule, rs.runScheduled); err != nil {
		return fmt.Errorf("schedule %q: %w", rs.Schedule, err)
	}
	c.Start()
	rs.cron = c

	if rs.RunOnStart {
		go rs.runScheduled()
	}

	rs.logger.Info().Str("schedule", rs.Schedule).Msg("Scheduler started")
	return nil
}

// Stop stops the schedule and waits for a running pass to finish.
func (rs *RenewalScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cron == nil {
		return
	}
	<-rs.cron.Stop().Done()
	rs.cron = nil
	rs.logger.Info().Msg("Scheduler stopped")
}

func (rs *RenewalScheduler) runScheduled() {
	if _, err := rs.RunNow(context.Background()); err != nil {
		rs.logger.Error().Err(err).Msg("Scheduled renewal run failed")
	}
}

// RunNow advances every due subscription as of today and records the run.
// The returned run is populated even when the pass itself failed.
func (rs *RenewalScheduler) RunNow(ctx context.Context) (billing.RenewalRun, error) {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	start := rs.Now()
	run := billing.RenewalRun{
		ID:        rs.NewID(),
		AsOf:      rs.Catalog.Today(),
		Status:    billing.RunRunning,
		StartedAt: start.UTC(),
	}
	if err := rs.Runs.SaveRenewalRun(ctx, run); err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}

	report, runErr := rs.Catalog.AdvanceDue(ctx, run.AsOf)

	done := rs.Now().UTC()
	run.Checked = report.Checked
	run.Advanced = report.Advanced
	run.Charges = report.Charges
	run.CompletedAt = &done
	run.Status = billing.RunCompleted
	if runErr != nil {
		run.Status = billing.RunFailed
		run.Error = runErr.Error()
	}

	// The pass may have been cancelled; the record still has to land.
	if err := rs.Runs.SaveRenewalRun(context.WithoutCancel(ctx), run); err != nil {
		rs.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to record renewal run")
		if runErr == nil {
			runErr = fmt.Errorf("record run: %w", err)
		}
	}

	if rs.Metrics != nil {
		rs.Metrics.RenewalRunsTotal.WithLabelValues(string(run.Status)).Inc()
		rs.Metrics.RenewalRunSeconds.Observe(done.Sub(start.UTC()).Seconds())
		rs.Metrics.RenewalsAdvanced.Add(float64(run.Advanced))
		rs.Metrics.ChargesRecorded.Add(float64(run.Charges))
	}

	rs.logger.Info().
		Str("run_id", run.ID).
		Str("as_of", run.AsOf.String()).
		Str("status", string(run.Status)).
		Int("checked", run.Checked).
		Int("advanced", run.Advanced).
		Int("charges", run.Charges).
		Msg("Renewal run finished")

	return run, runErr
}
