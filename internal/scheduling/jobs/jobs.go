// Package jobs runs the periodic maintenance of the scheduling service.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/metrics"
	"github.com/rosterly/rosterly-backend/internal/scheduling/service"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// Job names, used as metric labels
const (
	JobCompleteAssignments = "complete_assignments"
	JobReconcileHours      = "reconcile_hours"
)

// Completer closes out assignments of past shifts
type Completer interface {
	CompletePast(ctx context.Context) (*service.CompletionResult, error)
}

// Reconciler rewrites the weekly hours cache from assignments
type Reconciler interface {
	ReconcileWeek(ctx context.Context, weekStart time.Time) (int, error)
}

// FillRefresher recomputes the fill status of a manager's shifts
type FillRefresher interface {
	RecomputeAll(ctx context.Context, managerID string) ([]*service.FillChange, error)
}

// ManagerLister finds managers owning shifts in a date range
type ManagerLister interface {
	ListManagersWithShiftsOn(ctx context.Context, from, to time.Time) ([]string, error)
}

// Runner schedules the maintenance jobs on a cron
type Runner struct {
	cron      *cron.Cron
	cfg       config.JobsConfig
	completer Completer
	hours     Reconciler
	fill      FillRefresher
	managers  ManagerLister
	metrics   *metrics.Metrics
	loc       *time.Location
	now       func() time.Time
	logger    *logger.Logger
}

// NewRunner creates a new job runner. Specs are evaluated in loc.
func NewRunner(
	cfg config.JobsConfig,
	completer Completer,
	hours Reconciler,
	fill FillRefresher,
	managers ManagerLister,
	m *metrics.Metrics,
	loc *time.Location,
	log *logger.Logger,
) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		cron:      cron.New(cron.WithLocation(loc)),
		cfg:       cfg,
		completer: completer,
		hours:     hours,
		fill:      fill,
		managers:  managers,
		metrics:   m,
		loc:       loc,
		now:       time.Now,
		logger:    log.WithComponent("jobs"),
	}
}

// Start registers the jobs and starts the cron. Jobs run with ctx.
func (r *Runner) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{name: JobCompleteAssignments, spec: r.cfg.CompleteSpec, fn: r.CompleteAssignments},
		{name: JobReconcileHours, spec: r.cfg.ReconcileSpec, fn: r.ReconcileHours},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := r.cron.AddFunc(job.spec, func() { r.run(ctx, job.name, job.fn) }); err != nil {
			return fmt.Errorf("invalid cron spec for %s: %w", job.name, err)
		}
		r.logger.Info().Str("job", job.name).Str("spec", job.spec).Msg("job scheduled")
	}

	r.cron.Start()
	return nil
}

// Stop stops the cron and waits for running jobs
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("jobs stopped")
}

func (r *Runner) run(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	err := fn(ctx)
	r.metrics.ObserveJob(name, err)

	if err != nil {
		r.logger.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	r.logger.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("job completed")
}

// CompleteAssignments completes assigned and expires unclaimed assignments
// of shifts before today
func (r *Runner) CompleteAssignments(ctx context.Context) error {
	result, err := r.completer.CompletePast(ctx)
	if err != nil {
		return err
	}
	r.logger.Info().
		Int("completed", result.Completed).
		Int("expired", result.Expired).
		Int("shifts_refreshed", result.ShiftsRefreshed).
		Msg("past assignments closed")
	return nil
}

// ReconcileHours rewrites the current week's hours cache and refreshes the
// fill status of every manager with shifts this week
func (r *Runner) ReconcileHours(ctx context.Context) error {
	weekStart := domain.WeekStart(domain.Today(r.now(), r.loc))

	if _, err := r.hours.ReconcileWeek(ctx, weekStart); err != nil {
		return err
	}

	managers, err := r.managers.ListManagersWithShiftsOn(ctx, weekStart, domain.WeekEnd(weekStart))
	if err != nil {
		return err
	}
	for _, managerID := range managers {
		if _, err := r.fill.RecomputeAll(ctx, managerID); err != nil {
			return fmt.Errorf("fill refresh for manager %s: %w", managerID, err)
		}
	}
	return nil
}
