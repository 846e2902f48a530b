package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/events"
	"github.com/rosterly/rosterly-backend/internal/scheduling/metrics"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// ShuffleFunc permutes candidate employee IDs in place
type ShuffleFunc func(ids []string)

// UniformShuffle is the default ShuffleFunc
func UniformShuffle(ids []string) {
	rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

// Scheduler fills understaffed shifts of a manager from declared availability
type Scheduler struct {
	tx           Transactor
	shifts       ShiftStore
	availability AvailabilityStore
	links        ManagerLinks
	conflicts    *ConflictDetector
	hours        *HoursLedger
	fill         *FillService
	assignments  *AssignmentService
	publisher    *events.SchedulingEventPublisher
	metrics      *metrics.Metrics
	settings     Settings
	shuffle      ShuffleFunc
	logger       *logger.Logger
}

// NewScheduler creates a new scheduler using UniformShuffle
func NewScheduler(
	tx Transactor,
	shifts ShiftStore,
	availability AvailabilityStore,
	links ManagerLinks,
	conflicts *ConflictDetector,
	hours *HoursLedger,
	fill *FillService,
	assignments *AssignmentService,
	publisher *events.SchedulingEventPublisher,
	m *metrics.Metrics,
	settings Settings,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		tx:           tx,
		shifts:       shifts,
		availability: availability,
		links:        links,
		conflicts:    conflicts,
		hours:        hours,
		fill:         fill,
		assignments:  assignments,
		publisher:    publisher,
		metrics:      m,
		settings:     settings,
		shuffle:      UniformShuffle,
		logger:       log,
	}
}

// WithShuffle replaces the candidate permutation
func (s *Scheduler) WithShuffle(fn ShuffleFunc) *Scheduler {
	if fn != nil {
		s.shuffle = fn
	}
	return s
}

// run carries the state of one Run call
type run struct {
	result    *domain.ScheduleResult
	employees map[string]bool
	byDate    map[string][]*domain.Availability
	created   []*domain.Assignment
}

// Run assigns available employees to the manager's understaffed shifts
// dated today or later. A persistence failure aborts the run.
func (s *Scheduler) Run(ctx context.Context, managerID string) (*domain.ScheduleResult, error) {
	start := time.Now()
	result, err := s.run(ctx, managerID)
	s.metrics.ObserveSchedule(result, time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Str("manager_id", managerID).Msg("auto-scheduling aborted")
		return nil, err
	}

	s.publisher.PublishScheduleCompleted(ctx, managerID, result.Summary)

	s.logger.Info().
		Str("manager_id", managerID).
		Int("shifts", result.Summary.TotalShifts).
		Int("assignments", result.Summary.SuccessfulAssignments).
		Int("unfilled", result.Summary.UnfilledShifts).
		Dur("elapsed", time.Since(start)).
		Msg("auto-scheduling completed")

	return result, nil
}

func (s *Scheduler) run(ctx context.Context, managerID string) (*domain.ScheduleResult, error) {
	shifts, err := s.shifts.ListUnderstaffed(ctx, managerID, s.settings.today())
	if err != nil {
		return nil, err
	}

	r := &run{result: domain.NewScheduleResult()}
	if len(shifts) > 0 {
		if err := s.load(ctx, managerID, shifts, r); err != nil {
			return nil, err
		}
	}

	if s.settings.TransactionScope == config.TransactionScopeRun {
		err = s.tx.Transaction(ctx, func(ctx context.Context) error {
			for _, shift := range shifts {
				if err := s.processShift(ctx, shift.ID, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.publishCreated(ctx, r)
	} else {
		for _, shift := range shifts {
			err := s.tx.Transaction(ctx, func(ctx context.Context) error {
				return s.processShift(ctx, shift.ID, r)
			})
			if err != nil {
				return nil, err
			}
			s.publishCreated(ctx, r)
		}
	}

	r.result.Summarize(len(shifts))
	sum := r.result.Summary
	r.result.Message = fmt.Sprintf(
		"Scheduling completed: %d assignments made across %d shifts. %d fully staffed, %d partially staffed, %d unstaffed.",
		sum.SuccessfulAssignments, sum.TotalShifts,
		sum.FullyStaffedShifts, sum.PartiallyStaffedShifts, sum.UnstaffedShifts,
	)

	return r.result, nil
}

// load reads the manager's active team and their availability for the
// dates of the given shifts
func (s *Scheduler) load(ctx context.Context, managerID string, shifts []*domain.Shift, r *run) error {
	ids, err := s.links.ListActiveEmployees(ctx, managerID)
	if err != nil {
		return err
	}
	r.employees = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.employees[id] = true
	}

	seen := make(map[string]bool)
	var dates []time.Time
	for _, shift := range shifts {
		key := dateKey(shift.ShiftDate)
		if !seen[key] {
			seen[key] = true
			dates = append(dates, domain.Date(shift.ShiftDate))
		}
	}

	records, err := s.availability.ListForManagerDates(ctx, managerID, dates)
	if err != nil {
		return err
	}
	r.byDate = make(map[string][]*domain.Availability)
	for _, rec := range records {
		if !r.employees[rec.EmployeeID] {
			continue
		}
		key := dateKey(rec.AvailableDate)
		r.byDate[key] = append(r.byDate[key], rec)
	}

	return nil
}

func (s *Scheduler) processShift(ctx context.Context, shiftID string, r *run) error {
	// Lock and recount so concurrent claims or runs are seen.
	shift, err := s.shifts.GetForUpdate(ctx, shiftID)
	if err != nil {
		return err
	}

	shiftWindow, err := shift.Window()
	if err != nil {
		s.logger.Warn().Err(err).Str("shift_id", shift.ID).Msg("skipping shift with invalid window")
		return nil
	}

	spots := shift.RequiredHeadcount - shift.AssignedCount
	if spots <= 0 {
		r.result.PerShiftStatus = append(r.result.PerShiftStatus, shiftStatus(shift, domain.ComputeFill(shift.AssignedCount, shift.RequiredHeadcount)))
		return nil
	}

	candidates := s.coveringCandidates(shift, shiftWindow, r)

	if s.settings.EnforceHoursCap {
		candidates, err = s.withinHoursCap(ctx, shift, shiftWindow, candidates, r)
		if err != nil {
			return err
		}
	}

	conflicting, err := s.conflicts.ConflictingEmployees(ctx, candidates, shift.ShiftDate, shiftWindow)
	if err != nil {
		return err
	}
	eligible := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if !conflicting[id] {
			eligible = append(eligible, id)
		}
	}

	s.shuffle(eligible)

	n := min(spots, len(eligible))
	note := domain.AutoScheduledNote
	for _, employeeID := range eligible[:n] {
		a, err := s.assignments.createForShift(ctx, shift, employeeID, shiftWindow, &note)
		if err != nil {
			return err
		}
		r.created = append(r.created, a)
		r.result.AssignmentsMade = append(r.result.AssignmentsMade, domain.AssignmentMade{
			AssignmentID: a.ID,
			EmployeeID:   employeeID,
			ShiftID:      shift.ID,
			Date:         dateKey(shift.ShiftDate),
			StartTime:    shift.StartTime,
			EndTime:      shift.EndTime,
		})
	}

	change, err := s.fill.Refresh(ctx, shift.ID)
	if err != nil {
		return err
	}

	if n < spots {
		reason := domain.UnfilledNotEnough
		if len(eligible) == 0 {
			reason = domain.UnfilledNoEmployees
		}
		r.result.UnfilledShifts = append(r.result.UnfilledShifts, domain.UnfilledShift{
			ShiftID:            shift.ID,
			Date:               dateKey(shift.ShiftDate),
			StartTime:          shift.StartTime,
			EndTime:            shift.EndTime,
			RequiredHeadcount:  shift.RequiredHeadcount,
			CurrentAssigned:    shift.AssignedCount + n,
			SpotsStillNeeded:   spots - n,
			AvailableEmployees: len(eligible),
			Reason:             reason,
		})
	}

	r.result.PerShiftStatus = append(r.result.PerShiftStatus, shiftStatus(shift, domain.ComputeFill(change.AssignedCount, change.RequiredHeadcount)))
	return nil
}

// coveringCandidates returns the employees with an availability record that
// fully covers the shift. Records that only overlap it become diagnostics.
func (s *Scheduler) coveringCandidates(shift *domain.Shift, shiftWindow domain.Window, r *run) []string {
	records := r.byDate[dateKey(shift.ShiftDate)]

	covering := make(map[string]bool)
	var candidates []string
	for _, rec := range records {
		w, err := rec.Window()
		if err != nil || !w.Covers(shiftWindow) || covering[rec.EmployeeID] {
			continue
		}
		covering[rec.EmployeeID] = true
		candidates = append(candidates, rec.EmployeeID)
	}

	for _, rec := range records {
		if covering[rec.EmployeeID] {
			continue
		}
		w, err := rec.Window()
		if err != nil {
			s.logger.Warn().Err(err).Str("availability_id", rec.ID).Msg("skipping availability with invalid window")
			continue
		}
		if !w.Overlaps(shiftWindow) {
			s.logger.Debug().
				Str("shift_id", shift.ID).
				Str("employee_id", rec.EmployeeID).
				Msg(domain.NoOverlapReason)
			continue
		}
		r.result.PartialOverlaps = append(r.result.PartialOverlaps, domain.PartialOverlap{
			ShiftID:          shift.ID,
			EmployeeID:       rec.EmployeeID,
			ShiftTime:        shiftWindow.String(),
			AvailabilityTime: w.String(),
			Reason:           domain.PartialOverlapReason,
		})
	}

	return candidates
}

func (s *Scheduler) withinHoursCap(ctx context.Context, shift *domain.Shift, shiftWindow domain.Window, candidates []string, r *run) ([]string, error) {
	kept := make([]string, 0, len(candidates))
	for _, id := range candidates {
		check, err := s.hours.CanWorkAdditional(ctx, id, shift.ShiftDate, shiftWindow)
		if err != nil {
			return nil, err
		}
		if !check.CanWork {
			r.result.HourCapExclusions = append(r.result.HourCapExclusions, domain.HourCapExclusion{
				ShiftID:         shift.ID,
				EmployeeID:      id,
				CurrentHours:    check.CurrentHours,
				ShiftHours:      check.ShiftHours,
				TotalAfterShift: check.TotalAfterShift,
			})
			continue
		}
		kept = append(kept, id)
	}
	return kept, nil
}

func (s *Scheduler) publishCreated(ctx context.Context, r *run) {
	for _, a := range r.created {
		s.publisher.PublishAssignmentCreated(ctx, a, a.ShiftDate, true)
	}
	r.created = r.created[:0]
}

func shiftStatus(shift *domain.Shift, fill domain.Fill) domain.ShiftStatus {
	return domain.ShiftStatus{
		ShiftID:           shift.ID,
		RequiredHeadcount: shift.RequiredHeadcount,
		AssignedCount:     fill.AssignedCount,
		Status:            fill.Status,
		Date:              dateKey(shift.ShiftDate),
		StartTime:         shift.StartTime,
		EndTime:           shift.EndTime,
	}
}

func dateKey(t time.Time) string {
	return domain.Date(t).Format(domain.DateLayout)
}
