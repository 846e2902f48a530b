package service

import (
	"context"
	"sort"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/events"
	"github.com/rosterly/rosterly-backend/internal/scheduling/metrics"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// Transition labels used for metrics
const (
	TransitionCreate   = "create"
	TransitionRelease  = "release"
	TransitionClaim    = "claim"
	TransitionCancel   = "cancel"
	TransitionComplete = "complete"
)

// CreateInput is a manager request to put an employee on a shift. An empty
// StartTime or EndTime defaults to the shift's own bound.
type CreateInput struct {
	ShiftID    string
	EmployeeID string
	StartTime  string
	EndTime    string
	Notes      *string
}

// CreateResult is the outcome of a manager create
type CreateResult struct {
	Assignment *domain.Assignment `json:"assignment"`
	FillStatus *FillChange        `json:"shift_fill_status"`
	HoursCheck *HoursCheck        `json:"hours_check,omitempty"`
}

// ReleaseResult is the outcome of a release
type ReleaseResult struct {
	Assignment *domain.Assignment `json:"assignment"`
	FillStatus *FillChange        `json:"shift_fill_status"`
}

// ClaimResult is the outcome of a claim
type ClaimResult struct {
	Assignment       *domain.Assignment      `json:"assignment"`
	PreviousHolder   domain.Identity         `json:"previous_holder"`
	NewHolder        domain.Identity         `json:"new_holder"`
	OwnershipHistory domain.OwnershipHistory `json:"ownership_history"`
	TransferCount    int                     `json:"transfer_count"`
	FillStatus       *FillChange             `json:"shift_fill_status"`
	HoursCheck       *HoursCheck             `json:"hours_check,omitempty"`
}

// CompletionResult is the outcome of a completion sweep
type CompletionResult struct {
	Before          string `json:"before"`
	Completed       int    `json:"completed"`
	Expired         int    `json:"expired"`
	ShiftsRefreshed int    `json:"shifts_refreshed"`
}

// AssignmentService drives the assignment lifecycle:
// assigned <-> available, and both to completed or cancelled.
type AssignmentService struct {
	tx          Transactor
	shifts      ShiftStore
	assignments AssignmentStore
	links       ManagerLinks
	directory   Directory
	conflicts   *ConflictDetector
	fill        *FillService
	hours       *HoursLedger
	publisher   *events.SchedulingEventPublisher
	metrics     *metrics.Metrics
	settings    Settings
	logger      *logger.Logger
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	tx Transactor,
	shifts ShiftStore,
	assignments AssignmentStore,
	links ManagerLinks,
	directory Directory,
	conflicts *ConflictDetector,
	fill *FillService,
	hours *HoursLedger,
	publisher *events.SchedulingEventPublisher,
	m *metrics.Metrics,
	settings Settings,
	log *logger.Logger,
) *AssignmentService {
	return &AssignmentService{
		tx:          tx,
		shifts:      shifts,
		assignments: assignments,
		links:       links,
		directory:   directory,
		conflicts:   conflicts,
		fill:        fill,
		hours:       hours,
		publisher:   publisher,
		metrics:     m,
		settings:    settings,
		logger:      log,
	}
}

// Create puts an employee on a shift owned by managerID
func (s *AssignmentService) Create(ctx context.Context, managerID string, in CreateInput) (*CreateResult, error) {
	var (
		result *CreateResult
		shift  *domain.Shift
	)

	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		shift, err = s.shifts.GetForUpdate(ctx, in.ShiftID)
		if err != nil {
			return err
		}
		if shift.ManagerID != managerID {
			return errors.Forbidden("shift belongs to another manager")
		}
		if domain.Date(shift.ShiftDate).Before(s.settings.today()) {
			return errors.StateConflict(domain.ReasonPastShift, "cannot assign to a shift dated before today")
		}

		window, err := requestedWindow(shift, in.StartTime, in.EndTime)
		if err != nil {
			return err
		}

		linked, err := s.links.IsActiveManagerOf(ctx, managerID, in.EmployeeID)
		if err != nil {
			return err
		}
		if !linked {
			return errors.Forbidden("employee is not managed by this manager")
		}

		conflict, err := s.conflicts.HasConflict(ctx, in.EmployeeID, shift.ShiftDate, window, "")
		if err != nil {
			return err
		}
		if conflict {
			return errors.StateConflict(domain.ReasonTimeConflict, "employee already works an overlapping shift")
		}

		check, err := s.hours.CanWorkAdditional(ctx, in.EmployeeID, shift.ShiftDate, window)
		if err != nil {
			return err
		}

		a, err := s.createForShift(ctx, shift, in.EmployeeID, window, in.Notes)
		if err != nil {
			return err
		}

		change, err := s.fill.Refresh(ctx, shift.ID)
		if err != nil {
			return err
		}

		result = &CreateResult{Assignment: a, FillStatus: change, HoursCheck: check}
		return nil
	})
	s.metrics.ObserveTransition(TransitionCreate, err)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAssignmentCreated(ctx, result.Assignment, shift.ShiftDate, false)

	s.logger.Info().
		Str("assignment_id", result.Assignment.ID).
		Str("shift_id", shift.ID).
		Str("employee_id", in.EmployeeID).
		Str("manager_id", managerID).
		Msg("assignment created")

	return result, nil
}

// createForShift inserts an assigned assignment and refreshes the
// employee's weekly hours. Callers hold the shift and have already checked
// linkage and conflicts.
func (s *AssignmentService) createForShift(ctx context.Context, shift *domain.Shift, employeeID string, window domain.Window, notes *string) (*domain.Assignment, error) {
	a := &domain.Assignment{
		ShiftID:          shift.ID,
		EmployeeID:       employeeID,
		Status:           domain.StatusAssigned,
		StartTime:        clockString(window.Start),
		EndTime:          clockString(window.End),
		Notes:            notes,
		OwnershipHistory: domain.OwnershipHistory{},
		ShiftDate:        shift.ShiftDate,
		ManagerID:        shift.ManagerID,
		ShiftStartTime:   shift.StartTime,
		ShiftEndTime:     shift.EndTime,
	}

	if err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}
	if err := s.hours.RefreshForDate(ctx, employeeID, shift.ShiftDate); err != nil {
		return nil, err
	}

	return a, nil
}

// Release makes the caller's assignment available to coworkers
func (s *AssignmentService) Release(ctx context.Context, assignmentID, employeeID string) (*ReleaseResult, error) {
	var result *ReleaseResult

	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetWithShift(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a.EmployeeID != employeeID {
			return errors.NotFound("assignment")
		}
		if !s.settings.isStrictlyFuture(a.ShiftDate) {
			return errors.StateConflict(domain.ReasonPastOrToday, "only future shifts can be released")
		}
		if a.Status != domain.StatusAssigned {
			return errors.StateConflict(domain.ReasonNotAssigned, "assignment is not currently assigned")
		}

		holder, err := s.directory.Get(ctx, employeeID)
		if err != nil {
			return err
		}

		history := a.OwnershipHistory.Append(holder.Entry(s.settings.now()))
		notes := domain.AppendNote(a.Notes, domain.ReleasedNote)

		ok, err := s.assignments.Release(ctx, a.ID, employeeID, notes, history)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(domain.ReasonNotAssigned, "assignment is not currently assigned")
		}

		change, err := s.fill.Refresh(ctx, a.ShiftID)
		if err != nil {
			return err
		}
		if err := s.hours.RefreshForDate(ctx, employeeID, a.ShiftDate); err != nil {
			return err
		}

		a.Status = domain.StatusAvailable
		a.Notes = &notes
		a.OwnershipHistory = history
		result = &ReleaseResult{Assignment: a, FillStatus: change}
		return nil
	})
	s.metrics.ObserveTransition(TransitionRelease, err)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAssignmentReleased(ctx, result.Assignment)

	s.logger.Info().
		Str("assignment_id", assignmentID).
		Str("employee_id", employeeID).
		Msg("assignment released")

	return result, nil
}

// Claim transfers an available assignment to employeeID
func (s *AssignmentService) Claim(ctx context.Context, assignmentID, employeeID string) (*ClaimResult, error) {
	var (
		result     *ClaimResult
		previousID string
	)

	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetWithShift(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a.Status != domain.StatusAvailable {
			return errors.StateConflict(domain.ReasonNotAvailable, "assignment is not available for claiming")
		}
		if !s.settings.isStrictlyFuture(a.ShiftDate) {
			return errors.StateConflict(domain.ReasonPastOrToday, "only future shifts can be claimed")
		}
		if a.EmployeeID == employeeID {
			return errors.StateConflict(domain.ReasonSelfClaim, "cannot claim your own assignment")
		}

		linked, err := s.links.IsActiveManagerOf(ctx, a.ManagerID, employeeID)
		if err != nil {
			return err
		}
		if !linked {
			return errors.ForbiddenReason(domain.ReasonNotSameManager, "assignment belongs to another manager's team")
		}

		shiftWindow, err := a.ShiftWindow()
		if err != nil {
			return errors.Internal("shift has an invalid time window")
		}
		conflict, err := s.conflicts.HasConflict(ctx, employeeID, a.ShiftDate, shiftWindow, a.ID)
		if err != nil {
			return err
		}
		if conflict {
			return errors.StateConflict(domain.ReasonTimeConflict, "you already work an overlapping shift")
		}

		var check *HoursCheck
		if window, err := a.Window(); err == nil {
			check, err = s.hours.CanWorkAdditional(ctx, employeeID, a.ShiftDate, window)
			if err != nil {
				return err
			}
		}

		previous, err := s.directory.Get(ctx, a.EmployeeID)
		if err != nil {
			return err
		}
		claimer, err := s.directory.Get(ctx, employeeID)
		if err != nil {
			return err
		}

		now := s.settings.now()
		history := a.OwnershipHistory.Append(previous.Entry(now)).Append(claimer.Entry(now))
		notes := domain.AppendNote(a.Notes, domain.ClaimedNotePrefix+previous.FullName())

		ok, err := s.assignments.Claim(ctx, a.ID, a.EmployeeID, employeeID, notes, history)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(domain.ReasonNotAvailable, "assignment was claimed by someone else")
		}

		change, err := s.fill.Refresh(ctx, a.ShiftID)
		if err != nil {
			return err
		}
		if err := s.hours.RefreshForDate(ctx, a.EmployeeID, a.ShiftDate); err != nil {
			return err
		}
		if err := s.hours.RefreshForDate(ctx, employeeID, a.ShiftDate); err != nil {
			return err
		}

		previousID = a.EmployeeID
		a.EmployeeID = employeeID
		a.Status = domain.StatusAssigned
		a.Notes = &notes
		a.OwnershipHistory = history

		result = &ClaimResult{
			Assignment:       a,
			PreviousHolder:   previous,
			NewHolder:        claimer,
			OwnershipHistory: history,
			TransferCount:    len(history),
			FillStatus:       change,
			HoursCheck:       check,
		}
		return nil
	})
	s.metrics.ObserveTransition(TransitionClaim, err)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAssignmentClaimed(ctx, result.Assignment, previousID)

	s.logger.Info().
		Str("assignment_id", assignmentID).
		Str("previous_employee_id", previousID).
		Str("employee_id", employeeID).
		Int("transfer_count", result.TransferCount).
		Msg("assignment claimed")

	return result, nil
}

// Cancel ends an assigned or available assignment on a shift owned by managerID
func (s *AssignmentService) Cancel(ctx context.Context, managerID, assignmentID string) (*domain.Assignment, error) {
	var cancelled *domain.Assignment

	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		a, err := s.assignments.GetWithShift(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a.ManagerID != managerID {
			return errors.Forbidden("assignment belongs to another manager's shift")
		}
		if a.Status.IsTerminal() {
			return errors.StateConflict(domain.ReasonTerminal, "assignment is already "+string(a.Status))
		}

		notes := domain.AppendNote(a.Notes, domain.CancelledByManagerNote)
		ok, err := s.assignments.Cancel(ctx, a.ID, notes)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(domain.ReasonTerminal, "assignment is no longer active")
		}

		if _, err := s.fill.Refresh(ctx, a.ShiftID); err != nil {
			return err
		}
		if err := s.hours.RefreshForDate(ctx, a.EmployeeID, a.ShiftDate); err != nil {
			return err
		}

		a.Status = domain.StatusCancelled
		a.Notes = &notes
		cancelled = a
		return nil
	})
	s.metrics.ObserveTransition(TransitionCancel, err)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishAssignmentCancelled(ctx, cancelled, managerID)

	s.logger.Info().
		Str("assignment_id", assignmentID).
		Str("manager_id", managerID).
		Msg("assignment cancelled")

	return cancelled, nil
}

// CompletePast completes assigned assignments of shifts dated before today
// and expires the available ones nobody claimed
func (s *AssignmentService) CompletePast(ctx context.Context) (*CompletionResult, error) {
	today := s.settings.today()
	result := &CompletionResult{Before: today.Format(domain.DateLayout)}

	var completedIDs, expiredIDs []string
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		completed, err := s.assignments.CompletePast(ctx, today)
		if err != nil {
			return err
		}
		expired, err := s.assignments.ExpireUnclaimed(ctx, today, domain.ExpiredUnclaimedNote)
		if err != nil {
			return err
		}

		shifts := make(map[string]struct{})
		for _, ref := range completed {
			completedIDs = append(completedIDs, ref.ID)
			shifts[ref.ShiftID] = struct{}{}
		}
		for _, ref := range expired {
			expiredIDs = append(expiredIDs, ref.ID)
			shifts[ref.ShiftID] = struct{}{}
		}

		ids := make([]string, 0, len(shifts))
		for id := range shifts {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			if _, err := s.fill.Refresh(ctx, id); err != nil {
				return err
			}
		}

		result.Completed = len(completed)
		result.Expired = len(expired)
		result.ShiftsRefreshed = len(ids)
		return nil
	})
	s.metrics.ObserveTransition(TransitionComplete, err)
	if err != nil {
		return nil, err
	}

	if result.Completed > 0 || result.Expired > 0 {
		s.publisher.PublishAssignmentsCompleted(ctx, today, completedIDs, expiredIDs)
	}

	s.logger.Info().
		Str("before", result.Before).
		Int("completed", result.Completed).
		Int("expired", result.Expired).
		Msg("past assignments completed")

	return result, nil
}

// requestedWindow resolves a create request's window against the shift
func requestedWindow(shift *domain.Shift, start, end string) (domain.Window, error) {
	shiftWindow, err := shift.Window()
	if err != nil {
		return domain.Window{}, errors.Internal("shift has an invalid time window")
	}
	if start == "" && end == "" {
		return shiftWindow, nil
	}
	if start == "" {
		start = shift.StartTime
	}
	if end == "" {
		end = shift.EndTime
	}

	window, err := domain.ParseWindow(start, end)
	if err != nil {
		return domain.Window{}, errors.Validation(map[string]string{"window": err.Error()})
	}
	if !shiftWindow.Covers(window) {
		return domain.Window{}, errors.Validation(map[string]string{
			"window": "assignment window " + window.String() + " must lie within shift " + shiftWindow.String(),
		})
	}
	return window, nil
}

// clockString formats an offset from midnight as HH:MM:SS
func clockString(d time.Duration) string {
	return time.Time{}.Add(d).Format("15:04:05")
}
