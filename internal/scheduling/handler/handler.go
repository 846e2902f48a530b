// Package handler exposes the scheduling operations over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/service"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/httputil"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// Assignments is the assignment state machine
type Assignments interface {
	Create(ctx context.Context, managerID string, in service.CreateInput) (*service.CreateResult, error)
	Release(ctx context.Context, assignmentID, employeeID string) (*service.ReleaseResult, error)
	Claim(ctx context.Context, assignmentID, employeeID string) (*service.ClaimResult, error)
	Cancel(ctx context.Context, managerID, assignmentID string) (*domain.Assignment, error)
}

// Scheduler runs auto-scheduling for a manager
type Scheduler interface {
	Run(ctx context.Context, managerID string) (*domain.ScheduleResult, error)
}

// Hours is the hours ledger read side
type Hours interface {
	Summary(ctx context.Context, employeeID string, weekStart time.Time) (*service.WeeklyHoursSummary, error)
	ManagedSummary(ctx context.Context, managerID, employeeID string, weekStart time.Time) (*service.WeeklyHoursSummary, error)
	TeamSummary(ctx context.Context, managerID string, weekStart time.Time, minAvailable *float64) ([]*service.WeeklyHoursSummary, error)
	CanWorkAdditional(ctx context.Context, employeeID string, date time.Time, window domain.Window) (*service.HoursCheck, error)
	ManagedMonthlyLoad(ctx context.Context, managerID, employeeID string, year int, month time.Month) (*service.MonthlyLoad, error)
}

// Fill reads and recomputes shift fill status
type Fill interface {
	Get(ctx context.Context, managerID, shiftID string) (*service.ShiftFill, error)
	Recompute(ctx context.Context, managerID, shiftID string) (*service.FillChange, error)
	RecomputeAll(ctx context.Context, managerID string) ([]*service.FillChange, error)
}

// SchedulingHandler handles the scheduling endpoints
type SchedulingHandler struct {
	assignments Assignments
	scheduler   Scheduler
	hours       Hours
	fill        Fill
	now         func() time.Time
	logger      *logger.Logger
}

// NewSchedulingHandler creates a new scheduling handler
func NewSchedulingHandler(assignments Assignments, scheduler Scheduler, hours Hours, fill Fill, log *logger.Logger) *SchedulingHandler {
	return &SchedulingHandler{
		assignments: assignments,
		scheduler:   scheduler,
		hours:       hours,
		fill:        fill,
		now:         time.Now,
		logger:      log,
	}
}

// WithClock overrides the clock used for query defaults
func (h *SchedulingHandler) WithClock(now func() time.Time) *SchedulingHandler {
	h.now = now
	return h
}

// CreateAssignmentRequest is the body of POST /shifts/{id}/assignments
type CreateAssignmentRequest struct {
	EmployeeID string  `json:"employee_id" validate:"required,uuid"`
	StartTime  string  `json:"start_time,omitempty" validate:"omitempty,datetime=15:04:05"`
	EndTime    string  `json:"end_time,omitempty" validate:"omitempty,datetime=15:04:05"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// Release gives an assigned slot up for others to claim
func (h *SchedulingHandler) Release(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	result, err := h.assignments.Release(r.Context(), chi.URLParam(r, "id"), a.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Claim takes over an available slot
func (h *SchedulingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	result, err := h.assignments.Claim(r.Context(), chi.URLParam(r, "id"), a.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Cancel cancels an assignment on one of the manager's shifts
func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	assignment, err := h.assignments.Cancel(r.Context(), a.ID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, assignment)
}

// CreateAssignment assigns an employee to a shift
func (h *SchedulingHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	a := actor.FromContext(r.Context())
	result, err := h.assignments.Create(r.Context(), a.ID, service.CreateInput{
		ShiftID:    chi.URLParam(r, "id"),
		EmployeeID: req.EmployeeID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Notes:      req.Notes,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// RunSchedule auto-fills the manager's understaffed future shifts
func (h *SchedulingHandler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	result, err := h.scheduler.Run(r.Context(), a.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// WeeklyHours returns the caller's own week, or for managers one team
// member's week or the whole team's
func (h *SchedulingHandler) WeeklyHours(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	q := r.URL.Query()

	weekStart, err := h.dateParam(q.Get("week_start"), "week_start")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	weekStart = domain.WeekStart(weekStart)

	if !a.IsManager() {
		summary, err := h.hours.Summary(r.Context(), a.ID, weekStart)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, summary)
		return
	}

	if employeeID := q.Get("employee_id"); employeeID != "" {
		summary, err := h.hours.ManagedSummary(r.Context(), a.ID, employeeID, weekStart)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, summary)
		return
	}

	var minAvailable *float64
	if raw := q.Get("min_hours_available"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			httputil.Error(w, errors.Validation(map[string]string{"min_hours_available": "must be a non-negative number"}))
			return
		}
		minAvailable = &v
	}

	team, err := h.hours.TeamSummary(r.Context(), a.ID, weekStart, minAvailable)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, team, &httputil.Meta{Total: int64(len(team))})
}

// CheckHours reports whether the caller can take on one more window
func (h *SchedulingHandler) CheckHours(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	q := r.URL.Query()

	if q.Get("date") == "" {
		httputil.Error(w, errors.Validation(map[string]string{"date": "this field is required"}))
		return
	}
	date, err := h.dateParam(q.Get("date"), "date")
	if err != nil {
		httputil.Error(w, err)
		return
	}
	window, err := domain.ParseWindow(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"start_time": err.Error()}))
		return
	}

	check, err := h.hours.CanWorkAdditional(r.Context(), a.ID, date, window)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, check)
}

// MonthlyLoad returns a team member's week buckets for one month
func (h *SchedulingHandler) MonthlyLoad(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	q := r.URL.Query()

	employeeID := q.Get("employee_id")
	if employeeID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"employee_id": "this field is required"}))
		return
	}

	now := h.now()
	year, month := now.Year(), int(now.Month())
	if raw := q.Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 2000 || v > 9999 {
			httputil.Error(w, errors.Validation(map[string]string{"year": "must be a four digit year"}))
			return
		}
		year = v
	}
	if raw := q.Get("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 12 {
			httputil.Error(w, errors.Validation(map[string]string{"month": "must be between 1 and 12"}))
			return
		}
		month = v
	}

	load, err := h.hours.ManagedMonthlyLoad(r.Context(), a.ID, employeeID, year, time.Month(month))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, load)
}

// GetFillStatus projects a shift's fill status without writing it
func (h *SchedulingHandler) GetFillStatus(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	fill, err := h.fill.Get(r.Context(), a.ID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, fill)
}

// RecomputeFillStatus recomputes and persists one shift's fill status
func (h *SchedulingHandler) RecomputeFillStatus(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	change, err := h.fill.Recompute(r.Context(), a.ID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, change)
}

// RecomputeAllFillStatus recomputes every shift the manager owns
func (h *SchedulingHandler) RecomputeAllFillStatus(w http.ResponseWriter, r *http.Request) {
	a := actor.FromContext(r.Context())
	changes, err := h.fill.RecomputeAll(r.Context(), a.ID)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSONWithMeta(w, http.StatusOK, changes, &httputil.Meta{Total: int64(len(changes))})
}

// dateParam parses a YYYY-MM-DD query value, defaulting to today
func (h *SchedulingHandler) dateParam(raw, field string) (time.Time, error) {
	if raw == "" {
		return domain.Date(h.now()), nil
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, errors.Validation(map[string]string{field: "must be a date in YYYY-MM-DD format"})
	}
	return t, nil
}
