package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rosterly/rosterly-backend/internal/auth/jwt"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/handler"
	"github.com/rosterly/rosterly-backend/internal/scheduling/service"
	"github.com/rosterly/rosterly-backend/pkg/actor"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/httputil"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/rosterly/rosterly-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAssignments struct {
	created  service.CreateInput
	manager  string
	released []string
	claimErr error
}

func (s *stubAssignments) Create(ctx context.Context, managerID string, in service.CreateInput) (*service.CreateResult, error) {
	s.manager, s.created = managerID, in
	return &service.CreateResult{Assignment: &domain.Assignment{ID: "a-new", ShiftID: in.ShiftID, EmployeeID: in.EmployeeID}}, nil
}

func (s *stubAssignments) Release(ctx context.Context, assignmentID, employeeID string) (*service.ReleaseResult, error) {
	s.released = append(s.released, assignmentID+"/"+employeeID)
	return &service.ReleaseResult{Assignment: &domain.Assignment{ID: assignmentID, Status: domain.StatusAvailable}}, nil
}

func (s *stubAssignments) Claim(ctx context.Context, assignmentID, employeeID string) (*service.ClaimResult, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &service.ClaimResult{Assignment: &domain.Assignment{ID: assignmentID, EmployeeID: employeeID}}, nil
}

func (s *stubAssignments) Cancel(ctx context.Context, managerID, assignmentID string) (*domain.Assignment, error) {
	return &domain.Assignment{ID: assignmentID, Status: domain.StatusCancelled}, nil
}

type stubScheduler struct{ manager string }

func (s *stubScheduler) Run(ctx context.Context, managerID string) (*domain.ScheduleResult, error) {
	s.manager = managerID
	return domain.NewScheduleResult(), nil
}

type stubHours struct {
	weekStart    time.Time
	employee     string
	minAvailable *float64
	year         int
	month        time.Month
	window       domain.Window
}

func (s *stubHours) Summary(ctx context.Context, employeeID string, weekStart time.Time) (*service.WeeklyHoursSummary, error) {
	s.employee, s.weekStart = employeeID, weekStart
	return &service.WeeklyHoursSummary{EmployeeID: employeeID}, nil
}

func (s *stubHours) ManagedSummary(ctx context.Context, managerID, employeeID string, weekStart time.Time) (*service.WeeklyHoursSummary, error) {
	if employeeID == "stranger" {
		return nil, errors.Forbidden("employee is not managed by this manager")
	}
	s.employee, s.weekStart = employeeID, weekStart
	return &service.WeeklyHoursSummary{EmployeeID: employeeID}, nil
}

func (s *stubHours) TeamSummary(ctx context.Context, managerID string, weekStart time.Time, minAvailable *float64) ([]*service.WeeklyHoursSummary, error) {
	s.weekStart, s.minAvailable = weekStart, minAvailable
	return []*service.WeeklyHoursSummary{{EmployeeID: "alice"}, {EmployeeID: "bob"}}, nil
}

func (s *stubHours) CanWorkAdditional(ctx context.Context, employeeID string, date time.Time, window domain.Window) (*service.HoursCheck, error) {
	s.employee, s.window = employeeID, window
	return &service.HoursCheck{CanWork: true, ShiftHours: window.Hours()}, nil
}

func (s *stubHours) ManagedMonthlyLoad(ctx context.Context, managerID, employeeID string, year int, month time.Month) (*service.MonthlyLoad, error) {
	s.employee, s.year, s.month = employeeID, year, month
	return &service.MonthlyLoad{EmployeeID: employeeID, Year: year, Month: int(month)}, nil
}

type stubFill struct{}

func (stubFill) Get(ctx context.Context, managerID, shiftID string) (*service.ShiftFill, error) {
	return &service.ShiftFill{ShiftID: shiftID, Fill: domain.ComputeFill(1, 2)}, nil
}

func (stubFill) Recompute(ctx context.Context, managerID, shiftID string) (*service.FillChange, error) {
	return &service.FillChange{ShiftID: shiftID, Status: domain.FillPartiallyStaffed}, nil
}

func (stubFill) RecomputeAll(ctx context.Context, managerID string) ([]*service.FillChange, error) {
	return []*service.FillChange{{ShiftID: "s-1"}, {ShiftID: "s-2"}, {ShiftID: "s-3"}}, nil
}

type fixture struct {
	router      http.Handler
	tokens      *jwt.Manager
	assignments *stubAssignments
	scheduler   *stubScheduler
	hours       *stubHours
}

var fixedNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens:      jwt.NewManager(&config.JWTConfig{Secret: "handler-test-secret", Issuer: "rosterly", AccessExpiry: time.Hour}),
		assignments: &stubAssignments{},
		scheduler:   &stubScheduler{},
		hours:       &stubHours{},
	}
	h := handler.NewSchedulingHandler(f.assignments, f.scheduler, f.hours, stubFill{}, logger.NewNop()).
		WithClock(func() time.Time { return fixedNow })
	f.router = h.Routes(f.tokens, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, path, userID, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewHTTPRequest(method, path, body)
	if userID != "" {
		token, err := f.tokens.Issue(userID, role)
		require.NoError(t, err)
		testutil.WithBearer(req, token)
	}
	return testutil.ExecuteRequest(f.router, req)
}

func TestRoutes_RoleGuards(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		method     string
		path       string
		role       string
		wantStatus int
	}{
		{name: "release as employee", method: http.MethodPost, path: "/assignments/a-1/release", role: actor.RoleEmployee, wantStatus: http.StatusOK},
		{name: "release as manager", method: http.MethodPost, path: "/assignments/a-1/release", role: actor.RoleManager, wantStatus: http.StatusForbidden},
		{name: "claim as employee", method: http.MethodPost, path: "/assignments/a-1/claim", role: actor.RoleEmployee, wantStatus: http.StatusOK},
		{name: "cancel as employee", method: http.MethodPost, path: "/assignments/a-1/cancel", role: actor.RoleEmployee, wantStatus: http.StatusForbidden},
		{name: "cancel as manager", method: http.MethodPost, path: "/assignments/a-1/cancel", role: actor.RoleManager, wantStatus: http.StatusOK},
		{name: "run as employee", method: http.MethodPost, path: "/schedule/run", role: actor.RoleEmployee, wantStatus: http.StatusForbidden},
		{name: "run as manager", method: http.MethodPost, path: "/schedule/run", role: actor.RoleManager, wantStatus: http.StatusOK},
		{name: "fill status as manager", method: http.MethodGet, path: "/shifts/s-1/fill-status", role: actor.RoleManager, wantStatus: http.StatusOK},
		{name: "recompute as manager", method: http.MethodPost, path: "/shifts/s-1/fill-status", role: actor.RoleManager, wantStatus: http.StatusOK},
		{name: "recompute as employee", method: http.MethodPost, path: "/shifts/s-1/fill-status", role: actor.RoleEmployee, wantStatus: http.StatusForbidden},
		{name: "weekly as employee", method: http.MethodGet, path: "/hours/weekly", role: actor.RoleEmployee, wantStatus: http.StatusOK},
		{name: "anonymous", method: http.MethodGet, path: "/hours/weekly", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := ""
			if tt.role != "" {
				userID = "u-1"
			}
			rec := f.do(t, tt.method, tt.path, userID, tt.role, nil)
			testutil.AssertStatus(t, rec, tt.wantStatus)
		})
	}
}

func TestRelease_UsesCallerIdentity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/assignments/a-7/release", "emp-3", actor.RoleEmployee, nil)

	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, []string{"a-7/emp-3"}, f.assignments.released)
}

func TestClaim_StateConflictReason(t *testing.T) {
	f := newFixture(t)
	f.assignments.claimErr = errors.StateConflict("self_claim", "cannot claim your own assignment")

	rec := f.do(t, http.MethodPost, "/assignments/a-1/claim", "emp-1", actor.RoleEmployee, nil)

	testutil.AssertStatus(t, rec, http.StatusConflict)
	var resp httputil.Response
	testutil.ParseJSONBody(t, rec, &resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "self_claim", resp.Error.Reason)
}

func TestClaim_OtherTeamIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.assignments.claimErr = errors.ForbiddenReason("not_same_manager", "assignment belongs to another manager's team")

	rec := f.do(t, http.MethodPost, "/assignments/a-1/claim", "emp-1", actor.RoleEmployee, nil)

	testutil.AssertStatus(t, rec, http.StatusForbidden)
	var resp httputil.Response
	testutil.ParseJSONBody(t, rec, &resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Equal(t, "not_same_manager", resp.Error.Reason)
}

const aliceID = "11111111-1111-4111-8111-111111111111"

func TestCreateAssignment(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/shifts/s-9/assignments", "mgr-1", actor.RoleManager, map[string]interface{}{
		"employee_id": aliceID,
		"start_time":  "10:00:00",
		"end_time":    "14:00:00",
	})

	testutil.AssertStatus(t, rec, http.StatusCreated)
	assert.Equal(t, "mgr-1", f.assignments.manager)
	assert.Equal(t, service.CreateInput{ShiftID: "s-9", EmployeeID: aliceID, StartTime: "10:00:00", EndTime: "14:00:00"}, f.assignments.created)
}

func TestCreateAssignment_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		body      interface{}
		wantField string
	}{
		{name: "missing employee", body: map[string]interface{}{"start_time": "10:00:00"}, wantField: "EmployeeID"},
		{name: "bad clock", body: map[string]interface{}{"employee_id": aliceID, "start_time": "10am"}, wantField: "StartTime"},
		{name: "employee id not a uuid", body: map[string]interface{}{"employee_id": "alice"}, wantField: "EmployeeID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/shifts/s-9/assignments", "mgr-1", actor.RoleManager, tt.body)

			testutil.AssertStatus(t, rec, http.StatusBadRequest)
			var resp httputil.Response
			testutil.ParseJSONBody(t, rec, &resp)
			require.NotNil(t, resp.Error)
			assert.Contains(t, resp.Error.Details, tt.wantField)
		})
	}
}

func TestRunSchedule_ForCaller(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/schedule/run", "mgr-4", actor.RoleManager, nil)

	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "mgr-4", f.scheduler.manager)
}

func TestWeeklyHours(t *testing.T) {
	t.Run("employee sees own week, defaulting to the current one", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/hours/weekly?employee_id=someone-else", "emp-1", actor.RoleEmployee, nil)

		testutil.AssertStatus(t, rec, http.StatusOK)
		assert.Equal(t, "emp-1", f.hours.employee)
		assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), f.hours.weekStart)
	})

	t.Run("week_start snaps to Monday", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/hours/weekly?week_start=2026-10-22", "emp-1", actor.RoleEmployee, nil)

		testutil.AssertStatus(t, rec, http.StatusOK)
		assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), f.hours.weekStart)
	})

	t.Run("manager team view carries a total", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/hours/weekly?min_hours_available=8", "mgr-1", actor.RoleManager, nil)

		testutil.AssertStatus(t, rec, http.StatusOK)
		var resp httputil.Response
		testutil.ParseJSONBody(t, rec, &resp)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(2), resp.Meta.Total)
		require.NotNil(t, f.hours.minAvailable)
		assert.Equal(t, 8.0, *f.hours.minAvailable)
	})

	t.Run("manager single employee outside the team", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, "/hours/weekly?employee_id=stranger", "mgr-1", actor.RoleManager, nil)
		testutil.AssertStatus(t, rec, http.StatusForbidden)
	})

	t.Run("bad inputs", func(t *testing.T) {
		f := newFixture(t)
		testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/weekly?week_start=14.10.2026", "emp-1", actor.RoleEmployee, nil), http.StatusBadRequest)
		testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/weekly?min_hours_available=-1", "mgr-1", actor.RoleManager, nil), http.StatusBadRequest)
	})
}

func TestCheckHours(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/hours/check?date=2026-10-20&start_time=09:00:00&end_time=17:00:00", "emp-1", actor.RoleEmployee, nil)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "emp-1", f.hours.employee)
	assert.Equal(t, 8.0, f.hours.window.Hours())

	testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/check?start_time=09:00:00&end_time=17:00:00", "emp-1", actor.RoleEmployee, nil), http.StatusBadRequest)
	testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/check?date=2026-10-20&start_time=17:00:00&end_time=09:00:00", "emp-1", actor.RoleEmployee, nil), http.StatusBadRequest)
}

func TestMonthlyLoad(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/hours/monthly?employee_id=alice", "mgr-1", actor.RoleManager, nil)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, 2026, f.hours.year)
	assert.Equal(t, time.October, f.hours.month)

	rec = f.do(t, http.MethodGet, "/hours/monthly?employee_id=alice&year=2026&month=2", "mgr-1", actor.RoleManager, nil)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, time.February, f.hours.month)

	testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/monthly", "mgr-1", actor.RoleManager, nil), http.StatusBadRequest)
	testutil.AssertStatus(t, f.do(t, http.MethodGet, "/hours/monthly?employee_id=alice&month=13", "mgr-1", actor.RoleManager, nil), http.StatusBadRequest)
}

func TestRecomputeAllFillStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/shifts/fill-status", "mgr-1", actor.RoleManager, nil)

	testutil.AssertStatus(t, rec, http.StatusOK)
	var resp httputil.Response
	testutil.ParseJSONBody(t, rec, &resp)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(3), resp.Meta.Total)
}
