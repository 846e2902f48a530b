package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rosterly/rosterly-backend/pkg/database"
)

// ShiftFixture represents test shift data
type ShiftFixture struct {
	ID                string
	CompanyID         string
	ManagerID         string
	ShiftDate         time.Time
	StartTime         string
	EndTime           string
	RequiredHeadcount int
}

// AssignmentFixture represents test assignment data
type AssignmentFixture struct {
	ID         string
	ShiftID    string
	EmployeeID string
	Status     string
	StartTime  string
	EndTime    string
}

// AvailabilityFixture represents test availability data
type AvailabilityFixture struct {
	ID         string
	EmployeeID string
	Date       time.Time
	StartTime  string
	EndTime    string
}

// FixtureFactory inserts scheduling rows for integration tests
type FixtureFactory struct {
	db      *database.DB
	company string
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *database.DB) *FixtureFactory {
	return &FixtureFactory{db: db, company: uuid.New().String()}
}

// NewID returns a fresh UUID string
func NewID() string {
	return uuid.New().String()
}

// Shift inserts a shift and returns it
func (f *FixtureFactory) Shift(t *testing.T, managerID string, date time.Time, start, end string, headcount int) ShiftFixture {
	t.Helper()
	s := ShiftFixture{
		ID:                NewID(),
		CompanyID:         f.company,
		ManagerID:         managerID,
		ShiftDate:         date,
		StartTime:         start,
		EndTime:           end,
		RequiredHeadcount: headcount,
	}
	f.exec(t, `
		INSERT INTO shifts (id, company_id, manager_id, shift_date, start_time, end_time, required_headcount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.CompanyID, s.ManagerID, s.ShiftDate, s.StartTime, s.EndTime, s.RequiredHeadcount)
	return s
}

// Assignment inserts an assignment for a shift
func (f *FixtureFactory) Assignment(t *testing.T, shift ShiftFixture, employeeID, status string) AssignmentFixture {
	t.Helper()
	a := AssignmentFixture{
		ID:         NewID(),
		ShiftID:    shift.ID,
		EmployeeID: employeeID,
		Status:     status,
		StartTime:  shift.StartTime,
		EndTime:    shift.EndTime,
	}
	f.exec(t, `
		INSERT INTO shift_assignments (id, shift_id, employee_id, status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.ShiftID, a.EmployeeID, a.Status, a.StartTime, a.EndTime)
	return a
}

// Availability inserts an availability window
func (f *FixtureFactory) Availability(t *testing.T, employeeID string, date time.Time, start, end string) AvailabilityFixture {
	t.Helper()
	a := AvailabilityFixture{
		ID:         NewID(),
		EmployeeID: employeeID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
	}
	f.exec(t, `
		INSERT INTO availability (id, employee_id, available_date, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.EmployeeID, a.Date, a.StartTime, a.EndTime)
	return a
}

// Link makes managerID the active manager of employeeID
func (f *FixtureFactory) Link(t *testing.T, managerID, employeeID string) {
	t.Helper()
	f.exec(t, `
		INSERT INTO manager_employee_assignments (id, manager_id, employee_id, status)
		VALUES ($1, $2, $3, 'active')
	`, NewID(), managerID, employeeID)
}

// Employee inserts a directory entry
func (f *FixtureFactory) Employee(t *testing.T, firstName, lastName string) string {
	t.Helper()
	id := NewID()
	f.exec(t, `
		INSERT INTO employee_directory (user_id, first_name, last_name, email, role_name)
		VALUES ($1, $2, $3, $4, 'employee')
	`, id, firstName, lastName, firstName+"@example.com")
	return id
}

// WeeklyHours seeds the weekly hours cache
func (f *FixtureFactory) WeeklyHours(t *testing.T, employeeID string, weekStart time.Time, hours float64) {
	t.Helper()
	f.exec(t, `
		INSERT INTO employee_weekly_hours (employee_id, week_start_date, total_hours)
		VALUES ($1, $2, $3)
	`, employeeID, weekStart, hours)
}

func (f *FixtureFactory) exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	if _, err := f.db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("fixture insert failed: %v", err)
	}
}
