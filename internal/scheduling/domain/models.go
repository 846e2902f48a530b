package domain

import (
	"time"
)

// AssignmentStatus is the lifecycle state of a shift assignment
type AssignmentStatus string

const (
	StatusAssigned  AssignmentStatus = "assigned"
	StatusAvailable AssignmentStatus = "available"
	StatusCompleted AssignmentStatus = "completed"
	StatusCancelled AssignmentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s AssignmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Manager link states
const (
	LinkActive   = "active"
	LinkInactive = "inactive"
)

// State-conflict reasons reported to callers
const (
	ReasonPastOrToday    = "past_or_today"
	ReasonPastShift      = "past_shift"
	ReasonNotAssigned    = "not_assigned"
	ReasonNotAvailable   = "not_available"
	ReasonSelfClaim      = "self_claim"
	ReasonNotSameManager = "not_same_manager"
	ReasonTimeConflict   = "time_conflict"
	ReasonTerminal       = "terminal_state"
)

// Shift is a block of work owned by a manager
type Shift struct {
	ID                string     `db:"id" json:"id"`
	CompanyID         string     `db:"company_id" json:"company_id"`
	LocationID        *string    `db:"location_id" json:"location_id,omitempty"`
	ManagerID         string     `db:"manager_id" json:"manager_id"`
	ShiftDate         time.Time  `db:"shift_date" json:"shift_date"`
	StartTime         string     `db:"start_time" json:"start_time"` // TIME format HH:MM:SS
	EndTime           string     `db:"end_time" json:"end_time"`     // TIME format HH:MM:SS
	RequiredHeadcount int        `db:"required_headcount" json:"required_headcount"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	FillStatus        FillStatus `db:"fill_status" json:"fill_status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	LastUpdated       time.Time  `db:"last_updated" json:"last_updated"`

	// Joined fields (populated by specific queries)
	AssignedCount int `db:"assigned_count" json:"assigned_count"`
}

// Window parses the shift's time window
func (s *Shift) Window() (Window, error) {
	return ParseWindow(s.StartTime, s.EndTime)
}

// Assignment binds one employee to a (sub-window of a) shift
type Assignment struct {
	ID               string           `db:"id" json:"id"`
	ShiftID          string           `db:"shift_id" json:"shift_id"`
	EmployeeID       string           `db:"employee_id" json:"employee_id"`
	Status           AssignmentStatus `db:"status" json:"status"`
	StartTime        string           `db:"start_time" json:"start_time"`
	EndTime          string           `db:"end_time" json:"end_time"`
	Notes            *string          `db:"notes" json:"notes,omitempty"`
	OwnershipHistory OwnershipHistory `db:"ownership_history" json:"ownership_history"`
	AssignedAt       time.Time        `db:"assigned_at" json:"assigned_at"`
	LastUpdated      time.Time        `db:"last_updated" json:"last_updated"`

	// Joined shift fields
	ShiftDate      time.Time `db:"shift_date" json:"shift_date"`
	ManagerID      string    `db:"manager_id" json:"manager_id,omitempty"`
	ShiftStartTime string    `db:"shift_start_time" json:"-"`
	ShiftEndTime   string    `db:"shift_end_time" json:"-"`
}

// Window parses the assignment's own time window
func (a *Assignment) Window() (Window, error) {
	return ParseWindow(a.StartTime, a.EndTime)
}

// ShiftWindow parses the window of the shift the assignment belongs to
func (a *Assignment) ShiftWindow() (Window, error) {
	return ParseWindow(a.ShiftStartTime, a.ShiftEndTime)
}

// Availability is an employee-declared window of willingness to work
type Availability struct {
	ID            string    `db:"id" json:"id"`
	EmployeeID    string    `db:"employee_id" json:"employee_id"`
	AvailableDate time.Time `db:"available_date" json:"available_date"`
	StartTime     string    `db:"start_time" json:"start_time"`
	EndTime       string    `db:"end_time" json:"end_time"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Window parses the availability window
func (a *Availability) Window() (Window, error) {
	return ParseWindow(a.StartTime, a.EndTime)
}

// ManagerLink is one edge of the manager/employee authorization graph
type ManagerLink struct {
	ID           string    `db:"id" json:"id"`
	ManagerID    string    `db:"manager_id" json:"manager_id"`
	EmployeeID   string    `db:"employee_id" json:"employee_id"`
	Status       string    `db:"status" json:"status"`
	DateAssigned time.Time `db:"date_assigned" json:"date_assigned"`
}

// WeeklyHoursRecord is the cached hour total of one employee for one ISO week
type WeeklyHoursRecord struct {
	EmployeeID    string    `db:"employee_id" json:"employee_id"`
	WeekStartDate time.Time `db:"week_start_date" json:"week_start_date"`
	TotalHours    float64   `db:"total_hours" json:"total_hours"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Identity is the directory snapshot of an employee
type Identity struct {
	EmployeeID string  `db:"user_id" json:"employee_id"`
	FirstName  string  `db:"first_name" json:"first_name"`
	LastName   string  `db:"last_name" json:"last_name"`
	Email      *string `db:"email" json:"email,omitempty"`
	RoleName   *string `db:"role_name" json:"-"`
}

// FullName returns "First Last", or the employee ID when no name is known
func (i Identity) FullName() string {
	switch {
	case i.FirstName != "" && i.LastName != "":
		return i.FirstName + " " + i.LastName
	case i.FirstName != "" || i.LastName != "":
		return i.FirstName + i.LastName
	default:
		return i.EmployeeID
	}
}

// Entry snapshots the identity as an ownership history entry
func (i Identity) Entry(at time.Time) OwnershipEntry {
	e := OwnershipEntry{
		EmployeeID:    i.EmployeeID,
		FirstName:     i.FirstName,
		LastName:      i.LastName,
		TransferredAt: at.UTC(),
	}
	if i.Email != nil {
		e.Email = *i.Email
	}
	return e
}
