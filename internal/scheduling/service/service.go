package service

import (
	"context"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/internal/scheduling/repository"
	"github.com/rosterly/rosterly-backend/pkg/config"
)

// Transactor runs fn in one database transaction. *database.DB implements it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ShiftStore is the shift persistence used by the services
type ShiftStore interface {
	Get(ctx context.Context, id string) (*domain.Shift, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Shift, error)
	ListUnderstaffed(ctx context.Context, managerID string, fromDate time.Time) ([]*domain.Shift, error)
	ListByManager(ctx context.Context, managerID string, fromDate *time.Time) ([]*domain.Shift, error)
	ListManagersWithShiftsOn(ctx context.Context, from, to time.Time) ([]string, error)
	CountHeld(ctx context.Context, shiftID string) (int, error)
	UpdateFillStatus(ctx context.Context, shiftID string, status domain.FillStatus) error
}

// AssignmentStore is the assignment persistence used by the services.
// Release, Claim and Cancel are conditional updates that report whether
// the guard matched.
type AssignmentStore interface {
	GetWithShift(ctx context.Context, id string) (*domain.Assignment, error)
	ListHeldOnDate(ctx context.Context, employeeIDs []string, date time.Time) ([]*domain.Assignment, error)
	ListForLedger(ctx context.Context, employeeID string, from, to time.Time) ([]repository.LedgerEntry, error)
	Create(ctx context.Context, a *domain.Assignment) error
	Release(ctx context.Context, id, employeeID, notes string, history domain.OwnershipHistory) (bool, error)
	Claim(ctx context.Context, id, prevEmployeeID, newEmployeeID, notes string, history domain.OwnershipHistory) (bool, error)
	Cancel(ctx context.Context, id, notes string) (bool, error)
	CompletePast(ctx context.Context, before time.Time) ([]repository.AssignmentRef, error)
	ExpireUnclaimed(ctx context.Context, before time.Time, note string) ([]repository.AssignmentRef, error)
}

// AvailabilityStore reads declared availability
type AvailabilityStore interface {
	ListForManagerDates(ctx context.Context, managerID string, dates []time.Time) ([]*domain.Availability, error)
}

// ManagerLinks reads the manager/employee authorization graph
type ManagerLinks interface {
	IsActiveManagerOf(ctx context.Context, managerID, employeeID string) (bool, error)
	ListActiveEmployees(ctx context.Context, managerID string) ([]string, error)
}

// WeeklyHoursStore is the weekly hours cache
type WeeklyHoursStore interface {
	Get(ctx context.Context, employeeID string, weekStart time.Time) (*domain.WeeklyHoursRecord, error)
	Upsert(ctx context.Context, employeeID string, weekStart time.Time, hours float64) error
	ListEmployeesToReconcile(ctx context.Context, from, to time.Time) ([]string, error)
}

// Directory resolves identity snapshots
type Directory interface {
	Get(ctx context.Context, employeeID string) (domain.Identity, error)
}

// Settings are the engine knobs shared by the services
type Settings struct {
	MaxWeeklyHours       float64
	EnforceHoursCap      bool
	TransactionScope     string
	DiscrepancyThreshold float64
	Location             *time.Location
	Now                  func() time.Time
}

// SettingsFromConfig builds Settings from the scheduling configuration
func SettingsFromConfig(cfg config.SchedulingConfig) Settings {
	return Settings{
		MaxWeeklyHours:       cfg.MaxWeeklyHours,
		EnforceHoursCap:      cfg.EnforceHoursCap,
		TransactionScope:     cfg.TransactionScope,
		DiscrepancyThreshold: cfg.DiscrepancyThreshold,
		Location:             cfg.Location(),
		Now:                  time.Now,
	}
}

func (s Settings) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// today is the current calendar date in the configured timezone
func (s Settings) today() time.Time {
	return domain.Today(s.now(), s.location())
}

func (s Settings) isStrictlyFuture(date time.Time) bool {
	return domain.IsStrictlyFuture(date, s.now(), s.location())
}

func (s Settings) discrepancyThreshold() float64 {
	if s.DiscrepancyThreshold <= 0 {
		return 0.1
	}
	return s.DiscrepancyThreshold
}

func (s Settings) maxWeeklyHours() float64 {
	if s.MaxWeeklyHours <= 0 {
		return 40
	}
	return s.MaxWeeklyHours
}
