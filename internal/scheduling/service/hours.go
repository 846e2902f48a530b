package service

import (
	"context"
	"math"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// WeeklyHoursSummary compares cached and recomputed hours for one ISO week
type WeeklyHoursSummary struct {
	EmployeeID     string  `json:"employee_id"`
	WeekStart      string  `json:"week_start"`
	WeekEnd        string  `json:"week_end"`
	CachedHours    float64 `json:"cached_hours"`
	ActualHours    float64 `json:"actual_hours"`
	Discrepancy    float64 `json:"discrepancy"`
	HasDiscrepancy bool    `json:"has_discrepancy"`
	MaxHours       float64 `json:"max_hours"`
	RemainingHours float64 `json:"remaining_hours"`
	ShiftCount     int     `json:"shift_count"`
}

// HoursCheck answers whether an employee can take on one more window
type HoursCheck struct {
	CanWork         bool    `json:"can_work"`
	CurrentHours    float64 `json:"current_hours"`
	ShiftHours      float64 `json:"shift_hours"`
	TotalAfterShift float64 `json:"total_after_shift"`
	RemainingHours  float64 `json:"remaining_hours"`
	MaxHours        float64 `json:"max_hours"`
	WeekStart       string  `json:"week_start"`
}

// MonthlyLoad aggregates the week buckets overlapping a calendar month
type MonthlyLoad struct {
	EmployeeID         string                `json:"employee_id"`
	Year               int                   `json:"year"`
	Month              int                   `json:"month"`
	Weeks              []*WeeklyHoursSummary `json:"weeks"`
	TotalActualHours   float64               `json:"total_actual_hours"`
	TotalCachedHours   float64               `json:"total_cached_hours"`
	TotalShifts        int                   `json:"total_shifts"`
	WeeksWithHours     int                   `json:"weeks_with_hours"`
	AverageWeeklyHours float64               `json:"average_weekly_hours"`
}

// HoursLedger computes committed weekly hours from assigned and completed
// assignments and keeps the weekly cache in line with them
type HoursLedger struct {
	assignments AssignmentStore
	cache       WeeklyHoursStore
	links       ManagerLinks
	settings    Settings
	logger      *logger.Logger
}

// NewHoursLedger creates a new hours ledger
func NewHoursLedger(assignments AssignmentStore, cache WeeklyHoursStore, links ManagerLinks, settings Settings, log *logger.Logger) *HoursLedger {
	return &HoursLedger{
		assignments: assignments,
		cache:       cache,
		links:       links,
		settings:    settings,
		logger:      log,
	}
}

// ActualWeeklyHours sums the durations of the employee's assigned and
// completed assignments in the week starting at weekStart
func (l *HoursLedger) ActualWeeklyHours(ctx context.Context, employeeID string, weekStart time.Time) (float64, error) {
	hours, _, err := l.actual(ctx, employeeID, domain.WeekStart(weekStart))
	return hours, err
}

// CachedWeeklyHours returns the last persisted total, 0 when none exists
func (l *HoursLedger) CachedWeeklyHours(ctx context.Context, employeeID string, weekStart time.Time) (float64, error) {
	rec, err := l.cache.Get(ctx, employeeID, domain.WeekStart(weekStart))
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return rec.TotalHours, nil
}

// Summary reports cached and actual hours for the week containing weekStart
func (l *HoursLedger) Summary(ctx context.Context, employeeID string, weekStart time.Time) (*WeeklyHoursSummary, error) {
	ws := domain.WeekStart(weekStart)

	actual, shifts, err := l.actual(ctx, employeeID, ws)
	if err != nil {
		return nil, err
	}
	cached, err := l.CachedWeeklyHours(ctx, employeeID, ws)
	if err != nil {
		return nil, err
	}

	discrepancy := roundHours(math.Abs(cached - actual))
	summary := &WeeklyHoursSummary{
		EmployeeID:     employeeID,
		WeekStart:      ws.Format(domain.DateLayout),
		WeekEnd:        domain.WeekEnd(ws).Format(domain.DateLayout),
		CachedHours:    cached,
		ActualHours:    actual,
		Discrepancy:    discrepancy,
		HasDiscrepancy: discrepancy > l.settings.discrepancyThreshold(),
		MaxHours:       l.settings.maxWeeklyHours(),
		RemainingHours: remaining(l.settings.maxWeeklyHours(), actual),
		ShiftCount:     shifts,
	}

	if summary.HasDiscrepancy {
		l.logger.Warn().
			Str("employee_id", employeeID).
			Str("week_start", summary.WeekStart).
			Float64("cached", cached).
			Float64("actual", actual).
			Msg("weekly hours cache drifted")
	}

	return summary, nil
}

// CanWorkAdditional checks whether adding window on date keeps the employee
// within the weekly cap. The result is advisory.
func (l *HoursLedger) CanWorkAdditional(ctx context.Context, employeeID string, date time.Time, window domain.Window) (*HoursCheck, error) {
	ws := domain.WeekStart(date)
	current, _, err := l.actual(ctx, employeeID, ws)
	if err != nil {
		return nil, err
	}

	limit := l.settings.maxWeeklyHours()
	shiftHours := roundHours(window.Hours())
	total := roundHours(current + shiftHours)

	return &HoursCheck{
		CanWork:         total <= limit,
		CurrentHours:    current,
		ShiftHours:      shiftHours,
		TotalAfterShift: total,
		RemainingHours:  remaining(limit, current),
		MaxHours:        limit,
		WeekStart:       ws.Format(domain.DateLayout),
	}, nil
}

// Reconcile overwrites the cached total with the recomputed one
func (l *HoursLedger) Reconcile(ctx context.Context, employeeID string, weekStart time.Time) (*WeeklyHoursSummary, error) {
	ws := domain.WeekStart(weekStart)
	actual, _, err := l.actual(ctx, employeeID, ws)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Upsert(ctx, employeeID, ws, actual); err != nil {
		return nil, err
	}
	return l.Summary(ctx, employeeID, ws)
}

// RefreshForDate recomputes the cache of the week containing date. It is
// called inside the transaction that changed the employee's assignments.
func (l *HoursLedger) RefreshForDate(ctx context.Context, employeeID string, date time.Time) error {
	ws := domain.WeekStart(date)
	actual, _, err := l.actual(ctx, employeeID, ws)
	if err != nil {
		return err
	}
	return l.cache.Upsert(ctx, employeeID, ws, actual)
}

// ReconcileWeek refreshes the cache of every employee with hours or a cached
// record in the week and returns how many records were written
func (l *HoursLedger) ReconcileWeek(ctx context.Context, weekStart time.Time) (int, error) {
	ws := domain.WeekStart(weekStart)
	employees, err := l.cache.ListEmployeesToReconcile(ctx, ws, domain.WeekEnd(ws))
	if err != nil {
		return 0, err
	}

	for _, id := range employees {
		if err := l.RefreshForDate(ctx, id, ws); err != nil {
			return 0, err
		}
	}

	l.logger.Info().
		Str("week_start", ws.Format(domain.DateLayout)).
		Int("employees", len(employees)).
		Msg("weekly hours reconciled")

	return len(employees), nil
}

// TeamSummary reports the week for every employee actively linked to the
// manager. minAvailable, when set, keeps only employees with at least that
// many remaining hours.
func (l *HoursLedger) TeamSummary(ctx context.Context, managerID string, weekStart time.Time, minAvailable *float64) ([]*WeeklyHoursSummary, error) {
	employees, err := l.links.ListActiveEmployees(ctx, managerID)
	if err != nil {
		return nil, err
	}

	out := make([]*WeeklyHoursSummary, 0, len(employees))
	for _, id := range employees {
		summary, err := l.Summary(ctx, id, weekStart)
		if err != nil {
			return nil, err
		}
		if minAvailable != nil && summary.RemainingHours < *minAvailable {
			continue
		}
		out = append(out, summary)
	}

	return out, nil
}

// MonthlyLoad aggregates up to five week buckets overlapping the month
func (l *HoursLedger) MonthlyLoad(ctx context.Context, employeeID string, year int, month time.Month) (*MonthlyLoad, error) {
	load := &MonthlyLoad{
		EmployeeID: employeeID,
		Year:       year,
		Month:      int(month),
		Weeks:      []*WeeklyHoursSummary{},
	}

	for _, ws := range domain.MonthWeeks(year, month) {
		summary, err := l.Summary(ctx, employeeID, ws)
		if err != nil {
			return nil, err
		}
		load.Weeks = append(load.Weeks, summary)
		load.TotalActualHours += summary.ActualHours
		load.TotalCachedHours += summary.CachedHours
		load.TotalShifts += summary.ShiftCount
		if summary.ActualHours > 0 {
			load.WeeksWithHours++
		}
	}

	load.TotalActualHours = roundHours(load.TotalActualHours)
	load.TotalCachedHours = roundHours(load.TotalCachedHours)
	if load.WeeksWithHours > 0 {
		load.AverageWeeklyHours = roundHours(load.TotalActualHours / float64(load.WeeksWithHours))
	}

	return load, nil
}

// ManagedSummary is Summary for an employee on managerID's team
func (l *HoursLedger) ManagedSummary(ctx context.Context, managerID, employeeID string, weekStart time.Time) (*WeeklyHoursSummary, error) {
	if err := l.requireTeam(ctx, managerID, employeeID); err != nil {
		return nil, err
	}
	return l.Summary(ctx, employeeID, weekStart)
}

// ManagedMonthlyLoad is MonthlyLoad for an employee on managerID's team
func (l *HoursLedger) ManagedMonthlyLoad(ctx context.Context, managerID, employeeID string, year int, month time.Month) (*MonthlyLoad, error) {
	if err := l.requireTeam(ctx, managerID, employeeID); err != nil {
		return nil, err
	}
	return l.MonthlyLoad(ctx, employeeID, year, month)
}

func (l *HoursLedger) requireTeam(ctx context.Context, managerID, employeeID string) error {
	linked, err := l.links.IsActiveManagerOf(ctx, managerID, employeeID)
	if err != nil {
		return err
	}
	if !linked {
		return errors.Forbidden("employee is not managed by this manager")
	}
	return nil
}

func (l *HoursLedger) actual(ctx context.Context, employeeID string, weekStart time.Time) (float64, int, error) {
	entries, err := l.assignments.ListForLedger(ctx, employeeID, weekStart, domain.WeekEnd(weekStart))
	if err != nil {
		return 0, 0, err
	}

	var total float64
	for _, e := range entries {
		w, err := domain.ParseWindow(e.StartTime, e.EndTime)
		if err != nil {
			l.logger.Warn().Err(err).Str("assignment_id", e.AssignmentID).Msg("skipping assignment with invalid window")
			continue
		}
		total += w.Hours()
	}

	return roundHours(total), len(entries), nil
}

func remaining(limit, actual float64) float64 {
	return roundHours(math.Max(0, limit-actual))
}

// roundHours rounds to the NUMERIC(6,2) precision of the cache
func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
