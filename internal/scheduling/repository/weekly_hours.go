package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/database"
)

// WeeklyHoursRepository handles the per-employee weekly hours cache
type WeeklyHoursRepository struct {
	db *database.DB
}

// NewWeeklyHoursRepository creates a new weekly hours repository
func NewWeeklyHoursRepository(db *database.DB) *WeeklyHoursRepository {
	return &WeeklyHoursRepository{db: db}
}

// Get returns the cached record, or nil when none exists
func (r *WeeklyHoursRepository) Get(ctx context.Context, employeeID string, weekStart time.Time) (*domain.WeeklyHoursRecord, error) {
	var rec domain.WeeklyHoursRecord
	query := `
		SELECT employee_id, week_start_date, total_hours, updated_at
		FROM employee_weekly_hours
		WHERE employee_id = $1 AND week_start_date = $2
	`

	err := r.db.Conn(ctx).GetContext(ctx, &rec, query, employeeID, weekStart)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapError(err)
	}

	return &rec, nil
}

// Upsert writes the cached total for one employee and week
func (r *WeeklyHoursRepository) Upsert(ctx context.Context, employeeID string, weekStart time.Time, hours float64) error {
	query := `
		INSERT INTO employee_weekly_hours (employee_id, week_start_date, total_hours, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (employee_id, week_start_date)
		DO UPDATE SET total_hours = $3, updated_at = NOW()
	`

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, employeeID, weekStart, hours); err != nil {
		return database.WrapError(err)
	}

	return nil
}

// ListEmployeesToReconcile lists the employees holding assigned or completed
// assignments in the week plus those with a cached row for it, so a cache
// whose true total dropped to zero is still corrected.
func (r *WeeklyHoursRepository) ListEmployeesToReconcile(ctx context.Context, from, to time.Time) ([]string, error) {
	var employees []string
	query := `
		SELECT sa.employee_id
		FROM shift_assignments sa
		INNER JOIN shifts s ON s.id = sa.shift_id
		WHERE s.shift_date BETWEEN $1 AND $2
		  AND sa.status IN ('assigned', 'completed')
		UNION
		SELECT employee_id FROM employee_weekly_hours
		WHERE week_start_date = $1
		ORDER BY 1
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &employees, query, from, to); err != nil {
		return nil, database.WrapError(err)
	}

	return employees, nil
}
