package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/database"
	"github.com/rosterly/rosterly-backend/pkg/errors"
)

// heldCountExpr counts the assignments that occupy a slot of shift s:
// everything except cancelled ones.
const heldCountExpr = `(
	SELECT COUNT(*) FROM shift_assignments sa
	WHERE sa.shift_id = s.id AND sa.status <> 'cancelled'
)`

const shiftColumns = `
	s.id, s.company_id, s.location_id, s.manager_id, s.shift_date,
	s.start_time::text AS start_time, s.end_time::text AS end_time,
	s.required_headcount, s.notes, s.fill_status, s.created_at, s.last_updated,
	` + heldCountExpr + ` AS assigned_count`

// ShiftRepository handles shift persistence
type ShiftRepository struct {
	db *database.DB
}

// NewShiftRepository creates a new shift repository
func NewShiftRepository(db *database.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// Get gets a shift by ID with its held assignment count
func (r *ShiftRepository) Get(ctx context.Context, id string) (*domain.Shift, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("shift")
	}

	var shift domain.Shift
	query := `SELECT ` + shiftColumns + ` FROM shifts s WHERE s.id = $1`

	err := r.db.Conn(ctx).GetContext(ctx, &shift, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shift")
	}
	if err != nil {
		return nil, database.WrapError(err)
	}

	return &shift, nil
}

// GetForUpdate locks the shift row for the rest of the transaction and
// returns it with a freshly counted headcount. Must run inside
// DB.Transaction.
func (r *ShiftRepository) GetForUpdate(ctx context.Context, id string) (*domain.Shift, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("shift")
	}

	var shift domain.Shift
	query := `SELECT ` + shiftColumns + ` FROM shifts s WHERE s.id = $1 FOR UPDATE OF s`

	err := r.db.Conn(ctx).GetContext(ctx, &shift, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("shift")
	}
	if err != nil {
		return nil, database.WrapError(err)
	}

	return &shift, nil
}

// ListUnderstaffed lists the manager's shifts dated on or after fromDate
// whose held count is below the required headcount, in date/time order.
func (r *ShiftRepository) ListUnderstaffed(ctx context.Context, managerID string, fromDate time.Time) ([]*domain.Shift, error) {
	var shifts []*domain.Shift
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts s
		WHERE s.manager_id = $1
		  AND s.shift_date >= $2
		  AND ` + heldCountExpr + ` < s.required_headcount
		ORDER BY s.shift_date, s.start_time
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &shifts, query, managerID, fromDate); err != nil {
		return nil, database.WrapError(err)
	}

	return shifts, nil
}

// ListByManager lists the manager's shifts. A nil fromDate lists all of them.
func (r *ShiftRepository) ListByManager(ctx context.Context, managerID string, fromDate *time.Time) ([]*domain.Shift, error) {
	var shifts []*domain.Shift
	query := `SELECT ` + shiftColumns + ` FROM shifts s WHERE s.manager_id = $1`
	args := []interface{}{managerID}

	if fromDate != nil {
		query += " AND s.shift_date >= $2"
		args = append(args, *fromDate)
	}
	query += " ORDER BY s.shift_date, s.start_time"

	if err := r.db.Conn(ctx).SelectContext(ctx, &shifts, query, args...); err != nil {
		return nil, database.WrapError(err)
	}

	return shifts, nil
}

// ListManagersWithShiftsOn returns the managers owning shifts on the given dates
func (r *ShiftRepository) ListManagersWithShiftsOn(ctx context.Context, from, to time.Time) ([]string, error) {
	var managers []string
	query := `
		SELECT DISTINCT manager_id FROM shifts
		WHERE shift_date BETWEEN $1 AND $2
		ORDER BY manager_id
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &managers, query, from, to); err != nil {
		return nil, database.WrapError(err)
	}

	return managers, nil
}

// CountHeld counts the non-cancelled assignments of a shift
func (r *ShiftRepository) CountHeld(ctx context.Context, shiftID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM shift_assignments WHERE shift_id = $1 AND status <> 'cancelled'`

	if err := r.db.Conn(ctx).GetContext(ctx, &count, query, shiftID); err != nil {
		return 0, database.WrapError(err)
	}

	return count, nil
}

// UpdateFillStatus persists the cached fill status of a shift
func (r *ShiftRepository) UpdateFillStatus(ctx context.Context, shiftID string, status domain.FillStatus) error {
	query := `UPDATE shifts SET fill_status = $2, last_updated = NOW() WHERE id = $1`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, shiftID, status)
	if err != nil {
		return database.WrapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return database.WrapError(err)
	}
	if rows == 0 {
		return errors.NotFound("shift")
	}

	return nil
}
