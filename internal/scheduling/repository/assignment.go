package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/database"
	"github.com/rosterly/rosterly-backend/pkg/errors"
)

const assignmentColumns = `
	sa.id, sa.shift_id, sa.employee_id, sa.status,
	sa.start_time::text AS start_time, sa.end_time::text AS end_time,
	sa.notes, sa.ownership_history, sa.assigned_at, sa.last_updated,
	s.shift_date, s.manager_id,
	s.start_time::text AS shift_start_time, s.end_time::text AS shift_end_time`

// AssignmentRef identifies an assignment touched by a bulk transition
type AssignmentRef struct {
	ID         string    `db:"id" json:"id"`
	ShiftID    string    `db:"shift_id" json:"shift_id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	ShiftDate  time.Time `db:"shift_date" json:"shift_date"`
}

// LedgerEntry is one hour-bearing assignment of an employee
type LedgerEntry struct {
	AssignmentID string    `db:"id"`
	ShiftDate    time.Time `db:"shift_date"`
	StartTime    string    `db:"start_time"`
	EndTime      string    `db:"end_time"`
}

// AssignmentRepository handles shift assignment persistence. All status
// transitions are conditional updates guarded by the expected prior state.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ============================================================================
// READS
// ============================================================================

// GetWithShift gets an assignment joined with its shift's date, manager and window
func (r *AssignmentRepository) GetWithShift(ctx context.Context, id string) (*domain.Assignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("assignment")
	}

	var a domain.Assignment
	query := `
		SELECT ` + assignmentColumns + `
		FROM shift_assignments sa
		INNER JOIN shifts s ON s.id = sa.shift_id
		WHERE sa.id = $1
	`

	err := r.db.Conn(ctx).GetContext(ctx, &a, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("assignment")
	}
	if err != nil {
		return nil, database.WrapError(err)
	}

	return &a, nil
}

// ListHeldOnDate lists the assigned or available assignments of the given
// employees on a date. These are the rows that can collide with a new window.
func (r *AssignmentRepository) ListHeldOnDate(ctx context.Context, employeeIDs []string, date time.Time) ([]*domain.Assignment, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}

	var assignments []*domain.Assignment
	query := `
		SELECT ` + assignmentColumns + `
		FROM shift_assignments sa
		INNER JOIN shifts s ON s.id = sa.shift_id
		WHERE sa.employee_id = ANY($1)
		  AND s.shift_date = $2
		  AND sa.status IN ('assigned', 'available')
		ORDER BY sa.start_time
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &assignments, query, pq.Array(employeeIDs), date); err != nil {
		return nil, database.WrapError(err)
	}

	return assignments, nil
}

// ListForLedger lists the assigned or completed assignments of an employee
// between two dates inclusive.
func (r *AssignmentRepository) ListForLedger(ctx context.Context, employeeID string, from, to time.Time) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	query := `
		SELECT sa.id, s.shift_date,
		       sa.start_time::text AS start_time, sa.end_time::text AS end_time
		FROM shift_assignments sa
		INNER JOIN shifts s ON s.id = sa.shift_id
		WHERE sa.employee_id = $1
		  AND s.shift_date BETWEEN $2 AND $3
		  AND sa.status IN ('assigned', 'completed')
		ORDER BY s.shift_date, sa.start_time
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, employeeID, from, to); err != nil {
		return nil, database.WrapError(err)
	}

	return entries, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// Create inserts a new assignment in the assigned state
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Status = domain.StatusAssigned
	if a.OwnershipHistory == nil {
		a.OwnershipHistory = domain.OwnershipHistory{}
	}

	query := `
		INSERT INTO shift_assignments (
			id, shift_id, employee_id, status, start_time, end_time, notes, ownership_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING assigned_at, last_updated
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		a.ID, a.ShiftID, a.EmployeeID, a.Status, a.StartTime, a.EndTime, a.Notes, a.OwnershipHistory,
	).Scan(&a.AssignedAt, &a.LastUpdated)
	if err != nil {
		return database.WrapError(err)
	}

	return nil
}

// Release moves an assignment from assigned to available if employeeID
// still holds it. Returns false when the guard did not match.
func (r *AssignmentRepository) Release(ctx context.Context, id, employeeID, notes string, history domain.OwnershipHistory) (bool, error) {
	query := `
		UPDATE shift_assignments
		SET status = 'available', notes = $3, ownership_history = $4, last_updated = NOW()
		WHERE id = $1 AND employee_id = $2 AND status = 'assigned'
	`
	return r.execCAS(ctx, query, id, employeeID, notes, history)
}

// Claim hands an available assignment from prevEmployeeID to newEmployeeID
// and puts it back in the assigned state. Returns false when another claim
// or release got there first.
func (r *AssignmentRepository) Claim(ctx context.Context, id, prevEmployeeID, newEmployeeID, notes string, history domain.OwnershipHistory) (bool, error) {
	query := `
		UPDATE shift_assignments
		SET employee_id = $3, status = 'assigned', notes = $4, ownership_history = $5,
		    assigned_at = NOW(), last_updated = NOW()
		WHERE id = $1 AND employee_id = $2 AND status = 'available'
	`
	return r.execCAS(ctx, query, id, prevEmployeeID, newEmployeeID, notes, history)
}

// Cancel moves an assigned or available assignment to cancelled
func (r *AssignmentRepository) Cancel(ctx context.Context, id, notes string) (bool, error) {
	query := `
		UPDATE shift_assignments
		SET status = 'cancelled', notes = $2, last_updated = NOW()
		WHERE id = $1 AND status IN ('assigned', 'available')
	`
	return r.execCAS(ctx, query, id, notes)
}

// CompletePast marks every assigned assignment of a shift dated before
// `before` as completed and returns the affected rows.
func (r *AssignmentRepository) CompletePast(ctx context.Context, before time.Time) ([]AssignmentRef, error) {
	var refs []AssignmentRef
	query := `
		UPDATE shift_assignments sa
		SET status = 'completed', last_updated = NOW()
		FROM shifts s
		WHERE s.id = sa.shift_id AND s.shift_date < $1 AND sa.status = 'assigned'
		RETURNING sa.id, sa.shift_id, sa.employee_id, s.shift_date
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &refs, query, before); err != nil {
		return nil, database.WrapError(err)
	}

	return refs, nil
}

// ExpireUnclaimed cancels released assignments whose shift date has passed
// without a claimant.
func (r *AssignmentRepository) ExpireUnclaimed(ctx context.Context, before time.Time, note string) ([]AssignmentRef, error) {
	var refs []AssignmentRef
	query := `
		UPDATE shift_assignments sa
		SET status = 'cancelled',
		    notes = CASE WHEN sa.notes IS NULL OR sa.notes = '' THEN $2 ELSE sa.notes || ' - ' || $2 END,
		    last_updated = NOW()
		FROM shifts s
		WHERE s.id = sa.shift_id AND s.shift_date < $1 AND sa.status = 'available'
		RETURNING sa.id, sa.shift_id, sa.employee_id, s.shift_date
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &refs, query, before, note); err != nil {
		return nil, database.WrapError(err)
	}

	return refs, nil
}

func (r *AssignmentRepository) execCAS(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.WrapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, database.WrapError(err)
	}

	return rows == 1, nil
}
