package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/rosterly/rosterly-backend/pkg/database"
)

// ManagerLinkRepository reads the manager/employee authorization graph
type ManagerLinkRepository struct {
	db *database.DB
}

// NewManagerLinkRepository creates a new manager link repository
func NewManagerLinkRepository(db *database.DB) *ManagerLinkRepository {
	return &ManagerLinkRepository{db: db}
}

// IsActiveManagerOf reports whether managerID has an active link to employeeID
func (r *ManagerLinkRepository) IsActiveManagerOf(ctx context.Context, managerID, employeeID string) (bool, error) {
	if !isUUID(managerID) || !isUUID(employeeID) {
		return false, nil
	}

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM manager_employee_assignments
			WHERE manager_id = $1 AND employee_id = $2 AND status = 'active'
		)
	`

	if err := r.db.Conn(ctx).GetContext(ctx, &exists, query, managerID, employeeID); err != nil {
		return false, database.WrapError(err)
	}

	return exists, nil
}

// ListActiveEmployees lists the employees actively linked to a manager
func (r *ManagerLinkRepository) ListActiveEmployees(ctx context.Context, managerID string) ([]string, error) {
	var employees []string
	query := `
		SELECT DISTINCT employee_id FROM manager_employee_assignments
		WHERE manager_id = $1 AND status = 'active'
		ORDER BY employee_id
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &employees, query, managerID); err != nil {
		return nil, database.WrapError(err)
	}

	return employees, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
