package repository

import (
	"context"
	"database/sql"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/database"
)

// DirectoryRepository handles the local copy of employee identities,
// kept in sync from user events.
type DirectoryRepository struct {
	db *database.DB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *database.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Set creates or updates an identity
func (r *DirectoryRepository) Set(ctx context.Context, id *domain.Identity) error {
	query := `
		INSERT INTO employee_directory (user_id, first_name, last_name, email, role_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET first_name = $2, last_name = $3, email = $4, role_name = $5, updated_at = NOW()
	`

	_, err := r.db.Conn(ctx).ExecContext(ctx, query, id.EmployeeID, id.FirstName, id.LastName, id.Email, id.RoleName)
	return database.WrapError(err)
}

// Get returns the identity of an employee. Unknown employees yield a bare
// identity carrying only the ID so history entries can still be written.
func (r *DirectoryRepository) Get(ctx context.Context, employeeID string) (domain.Identity, error) {
	var id domain.Identity
	query := `SELECT user_id, first_name, last_name, email, role_name FROM employee_directory WHERE user_id = $1`

	err := r.db.Conn(ctx).GetContext(ctx, &id, query, employeeID)
	if err == sql.ErrNoRows {
		return domain.Identity{EmployeeID: employeeID}, nil
	}
	if err != nil {
		return domain.Identity{}, database.WrapError(err)
	}

	return id, nil
}

// Delete deletes an identity
func (r *DirectoryRepository) Delete(ctx context.Context, employeeID string) error {
	query := `DELETE FROM employee_directory WHERE user_id = $1`
	_, err := r.db.Conn(ctx).ExecContext(ctx, query, employeeID)
	return database.WrapError(err)
}
