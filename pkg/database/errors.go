package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/rosterly/rosterly-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict("a record with these values already exists")

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Invalid text representation (22P02), e.g. a malformed UUID
	case "22P02":
		return errors.Validation(map[string]string{
			"input": "malformed value",
		})

	// Serialization failure (40001) and deadlock (40P01) lose the race
	// against another writer; callers see them as a stale state.
	case "40001", "40P01":
		return errors.StateConflict("concurrent_update", "the record was modified concurrently, retry the request")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: assigned, available, completed, cancelled",
		})

	case strings.Contains(constraint, "window_valid"):
		return errors.Validation(map[string]string{
			"end_time": "must be after start_time",
		})

	case strings.Contains(constraint, "headcount_positive"):
		return errors.Validation(map[string]string{
			"required_headcount": "must be at least 1",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// WrapError maps err to an AppError: known Postgres errors keep their meaning,
// application errors pass through and anything else becomes a persistence error.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if mapped := MapPQError(err); mapped != nil {
		return mapped
	}
	return errors.Persistence(err)
}
