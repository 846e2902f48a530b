package service

import (
	"context"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// ConflictDetector finds overlapping assigned or available assignments
type ConflictDetector struct {
	assignments AssignmentStore
	logger      *logger.Logger
}

// NewConflictDetector creates a new conflict detector
func NewConflictDetector(assignments AssignmentStore, log *logger.Logger) *ConflictDetector {
	return &ConflictDetector{assignments: assignments, logger: log}
}

// HasConflict reports whether employeeID holds an assignment on date that
// overlaps window. excludeID, when set, is ignored.
func (d *ConflictDetector) HasConflict(ctx context.Context, employeeID string, date time.Time, window domain.Window, excludeID string) (bool, error) {
	conflicting, err := d.conflicting(ctx, []string{employeeID}, date, window, excludeID)
	if err != nil {
		return false, err
	}
	return conflicting[employeeID], nil
}

// ConflictingEmployees is the batch form used by the auto-scheduler. The
// returned set holds every candidate with an overlapping assignment.
func (d *ConflictDetector) ConflictingEmployees(ctx context.Context, employeeIDs []string, date time.Time, window domain.Window) (map[string]bool, error) {
	return d.conflicting(ctx, employeeIDs, date, window, "")
}

func (d *ConflictDetector) conflicting(ctx context.Context, employeeIDs []string, date time.Time, window domain.Window, excludeID string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(employeeIDs) == 0 {
		return out, nil
	}

	held, err := d.assignments.ListHeldOnDate(ctx, employeeIDs, domain.Date(date))
	if err != nil {
		return nil, err
	}

	for _, a := range held {
		if a.ID == excludeID || out[a.EmployeeID] {
			continue
		}
		w, err := a.Window()
		if err != nil {
			d.logger.Warn().Err(err).Str("assignment_id", a.ID).Msg("skipping assignment with invalid window")
			continue
		}
		if w.Overlaps(window) {
			out[a.EmployeeID] = true
		}
	}

	return out, nil
}
