package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/database"
)

// AvailabilityRepository reads employee-declared availability. Writes are
// owned by the availability service.
type AvailabilityRepository struct {
	db *database.DB
}

// NewAvailabilityRepository creates a new availability repository
func NewAvailabilityRepository(db *database.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListForManagerDates lists the availability of the manager's actively
// linked employees on the given dates.
func (r *AvailabilityRepository) ListForManagerDates(ctx context.Context, managerID string, dates []time.Time) ([]*domain.Availability, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = d.Format(domain.DateLayout)
	}

	var records []*domain.Availability
	query := `
		SELECT av.id, av.employee_id, av.available_date,
		       av.start_time::text AS start_time, av.end_time::text AS end_time, av.created_at
		FROM availability av
		INNER JOIN manager_employee_assignments mea
		        ON mea.employee_id = av.employee_id AND mea.status = 'active'
		WHERE mea.manager_id = $1
		  AND av.available_date = ANY($2::date[])
		ORDER BY av.available_date, av.start_time
	`

	if err := r.db.Conn(ctx).SelectContext(ctx, &records, query, managerID, pq.Array(days)); err != nil {
		return nil, database.WrapError(err)
	}

	return records, nil
}
