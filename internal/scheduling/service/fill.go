package service

import (
	"context"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/errors"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// FillChange reports a fill status recomputation
type FillChange struct {
	ShiftID           string            `json:"shift_id"`
	PreviousStatus    domain.FillStatus `json:"previous_status"`
	Status            domain.FillStatus `json:"status"`
	Changed           bool              `json:"changed"`
	AssignedCount     int               `json:"assigned_count"`
	RequiredHeadcount int               `json:"required_headcount"`
	FillPercentage    float64           `json:"fill_percentage"`
}

// ShiftFill is the on-read projection of a shift's fill state
type ShiftFill struct {
	ShiftID      string            `json:"shift_id"`
	CachedStatus domain.FillStatus `json:"cached_status"`
	domain.Fill
}

// FillService derives and persists shift fill status
type FillService struct {
	tx     Transactor
	shifts ShiftStore
	logger *logger.Logger
}

// NewFillService creates a new fill service
func NewFillService(tx Transactor, shifts ShiftStore, log *logger.Logger) *FillService {
	return &FillService{tx: tx, shifts: shifts, logger: log}
}

// Get projects the fill status of a shift owned by managerID without
// writing anything
func (s *FillService) Get(ctx context.Context, managerID, shiftID string) (*ShiftFill, error) {
	shift, err := s.ownedShift(ctx, managerID, shiftID)
	if err != nil {
		return nil, err
	}
	return &ShiftFill{
		ShiftID:      shift.ID,
		CachedStatus: shift.FillStatus,
		Fill:         domain.ComputeFill(shift.AssignedCount, shift.RequiredHeadcount),
	}, nil
}

// Recompute recomputes and persists the fill status of one shift owned by managerID
func (s *FillService) Recompute(ctx context.Context, managerID, shiftID string) (*FillChange, error) {
	if _, err := s.ownedShift(ctx, managerID, shiftID); err != nil {
		return nil, err
	}

	var change *FillChange
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		change, err = s.Refresh(ctx, shiftID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return change, nil
}

// RecomputeAll recomputes and persists the fill status of every shift of a manager
func (s *FillService) RecomputeAll(ctx context.Context, managerID string) ([]*FillChange, error) {
	shifts, err := s.shifts.ListByManager(ctx, managerID, nil)
	if err != nil {
		return nil, err
	}

	changes := make([]*FillChange, 0, len(shifts))
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		for _, shift := range shifts {
			change, err := s.persist(ctx, shift)
			if err != nil {
				return err
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := 0
	for _, c := range changes {
		if c.Changed {
			updated++
		}
	}
	s.logger.Info().
		Str("manager_id", managerID).
		Int("shifts", len(changes)).
		Int("updated", updated).
		Msg("fill status recomputed")

	return changes, nil
}

// Refresh recounts a shift and persists its fill status. Callers run it
// inside the transaction that changed the shift's assignments.
func (s *FillService) Refresh(ctx context.Context, shiftID string) (*FillChange, error) {
	shift, err := s.shifts.Get(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, shift)
}

func (s *FillService) persist(ctx context.Context, shift *domain.Shift) (*FillChange, error) {
	fill := domain.ComputeFill(shift.AssignedCount, shift.RequiredHeadcount)
	change := &FillChange{
		ShiftID:           shift.ID,
		PreviousStatus:    shift.FillStatus,
		Status:            fill.Status,
		Changed:           shift.FillStatus != fill.Status,
		AssignedCount:     fill.AssignedCount,
		RequiredHeadcount: fill.RequiredHeadcount,
		FillPercentage:    fill.FillPercentage,
	}

	if err := s.shifts.UpdateFillStatus(ctx, shift.ID, fill.Status); err != nil {
		return nil, err
	}
	shift.FillStatus = fill.Status

	return change, nil
}

func (s *FillService) ownedShift(ctx context.Context, managerID, shiftID string) (*domain.Shift, error) {
	shift, err := s.shifts.Get(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.ManagerID != managerID {
		return nil, errors.Forbidden("shift belongs to another manager")
	}
	return shift, nil
}
