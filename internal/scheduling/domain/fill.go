package domain

import "math"

// FillStatus is the derived staffing state of a shift
type FillStatus string

const (
	FillUnstaffed        FillStatus = "unstaffed"
	FillPartiallyStaffed FillStatus = "partially_staffed"
	FillFullyStaffed     FillStatus = "fully_staffed"
)

// Fill is the projection of a shift's headcount onto its fill status
type Fill struct {
	Status            FillStatus `json:"status"`
	AssignedCount     int        `json:"assigned_count"`
	RequiredHeadcount int        `json:"required_headcount"`
	FillPercentage    float64    `json:"fill_percentage"`
}

// ComputeFill derives the fill status for assigned out of required slots.
// The percentage is rounded to one decimal and may exceed 100 when a shift
// is overstaffed.
func ComputeFill(assigned, required int) Fill {
	f := Fill{
		AssignedCount:     assigned,
		RequiredHeadcount: required,
	}

	switch {
	case assigned <= 0:
		f.Status = FillUnstaffed
	case assigned >= required:
		f.Status = FillFullyStaffed
	default:
		f.Status = FillPartiallyStaffed
	}

	if required > 0 {
		f.FillPercentage = math.Round(float64(assigned)/float64(required)*1000) / 10
	}
	return f
}
