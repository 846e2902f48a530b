package domain

// Diagnostic reasons reported by the auto-scheduler
const (
	UnfilledNoEmployees  = "No available employees"
	UnfilledNotEnough    = "Not enough available employees"
	PartialOverlapReason = "Partial time overlap - skipped"
	NoOverlapReason      = "No time overlap - skipped"
)

// Audit notes written onto assignments
const (
	AutoScheduledNote      = "Auto-scheduled by system"
	ReleasedNote           = "Made available by employee for other coworkers"
	ClaimedNotePrefix      = "Claimed from "
	ExpiredUnclaimedNote   = "Expired without a claimant"
	CancelledByManagerNote = "Cancelled by manager"
)

// AssignmentMade reports one assignment created by the auto-scheduler
type AssignmentMade struct {
	AssignmentID string `json:"assignment_id"`
	EmployeeID   string `json:"employee_id"`
	ShiftID      string `json:"shift_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
}

// UnfilledShift reports a shift the run could not staff completely
type UnfilledShift struct {
	ShiftID            string `json:"shift_id"`
	Date               string `json:"date"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	RequiredHeadcount  int    `json:"required_headcount"`
	CurrentAssigned    int    `json:"current_assigned"`
	SpotsStillNeeded   int    `json:"spots_still_needed"`
	AvailableEmployees int    `json:"available_employees"`
	Reason             string `json:"reason"`
}

// PartialOverlap is a diagnostic for an availability record on the shift's
// date that does not fully cover the shift
type PartialOverlap struct {
	ShiftID          string `json:"shift_id"`
	EmployeeID       string `json:"employee_id"`
	ShiftTime        string `json:"shift_time"`
	AvailabilityTime string `json:"availability_time"`
	Reason           string `json:"reason"`
}

// HourCapExclusion reports a candidate skipped because the shift would take
// them over the weekly cap
type HourCapExclusion struct {
	ShiftID         string  `json:"shift_id"`
	EmployeeID      string  `json:"employee_id"`
	CurrentHours    float64 `json:"current_hours"`
	ShiftHours      float64 `json:"shift_hours"`
	TotalAfterShift float64 `json:"total_after_shift"`
}

// ShiftStatus is the final fill state of a processed shift
type ShiftStatus struct {
	ShiftID           string     `json:"shift_id"`
	RequiredHeadcount int        `json:"required_headcount"`
	AssignedCount     int        `json:"assigned_count"`
	Status            FillStatus `json:"status"`
	Date              string     `json:"date"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
}

// ScheduleSummary aggregates a run
type ScheduleSummary struct {
	TotalShifts            int `json:"total_shifts"`
	SuccessfulAssignments  int `json:"successful_assignments"`
	UnfilledShifts         int `json:"unfilled_shifts"`
	PartialOverlaps        int `json:"partial_overlaps"`
	HourCapExclusions      int `json:"hour_cap_exclusions"`
	FullyStaffedShifts     int `json:"fully_staffed_shifts"`
	PartiallyStaffedShifts int `json:"partially_staffed_shifts"`
	UnstaffedShifts        int `json:"unstaffed_shifts"`
}

// ScheduleResult is the outcome of one auto-scheduling run
type ScheduleResult struct {
	AssignmentsMade   []AssignmentMade   `json:"assignments_made"`
	UnfilledShifts    []UnfilledShift    `json:"unfilled_shifts"`
	PartialOverlaps   []PartialOverlap   `json:"partial_overlaps"`
	HourCapExclusions []HourCapExclusion `json:"hour_cap_exclusions"`
	PerShiftStatus    []ShiftStatus      `json:"shift_status_summary"`
	Summary           ScheduleSummary    `json:"summary"`
	Message           string             `json:"message"`
}

// NewScheduleResult returns a result with empty, non-nil lists
func NewScheduleResult() *ScheduleResult {
	return &ScheduleResult{
		AssignmentsMade:   []AssignmentMade{},
		UnfilledShifts:    []UnfilledShift{},
		PartialOverlaps:   []PartialOverlap{},
		HourCapExclusions: []HourCapExclusion{},
		PerShiftStatus:    []ShiftStatus{},
	}
}

// Summarize fills Summary from the collected lists
func (r *ScheduleResult) Summarize(totalShifts int) {
	s := ScheduleSummary{
		TotalShifts:           totalShifts,
		SuccessfulAssignments: len(r.AssignmentsMade),
		UnfilledShifts:        len(r.UnfilledShifts),
		PartialOverlaps:       len(r.PartialOverlaps),
		HourCapExclusions:     len(r.HourCapExclusions),
	}
	for _, st := range r.PerShiftStatus {
		switch st.Status {
		case FillFullyStaffed:
			s.FullyStaffedShifts++
		case FillPartiallyStaffed:
			s.PartiallyStaffedShifts++
		default:
			s.UnstaffedShifts++
		}
	}
	r.Summary = s
}

// AppendNote joins a new note onto existing notes with " - "
func AppendNote(existing *string, note string) string {
	if existing == nil || *existing == "" {
		return note
	}
	return *existing + " - " + note
}
