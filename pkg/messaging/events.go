package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// User events (consumed)
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"

	// Assignment events
	EventAssignmentCreated   = "scheduling.assignment.created"
	EventAssignmentReleased  = "scheduling.assignment.released"
	EventAssignmentClaimed   = "scheduling.assignment.claimed"
	EventAssignmentCancelled = "scheduling.assignment.cancelled"
	EventAssignmentsComplete = "scheduling.assignments.completed"

	// Scheduler events
	EventScheduleCompleted = "scheduling.schedule.completed"
)

// Exchange names
const (
	ExchangeUserEvents       = "user.events"
	ExchangeSchedulingEvents = "scheduling.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserCreatedEvent is published by the identity service when a user is created
type UserCreatedEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleName  string `json:"role_name"`
}

// UserUpdatedEvent is published when a user is updated. Fields holds only
// the changed attributes.
type UserUpdatedEvent struct {
	UserID   string         `json:"user_id"`
	Fields   map[string]any `json:"fields"`
	NewEmail *string        `json:"new_email,omitempty"`
}

// UserDeletedEvent is published when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// Assignment Events

// AssignmentCreatedEvent is published when a manager or the auto-scheduler
// assigns an employee
type AssignmentCreatedEvent struct {
	AssignmentID string `json:"assignment_id"`
	ShiftID      string `json:"shift_id"`
	EmployeeID   string `json:"employee_id"`
	ShiftDate    string `json:"shift_date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	AutoAssigned bool   `json:"auto_assigned"`
}

// AssignmentReleasedEvent is published when a holder makes an assignment available
type AssignmentReleasedEvent struct {
	AssignmentID string `json:"assignment_id"`
	ShiftID      string `json:"shift_id"`
	EmployeeID   string `json:"employee_id"`
	ShiftDate    string `json:"shift_date"`
}

// AssignmentClaimedEvent is published when a coworker takes over an assignment
type AssignmentClaimedEvent struct {
	AssignmentID     string `json:"assignment_id"`
	ShiftID          string `json:"shift_id"`
	PreviousHolderID string `json:"previous_holder_id"`
	NewHolderID      string `json:"new_holder_id"`
	ShiftDate        string `json:"shift_date"`
	TransferCount    int    `json:"transfer_count"`
}

// AssignmentCancelledEvent is published when a manager cancels an assignment
type AssignmentCancelledEvent struct {
	AssignmentID string `json:"assignment_id"`
	ShiftID      string `json:"shift_id"`
	EmployeeID   string `json:"employee_id"`
	CancelledBy  string `json:"cancelled_by"`
}

// AssignmentsCompletedEvent is published after the nightly completion sweep
type AssignmentsCompletedEvent struct {
	Before        string   `json:"before"`
	Completed     int      `json:"completed"`
	Expired       int      `json:"expired"`
	AssignmentIDs []string `json:"assignment_ids"`
}

// ScheduleCompletedEvent is published after an auto-scheduling run
type ScheduleCompletedEvent struct {
	ManagerID              string `json:"manager_id"`
	TotalShifts            int    `json:"total_shifts"`
	SuccessfulAssignments  int    `json:"successful_assignments"`
	UnfilledShifts         int    `json:"unfilled_shifts"`
	FullyStaffedShifts     int    `json:"fully_staffed_shifts"`
	PartiallyStaffedShifts int    `json:"partially_staffed_shifts"`
	UnstaffedShifts        int    `json:"unstaffed_shifts"`
}
