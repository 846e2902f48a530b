package events

import (
	"context"
	"time"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/rosterly/rosterly-backend/pkg/messaging"
)

// ServiceName is the event source of this service
const ServiceName = "scheduling-service"

// Sink delivers one event. *messaging.Publisher is the production sink.
type Sink interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// SchedulingEventPublisher publishes assignment lifecycle and scheduler
// events. Publishing is fire-and-forget: failures are logged and never
// undo a committed state change.
type SchedulingEventPublisher struct {
	sink   Sink
	logger *logger.Logger
}

// NewSchedulingEventPublisher creates a publisher on the scheduling exchange
func NewSchedulingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*SchedulingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeSchedulingEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}
	return NewPublisherWithSink(publisher, log), nil
}

// NewPublisherWithSink creates a publisher writing to sink. A nil sink
// drops every event.
func NewPublisherWithSink(sink Sink, log *logger.Logger) *SchedulingEventPublisher {
	return &SchedulingEventPublisher{sink: sink, logger: log}
}

func (p *SchedulingEventPublisher) publish(ctx context.Context, eventType string, data interface{}, id string) {
	if p == nil || p.sink == nil {
		return
	}
	if err := p.sink.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str("id", id).Msg("failed to publish scheduling event")
	}
}

// PublishAssignmentCreated publishes an assignment created event
func (p *SchedulingEventPublisher) PublishAssignmentCreated(ctx context.Context, a *domain.Assignment, shiftDate time.Time, auto bool) {
	data := messaging.AssignmentCreatedEvent{
		AssignmentID: a.ID,
		ShiftID:      a.ShiftID,
		EmployeeID:   a.EmployeeID,
		ShiftDate:    shiftDate.Format(domain.DateLayout),
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		AutoAssigned: auto,
	}
	p.publish(ctx, messaging.EventAssignmentCreated, data, a.ID)
}

// PublishAssignmentReleased publishes an assignment released event
func (p *SchedulingEventPublisher) PublishAssignmentReleased(ctx context.Context, a *domain.Assignment) {
	data := messaging.AssignmentReleasedEvent{
		AssignmentID: a.ID,
		ShiftID:      a.ShiftID,
		EmployeeID:   a.EmployeeID,
		ShiftDate:    a.ShiftDate.Format(domain.DateLayout),
	}
	p.publish(ctx, messaging.EventAssignmentReleased, data, a.ID)
}

// PublishAssignmentClaimed publishes an assignment claimed event
func (p *SchedulingEventPublisher) PublishAssignmentClaimed(ctx context.Context, a *domain.Assignment, previousHolderID string) {
	data := messaging.AssignmentClaimedEvent{
		AssignmentID:     a.ID,
		ShiftID:          a.ShiftID,
		PreviousHolderID: previousHolderID,
		NewHolderID:      a.EmployeeID,
		ShiftDate:        a.ShiftDate.Format(domain.DateLayout),
		TransferCount:    len(a.OwnershipHistory),
	}
	p.publish(ctx, messaging.EventAssignmentClaimed, data, a.ID)
}

// PublishAssignmentCancelled publishes an assignment cancelled event
func (p *SchedulingEventPublisher) PublishAssignmentCancelled(ctx context.Context, a *domain.Assignment, cancelledBy string) {
	data := messaging.AssignmentCancelledEvent{
		AssignmentID: a.ID,
		ShiftID:      a.ShiftID,
		EmployeeID:   a.EmployeeID,
		CancelledBy:  cancelledBy,
	}
	p.publish(ctx, messaging.EventAssignmentCancelled, data, a.ID)
}

// PublishAssignmentsCompleted publishes the outcome of a completion sweep
func (p *SchedulingEventPublisher) PublishAssignmentsCompleted(ctx context.Context, before time.Time, completed, expired []string) {
	ids := make([]string, 0, len(completed)+len(expired))
	ids = append(ids, completed...)
	ids = append(ids, expired...)
	data := messaging.AssignmentsCompletedEvent{
		Before:        before.Format(domain.DateLayout),
		Completed:     len(completed),
		Expired:       len(expired),
		AssignmentIDs: ids,
	}
	p.publish(ctx, messaging.EventAssignmentsComplete, data, data.Before)
}

// PublishScheduleCompleted publishes the summary of an auto-scheduling run
func (p *SchedulingEventPublisher) PublishScheduleCompleted(ctx context.Context, managerID string, s domain.ScheduleSummary) {
	data := messaging.ScheduleCompletedEvent{
		ManagerID:              managerID,
		TotalShifts:            s.TotalShifts,
		SuccessfulAssignments:  s.SuccessfulAssignments,
		UnfilledShifts:         s.UnfilledShifts,
		FullyStaffedShifts:     s.FullyStaffedShifts,
		PartiallyStaffedShifts: s.PartiallyStaffedShifts,
		UnstaffedShifts:        s.UnstaffedShifts,
	}
	p.publish(ctx, messaging.EventScheduleCompleted, data, managerID)
}
