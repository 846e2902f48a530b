package consumers

import (
	"context"

	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/rosterly/rosterly-backend/pkg/messaging"
)

// QueueUserEvents is the queue the scheduling service binds to user events
const QueueUserEvents = "scheduling-service.user-events"

// IdentityStore is the employee directory written by user events
type IdentityStore interface {
	Get(ctx context.Context, employeeID string) (domain.Identity, error)
	Set(ctx context.Context, id *domain.Identity) error
	Delete(ctx context.Context, employeeID string) error
}

// UserEventConsumer keeps the employee directory in sync with user events
type UserEventConsumer struct {
	consumer  *messaging.Consumer
	directory IdentityStore
	logger    *logger.Logger
}

// NewUserEventConsumer creates a new user event consumer
func NewUserEventConsumer(rmq *messaging.RabbitMQ, directory IdentityStore, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, QueueUserEvents, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	c := &UserEventConsumer{
		consumer:  consumer,
		directory: directory,
		logger:    log,
	}
	c.register(consumer)

	return c, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UserEventConsumer) register(consumer *messaging.Consumer) {
	consumer.RegisterHandler(messaging.EventUserCreated, c.handleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, c.handleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, c.handleUserDeleted)
}

func (c *UserEventConsumer) handleUserCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user created event")

	id := &domain.Identity{
		EmployeeID: data.UserID,
		FirstName:  data.FirstName,
		LastName:   data.LastName,
	}
	if data.Email != "" {
		id.Email = &data.Email
	}
	if data.RoleName != "" {
		id.RoleName = &data.RoleName
	}
	return c.directory.Set(ctx, id)
}

// handleUserUpdated applies the changed fields. An update for a user the
// directory has never seen creates the entry from what the event carries.
func (c *UserEventConsumer) handleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user updated event")

	existing, err := c.directory.Get(ctx, data.UserID)
	if err != nil {
		return err
	}

	if v, ok := changedTo(data.Fields, "first_name"); ok {
		existing.FirstName = v
	}
	if v, ok := changedTo(data.Fields, "last_name"); ok {
		existing.LastName = v
	}
	if v, ok := changedTo(data.Fields, "role_name"); ok {
		existing.RoleName = &v
	}
	if data.NewEmail != nil {
		existing.Email = data.NewEmail
	}

	return c.directory.Set(ctx, &existing)
}

func (c *UserEventConsumer) handleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user deleted event")

	return c.directory.Delete(ctx, data.UserID)
}

// changedTo reads the "to" side of a {"from": ..., "to": ...} field change
func changedTo(fields map[string]any, name string) (string, bool) {
	change, ok := fields[name].(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := change["to"].(string)
	return v, ok
}
