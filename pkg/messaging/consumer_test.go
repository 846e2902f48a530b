package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rosterly/rosterly-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	acked    int
	nacked   int
	rejected int
	requeue  bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	a.rejected++
	a.requeue = requeue
	return nil
}

func newTestConsumer() *Consumer {
	return &Consumer{
		queueName:     "scheduling-service.user-events",
		handlers:      make(map[string]MessageHandler),
		maxDeliveries: DefaultMaxDeliveries,
		logger:        logger.NewNop(),
	}
}

func delivery(t *testing.T, acker amqp.Acknowledger, eventType string, data interface{}, headers amqp.Table) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "user-service", "corr-1", data)
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: acker, Body: body, Headers: headers}
}

func TestConsumer_HandleMessage_Acks(t *testing.T) {
	c := newTestConsumer()
	var got UserDeletedEvent
	var correlation string
	c.RegisterHandler(EventUserDeleted, func(ctx context.Context, event *Event) error {
		correlation = CorrelationID(ctx)
		return event.UnmarshalData(&got)
	})

	acker := &recordingAcker{}
	c.handleMessage(context.Background(), delivery(t, acker, EventUserDeleted, UserDeletedEvent{UserID: "u-1"}, nil))

	assert.Equal(t, 1, acker.acked)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "corr-1", correlation)
}

func TestConsumer_HandleMessage_UnknownTypeIsAcked(t *testing.T) {
	c := newTestConsumer()
	acker := &recordingAcker{}

	c.handleMessage(context.Background(), delivery(t, acker, "user.role.changed", map[string]string{}, nil))

	assert.Equal(t, 1, acker.acked)
}

func TestConsumer_HandleMessage_RetriesThenDeadLetters(t *testing.T) {
	c := newTestConsumer()
	c.RegisterHandler(EventUserCreated, func(ctx context.Context, event *Event) error {
		return fmt.Errorf("database unavailable")
	})

	acker := &recordingAcker{}
	c.handleMessage(context.Background(), delivery(t, acker, EventUserCreated, UserCreatedEvent{UserID: "u-1"}, nil))
	assert.Equal(t, 1, acker.nacked)
	assert.True(t, acker.requeue)

	acker = &recordingAcker{}
	headers := amqp.Table{"x-death": []interface{}{amqp.Table{"count": int64(3)}}}
	c.handleMessage(context.Background(), delivery(t, acker, EventUserCreated, UserCreatedEvent{UserID: "u-1"}, headers))
	assert.Equal(t, 1, acker.rejected)
	assert.False(t, acker.requeue)
}

func TestConsumer_HandleMessage_CountsRequeuesWithoutHeaders(t *testing.T) {
	c := newTestConsumer()
	c.RegisterHandler(EventUserCreated, func(ctx context.Context, event *Event) error {
		return fmt.Errorf("database unavailable")
	})

	event, err := NewEvent(EventUserCreated, "user-service", "corr-1", UserCreatedEvent{UserID: "u-1"})
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)

	acker := &recordingAcker{}
	for i := 0; i < DefaultMaxDeliveries; i++ {
		c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: acker, Body: body, Redelivered: i > 0})
	}

	assert.Equal(t, DefaultMaxDeliveries-1, acker.nacked)
	assert.Equal(t, 1, acker.rejected)
	assert.Empty(t, c.attempts)
}

func TestConsumer_HandleMessage_MalformedIsRejected(t *testing.T) {
	c := newTestConsumer()
	acker := &recordingAcker{}

	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte("{not json")})

	assert.Equal(t, 1, acker.rejected)
	assert.False(t, acker.requeue)
}
