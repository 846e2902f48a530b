package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// DefaultMaxDeliveries is how often a failing event is attempted before it
// is dead-lettered
const DefaultMaxDeliveries = 3

// MessageHandler is a function that handles a message
type MessageHandler func(ctx context.Context, event *Event) error

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRequeue
	outcomeDeadLetter
)

// Consumer reads events from one durable queue and dispatches them by type.
// Failed events are requeued until they have been attempted maxDeliveries
// times, then rejected to the queue's dead-letter exchange.
type Consumer struct {
	rmq           *RabbitMQ
	queueName     string
	handlers      map[string]MessageHandler
	maxDeliveries int
	logger        *logger.Logger

	// Classic queues do not count requeues, so attempts are tracked here
	// per event ID as well as read from x-death.
	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumer declares queueName with its dead-letter queue
func NewConsumer(rmq *RabbitMQ, queueName string, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareDeadLetterQueue(queueName); err != nil {
		return nil, err
	}
	if err := rmq.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &Consumer{
		rmq:           rmq,
		queueName:     queueName,
		handlers:      make(map[string]MessageHandler),
		maxDeliveries: DefaultMaxDeliveries,
		logger:        log,
		attempts:      make(map[string]int),
	}, nil
}

// Subscribe binds the queue to exchange with a routing key pattern
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queueName, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queueName).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")
	return nil
}

// RegisterHandler registers a handler for a specific event type
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start consumes in a goroutine until ctx is cancelled or the broker
// closes the delivery channel
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.rmq.Channel()
	if err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Str("queue", c.queueName).Msg("consumer started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Str("queue", c.queueName).Msg("consumer stopped")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn().Str("queue", c.queueName).Msg("message channel closed")
					return
				}
				c.handleMessage(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Str("queue", c.queueName).Msg("failed to unmarshal event")
		c.settle(msg, outcomeDeadLetter)
		return
	}
	c.settle(msg, c.dispatch(WithCorrelationID(ctx, event.CorrelationID), &event, msg))
}

func (c *Consumer) dispatch(ctx context.Context, event *Event, msg amqp.Delivery) outcome {
	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		return outcomeAck
	}

	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Logger()

	err := handler(ctx, event)
	if err == nil {
		c.forget(event.ID)
		log.Debug().Msg("event processed")
		return outcomeAck
	}

	attempt := c.recordAttempt(event.ID, deathCount(msg))
	if attempt >= c.maxDeliveries {
		c.forget(event.ID)
		log.Warn().Err(err).Int("attempts", attempt).Msg("max deliveries reached, dead-lettering event")
		return outcomeDeadLetter
	}
	log.Error().Err(err).Int("attempt", attempt).Msg("failed to process event, requeueing")
	return outcomeRequeue
}

func (c *Consumer) settle(msg amqp.Delivery, o outcome) {
	var err error
	switch o {
	case outcomeAck:
		err = msg.Ack(false)
	case outcomeRequeue:
		err = msg.Nack(false, true)
	case outcomeDeadLetter:
		err = msg.Reject(false)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("queue", c.queueName).Msg("failed to settle delivery")
	}
}

// recordAttempt returns the attempt number of the failure just seen
func (c *Consumer) recordAttempt(eventID string, deaths int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts == nil {
		c.attempts = make(map[string]int)
	}
	n := c.attempts[eventID] + 1
	if deaths+1 > n {
		n = deaths + 1
	}
	c.attempts[eventID] = n
	return n
}

func (c *Consumer) forget(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, eventID)
}

// deathCount reads the first x-death count set by the broker
func deathCount(msg amqp.Delivery) int {
	deaths, ok := msg.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, death := range deaths {
		if d, ok := death.(amqp.Table); ok {
			if count, ok := d["count"].(int64); ok {
				return int(count)
			}
		}
	}
	return 0
}
