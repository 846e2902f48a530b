package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/logger"
)

// DeadLetterExchange receives messages rejected by consumers
const DeadLetterExchange = "dlx.rosterly"

// ErrClosed is returned once Close has been called
var ErrClosed = errors.New("messaging: broker connection closed")

// RabbitMQ owns one AMQP connection and channel. When the broker drops the
// connection a watcher redials up to MaxRetries times; publishers and
// consumers resolve the channel on every use so they pick up the new one.
type RabbitMQ struct {
	config *config.RabbitMQConfig
	logger *logger.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// New dials the broker and starts the reconnect watcher
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{config: cfg, logger: log.WithComponent("rabbitmq")}
	if err := r.dial(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) dial() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(r.config.PrefetchCount, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.mu.Lock()
	r.conn, r.channel = conn, ch
	r.mu.Unlock()

	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	r.logger.Info().Msg("connected to RabbitMQ")
	return nil
}

// watch redials after an unexpected close. A nil error means Close was
// called and the channel was closed cleanly.
func (r *RabbitMQ) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok || amqpErr == nil {
		return
	}
	r.logger.Warn().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("RabbitMQ connection lost")

	if err := r.Reconnect(context.Background()); err != nil {
		r.logger.Error().Err(err).Msg("giving up on RabbitMQ")
	}
}

// Reconnect redials the broker, waiting ReconnectDelay between attempts
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	attempts := r.config.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if r.isClosed() {
			return ErrClosed
		}
		err := r.dial()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Int("attempt", i+1).Msg("reconnection attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.ReconnectDelay):
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts", attempts)
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Channel returns the current channel
func (r *RabbitMQ) Channel() (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.channel == nil || r.channel.IsClosed() {
		return nil, errors.New("messaging: channel not open")
	}
	return r.channel, nil
}

// Close closes the channel and connection; the watcher does not redial
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health reports the connection state for /health
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.declare(func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
	})
}

// DeclareQueue declares a durable queue that dead-letters to DeadLetterExchange
func (r *RabbitMQ) DeclareQueue(name string) error {
	return r.declare(func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		})
		return err
	})
}

// DeclareDeadLetterQueue declares DeadLetterExchange and binds dlq.<queue>
// to it with a catch-all routing key
func (r *RabbitMQ) DeclareDeadLetterQueue(queue string) error {
	dlq := "dlq." + queue
	return r.declare(func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLX exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLQ queue: %w", err)
		}
		if err := ch.QueueBind(dlq, "#", DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind DLQ: %w", err)
		}
		return nil
	})
}

// BindQueue binds a queue to an exchange with a routing key pattern
func (r *RabbitMQ) BindQueue(queue, exchange, routingKey string) error {
	return r.declare(func(ch *amqp.Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, false, nil)
	})
}

func (r *RabbitMQ) declare(fn func(ch *amqp.Channel) error) error {
	ch, err := r.Channel()
	if err != nil {
		return err
	}
	return fn(ch)
}
