package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atelier/production-backend/pkg/config"
	"github.com/atelier/production-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerClosed is returned once Close has been called.
var ErrBrokerClosed = errors.New("rabbitmq connection is permanently closed")

// declaration is one piece of broker topology. Declarations are replayed in
// order on every new channel.
type declaration func(ch *amqp.Channel) error

// RabbitMQ owns the broker connection and its single channel. It remembers
// the exchanges, queues and bindings declared through it so a dropped
// connection can be rebuilt by Watch without the callers noticing.
type RabbitMQ struct {
	config *config.RabbitMQConfig
	logger *logger.Logger

	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	closed   bool
	topology []declaration
	restores []func(context.Context) error
}

// New dials the broker and opens the channel.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		config: cfg,
		logger: log.WithComponent("rabbitmq"),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.dialLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) dialLocked() error {
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

	for _, declare := range r.topology {
		if err := declare(ch); err != nil {
			conn.Close()
			return fmt.Errorf("failed to restore topology: %w", err)
		}
	}

	r.conn, r.channel = conn, ch
	r.logger.Info().Int("declarations", len(r.topology)).Msg("connected to RabbitMQ")
	return nil
}

// Channel returns the current channel. It changes after a reconnect, so
// callers should not hold on to it.
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// OnReconnect registers fn to run after every successful reconnect, once
// the topology has been replayed. Consumers use it to resume delivery.
func (r *RabbitMQ) OnReconnect(fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restores = append(r.restores, fn)
}

// declare runs d on the current channel and records it for replay.
func (r *RabbitMQ) declare(d declaration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrBrokerClosed
	}
	if err := d(r.channel); err != nil {
		return err
	}
	r.topology = append(r.topology, d)
	return nil
}

// DeclareExchange declares a durable topic exchange.
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.declare(func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
	})
}

// DeclareQueue declares a durable queue that dead-letters to DeadLetterExchange.
func (r *RabbitMQ) DeclareQueue(name string) error {
	return r.declare(func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		})
		return err
	})
}

// DeclareDeadLetterQueue declares the dead letter exchange and the
// service's catch-all dlq.<service> queue bound to it.
func (r *RabbitMQ) DeclareDeadLetterQueue(serviceName string) error {
	queue := "dlq." + serviceName
	return r.declare(func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLX exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLQ queue: %w", err)
		}
		if err := ch.QueueBind(queue, "#", DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind DLQ: %w", err)
		}
		return nil
	})
}

// BindQueue binds a queue to an exchange with a routing key pattern.
func (r *RabbitMQ) BindQueue(queue, exchange, routingKey string) error {
	return r.declare(func(ch *amqp.Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, false, nil)
	})
}

// Watch blocks until ctx is cancelled or the connection is closed on
// purpose. Whenever the broker drops the connection it reconnects.
func (r *RabbitMQ) Watch(ctx context.Context) {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()
		if conn == nil {
			return
		}

		dropped := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-ctx.Done():
			return
		case amqpErr, ok := <-dropped:
			if !ok || amqpErr == nil {
				// Close() was called, or the connection was already gone.
				if r.isClosed() {
					return
				}
			}
			r.logger.Warn().Interface("reason", amqpErr).Msg("RabbitMQ connection lost")
		}

		if err := r.Reconnect(ctx); err != nil {
			if !errors.Is(err, ErrBrokerClosed) && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("giving up on RabbitMQ")
			}
			return
		}
	}
}

// Reconnect re-dials the broker, waiting ReconnectDelay between attempts,
// then replays the topology and runs the OnReconnect callbacks.
// It gives up after MaxRetries or when ctx is cancelled.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	if err := r.redial(ctx); err != nil {
		return err
	}
	return r.restore(ctx)
}

func (r *RabbitMQ) redial(ctx context.Context) error {
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return ErrBrokerClosed
		}
		err := r.dialLocked()
		r.mu.Unlock()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Int("attempt", attempt).Msg("reconnection attempt failed")

		timer := time.NewTimer(r.config.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", r.config.MaxRetries)
}

func (r *RabbitMQ) restore(ctx context.Context) error {
	r.mu.RLock()
	restores := append([]func(context.Context) error(nil), r.restores...)
	r.mu.RUnlock()

	for _, fn := range restores {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("failed to resume after reconnect: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Close closes the channel and the connection. Watch returns afterwards.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
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

// Health reports "up" while the connection is open.
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}
