package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atelier/production-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler handles one decoded event.
type MessageHandler func(ctx context.Context, event *Event) error

// Consumer dispatches the events of one queue to handlers keyed by event type.
// Delivery resumes on its own after the broker connection is rebuilt.
type Consumer struct {
	rmq      *RabbitMQ
	queue    string
	handlers map[string]MessageHandler
	logger   *logger.Logger
}

// NewConsumer declares queue and returns a consumer for it.
func NewConsumer(rmq *RabbitMQ, queue string, log *logger.Logger) (*Consumer, error) {
	if err := rmq.DeclareQueue(queue); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Consumer{
		rmq:      rmq,
		queue:    queue,
		handlers: make(map[string]MessageHandler),
		logger:   log,
	}, nil
}

// Subscribe declares exchange and binds the queue to it.
func (c *Consumer) Subscribe(exchange, routingKeyPattern string) error {
	if err := c.rmq.DeclareExchange(exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := c.rmq.BindQueue(c.queue, exchange, routingKeyPattern); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.logger.Info().
		Str("queue", c.queue).
		Str("exchange", exchange).
		Str("routing_key", routingKeyPattern).
		Msg("subscribed to exchange")
	return nil
}

// RegisterHandler sets the handler for eventType. Register before Start.
func (c *Consumer) RegisterHandler(eventType string, handler MessageHandler) {
	c.handlers[eventType] = handler
}

// Start begins delivery and arranges for it to resume after a reconnect.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.consume(ctx); err != nil {
		return err
	}
	c.rmq.OnReconnect(c.consume)
	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	deliveries, err := c.rmq.Channel().Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	c.logger.Info().Str("queue", c.queue).Msg("consumer started")
	go c.run(ctx, deliveries)
	return nil
}

func (c *Consumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("queue", c.queue).Msg("consumer stopped")
			return
		case msg, ok := <-deliveries:
			if !ok {
				c.logger.Warn().Str("queue", c.queue).Msg("delivery channel closed")
				return
			}
			c.handleMessage(ctx, msg)
		}
	}
}

// disposition is what happens to a delivery once its handler has run.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDeadLetter
)

// dispose requeues a failed delivery once. A second failure, or one that
// already went through the dead letter exchange, is parked in the DLQ.
func dispose(msg amqp.Delivery, handlerErr error) disposition {
	switch {
	case handlerErr == nil:
		return dispositionAck
	case msg.Redelivered || deathCount(msg) >= MaxDeliveryAttempts:
		return dispositionDeadLetter
	default:
		return dispositionRequeue
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error().Err(err).Str("queue", c.queue).Msg("malformed event, sending to DLQ")
		msg.Reject(false)
		return
	}

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug().Str("event_type", event.Type).Msg("no handler registered for event type")
		msg.Ack(false)
		return
	}

	log := c.logger.With().
		Str("event_type", event.Type).
		Str("event_id", event.ID).
		Str("correlation_id", event.CorrelationID).
		Logger()
	log.Debug().Msg("processing event")

	err := handler(WithCorrelationID(ctx, event.CorrelationID), &event)
	switch dispose(msg, err) {
	case dispositionAck:
		msg.Ack(false)
	case dispositionRequeue:
		log.Error().Err(err).Msg("failed to process event, requeueing")
		msg.Nack(false, true)
	case dispositionDeadLetter:
		log.Warn().Err(err).Bool("redelivered", msg.Redelivered).Msg("giving up on event, sending to DLQ")
		msg.Reject(false)
	}
}

// deathCount returns how many times the message went through the dead
// letter exchange, from the x-death header.
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
