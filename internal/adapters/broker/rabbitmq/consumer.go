package rabbitmq

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flanux/ledger-core/internal/core/domain"
)

// Handler processes one decoded event. A nil return acknowledges the
// delivery; an error sends it through the delayed-retry cycle until the cap,
// then parks it on the queue's dead-letter queue.
type Handler func(ctx context.Context, evt domain.TransactionEvent) error

// Parker publishes an exhausted delivery to its parking queue. Satisfied by
// *amqp.Channel.
type Parker interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer dispatches deliveries from one queue to handlers registered per
// event type. Acknowledgements are manual: a delivery is acked only after its
// handler succeeds.
//
// Retries ride the broker topology rather than process memory. A failed
// delivery is nacked into the queue's retry cycle, and the broker's x-death
// header counts how many times that happened, so the cap survives consumer
// restarts. Deliveries that exhaust the cap are republished to <queue>.dlq
// for manual inspection.
type Consumer struct {
	queue           string
	maxRedeliveries int
	logger          *slog.Logger
	parker          Parker

	handlers map[string]Handler
}

// NewConsumer creates a consumer runtime for one queue.
func NewConsumer(queue string, maxRedeliveries int, parker Parker, logger *slog.Logger) *Consumer {
	return &Consumer{
		queue:           queue,
		maxRedeliveries: maxRedeliveries,
		logger:          logger.With(slog.String("queue", queue)),
		parker:          parker,
		handlers:        make(map[string]Handler),
	}
}

// Handle registers the handler for an event type. Registration happens before
// Run; the map is read-only afterwards.
func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run consumes deliveries until the channel closes or the context is
// cancelled.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopping")
			return
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Info("Delivery channel closed, consumer stopping")
				return
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	logger := c.logger.With(
		slog.String("event_id", d.MessageId),
		slog.String("event_type", d.Type),
	)

	handler, ok := c.handlers[d.Type]
	if !ok {
		logger.Warn("No handler registered for event type, acknowledging")
		c.ack(d, logger)
		return
	}

	evt, err := domain.DecodeTransactionEvent(d.Body)
	if err != nil {
		// Poison payload: retrying cannot help, park immediately.
		logger.Error("Undecodable event payload, parking", slog.String("error", err.Error()))
		c.park(ctx, d, logger)
		return
	}

	handleErr := handler(ctx, evt)
	if handleErr == nil {
		c.ack(d, logger)
		return
	}
	logger.Warn("Handler failed", slog.String("error", handleErr.Error()))

	if c.deliveryDeaths(d) >= int64(c.maxRedeliveries) {
		logger.Error("Redelivery cap reached, parking event")
		c.park(ctx, d, logger)
		return
	}

	// Into the retry cycle: the broker routes the rejection through the
	// delay queue and back, incrementing x-death.
	if err := d.Nack(false, false); err != nil {
		logger.Error("Failed to nack delivery for retry", slog.String("error", err.Error()))
	}
}

// deliveryDeaths returns how many times this delivery was rejected from the
// consumer's queue, as counted by the broker in the x-death header. Zero on
// first delivery.
func (c *Consumer) deliveryDeaths(d amqp.Delivery) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if entry["queue"] == c.queue && entry["reason"] == "rejected" {
			if count, ok := entry["count"].(int64); ok {
				return count
			}
		}
	}
	return 0
}

// park moves the delivery onto the parking queue and acknowledges it. If the
// republish fails the delivery is nacked back into the retry cycle so it is
// not lost.
func (c *Consumer) park(ctx context.Context, d amqp.Delivery, logger *slog.Logger) {
	if c.parker == nil {
		logger.Error("No parking publisher configured, dead-lettering delivery")
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to nack delivery", slog.String("error", err.Error()))
		}
		return
	}

	msg := amqp.Publishing{
		MessageId:    d.MessageId,
		Type:         d.Type,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      d.Headers,
		Body:         d.Body,
	}
	if err := c.parker.PublishWithContext(ctx, "", c.queue+".dlq", false, false, msg); err != nil {
		logger.Error("Failed to park delivery, returning to retry cycle", slog.String("error", err.Error()))
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to nack delivery", slog.String("error", err.Error()))
		}
		return
	}
	c.ack(d, logger)
}

func (c *Consumer) ack(d amqp.Delivery, logger *slog.Logger) {
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack delivery", slog.String("error", err.Error()))
	}
}
