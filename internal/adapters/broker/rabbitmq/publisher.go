package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flanux/ledger-core/internal/apperrors"
	"github.com/flanux/ledger-core/internal/core/domain"
	portssvc "github.com/flanux/ledger-core/internal/core/ports/services"
)

const partitionKeyHeader = "x-partition-key"

// Channel is the slice of amqp091.Channel the publisher needs.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ConfirmablePublisher publishes events in confirm mode. Publish returns nil
// only after the broker acknowledges the message, so a nil error means the
// event is owned by the broker.
type ConfirmablePublisher struct {
	ch             Channel
	exchange       string
	confirmTimeout time.Duration

	mu       sync.Mutex
	confirms chan amqp.Confirmation
}

// NewConfirmablePublisher puts the channel into confirm mode and registers the
// confirmation listener.
func NewConfirmablePublisher(ch Channel, exchange string, confirmTimeout time.Duration) (*ConfirmablePublisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to put channel in confirm mode: %w", err)
	}

	return &ConfirmablePublisher{
		ch:             ch,
		exchange:       exchange,
		confirmTimeout: confirmTimeout,
		confirms:       ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

var _ portssvc.EventPublisher = (*ConfirmablePublisher)(nil)

// Publish sends one event and waits for the broker confirmation. The mutex
// serializes publishes on the channel so each confirmation pairs with the
// message just sent.
func (p *ConfirmablePublisher) Publish(ctx context.Context, evt domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.EventID,
		Type:         evt.EventType,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{partitionKeyHeader: evt.PartitionKey},
		Body:         evt.Payload,
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, evt.EventType, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", evt.EventID, err)
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return fmt.Errorf("confirmation channel closed for event %s: %w", evt.EventID, apperrors.ErrDeliveryFailure)
		}
		if !confirm.Ack {
			return fmt.Errorf("broker rejected event %s: %w", evt.EventID, apperrors.ErrDeliveryFailure)
		}
		return nil
	case <-time.After(p.confirmTimeout):
		return fmt.Errorf("timed out waiting for confirmation of event %s: %w", evt.EventID, apperrors.ErrDeliveryFailure)
	case <-ctx.Done():
		return fmt.Errorf("publish of event %s aborted: %w", evt.EventID, ctx.Err())
	}
}
