// Package rabbitmq holds the broker adapter: topology declaration, the
// publisher-confirm publisher and the manual-ack consumer runtime.
package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpec describes one consumer queue and the routing keys it subscribes to.
type QueueSpec struct {
	Name        string
	RoutingKeys []string
}

// Connect opens a connection and a channel against the broker.
func Connect(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// DeclareTopology declares the event exchange, its dead-letter exchange and
// the consumer queues.
//
// Each queue gets a delayed-retry cycle: rejected deliveries dead-letter to
// <queue>.retry (keyed by queue name on the shared dead-letter exchange),
// sit there for retryDelay, then dead-letter back to the queue through the
// default exchange. Every pass increments the broker's x-death counter, which
// the consumer reads to bound retries. Exhausted deliveries are republished
// by the consumer to <queue>.dlq for manual inspection.
func DeclareTopology(ch *amqp.Channel, exchange string, queues []QueueSpec, retryDelay time.Duration) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	dlx := exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange %s: %w", dlx, err)
	}

	for _, q := range queues {
		retry := q.Name + ".retry"
		retryArgs := amqp.Table{
			"x-message-ttl":             retryDelay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.Name,
		}
		if _, err := ch.QueueDeclare(retry, true, false, false, false, retryArgs); err != nil {
			return fmt.Errorf("failed to declare retry queue %s: %w", retry, err)
		}
		if err := ch.QueueBind(retry, q.Name, dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind retry queue %s: %w", retry, err)
		}

		dlq := q.Name + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue %s: %w", dlq, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": q.Name,
		}
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}
		for _, key := range q.RoutingKeys {
			if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
				return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, key, err)
			}
		}
	}

	return nil
}
