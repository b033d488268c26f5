// Package queue is the durable dispatch queue and its worker pool. Jobs are
// published to RabbitMQ, consumed by a bounded set of workers, rate limited,
// retried with exponential backoff, and watched for stalls.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// Broker wraps the RabbitMQ channel behind a publish/consume pair the
// dispatcher can be tested against.
type Broker struct {
	ch        *amqp.Channel
	queueName string
	logger    *logging.Logger
}

func NewBroker(conn *amqp.Connection, queueName string, logger *logging.Logger) (*Broker, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	// Durable queue: jobs survive a broker restart.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &Broker{ch: ch, queueName: queueName, logger: logger}, nil
}

// Publish writes one job as a persistent message.
func (b *Broker) Publish(ctx context.Context, job models.DeliveryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	err = b.ch.PublishWithContext(ctx, "", b.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}

// Consume decodes deliveries onto out until the context ends. Messages are
// acked on decode; retry and stall recovery are the dispatcher's job, not
// the broker's redelivery.
func (b *Broker) Consume(ctx context.Context, out chan<- models.DeliveryJob) error {
	msgs, err := b.ch.Consume(b.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}
			var job models.DeliveryJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				b.logger.Errorf("Dropping malformed job payload: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
			select {
			case out <- job:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (b *Broker) Close() error {
	return b.ch.Close()
}
