// Package events is the Kafka intake: application events published by other
// platform services become notifications here.
package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"notification-engine/internal/config"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
	"notification-engine/internal/orchestrator"
)

// Consumer reads platform events off a Kafka topic and hands them to the
// orchestrator. Malformed messages are logged and skipped, never retried.
type Consumer struct {
	reader *kafka.Reader
	svc    *orchestrator.Service
	logger *logging.Logger
}

func NewConsumer(cfg config.Config, svc *orchestrator.Service, logger *logging.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Kafka.Broker},
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, svc: svc, logger: logger}
}

// Run blocks reading messages until the context ends.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Infof("Kafka consumer started (topic %s)", c.reader.Config().Topic)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Infof("Kafka consumer stopped")
				return
			}
			c.logger.Errorf("Read message failed: %v", err)
			continue
		}

		var event models.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Errorf("Unmarshal message failed (offset %d): %v", msg.Offset, err)
			continue
		}
		if event.Type == "" {
			c.logger.Errorf("Invalid message at offset %d: missing type", msg.Offset)
			continue
		}

		c.handle(ctx, event)
	}
}

func (c *Consumer) handle(ctx context.Context, event models.Event) {
	if event.UserID > 0 {
		if _, err := c.svc.Send(ctx, event); err != nil {
			c.logger.Errorf("Failed to dispatch event %s for user %d: %v", event.Type, event.UserID, err)
		}
	}

	// Events carrying data also fan out to routed groups, e.g. an outage
	// event notifying the affected area's group chats.
	if len(event.Data) > 0 {
		fanout, err := c.svc.RouteToGroups(ctx, event.Type, event.Data)
		if err != nil {
			c.logger.Errorf("Failed to route event %s to groups: %v", event.Type, err)
			return
		}
		if fanout.MatchedRules > 0 {
			c.logger.Infof("Event %s matched %d routing rules, %d group jobs queued",
				event.Type, fanout.MatchedRules, len(fanout.JobIDs))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
