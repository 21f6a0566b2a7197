package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jordidiaz04/transactions/internal/model"
)

// Publisher writes events to Redis streams. Delivery is best-effort: a failed
// publish is logged and dropped, it never fails the operation that produced it.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// TransactionCreated publishes the event for a freshly appended record.
func (p *Publisher) TransactionCreated(ctx context.Context, record *model.TransactionRecord) {
	event := TransactionCreatedEvent{
		TransactionID: record.ID,
		ProductID:     record.ProductID,
		Collection:    record.Collection,
		Direction:     record.Direction,
		Amount:        record.Amount.String(),
		OccurredAt:    record.OccurredAt,
	}
	if record.Commission != nil {
		event.Commission = record.Commission.String()
	}
	if err := p.publish(ctx, TransactionEventsStream, TransactionCreated, event); err != nil {
		p.logger.Warn("failed to publish transaction.created event",
			zap.String("transactionId", record.ID),
			zap.Error(err))
	}
}

func (p *Publisher) publish(ctx context.Context, stream, eventType string, data any) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"event": eventJSON,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
