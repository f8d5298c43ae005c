package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shelfshare/shelfshare/internal/models"
)

// notificationsKey is the Redis sorted set holding pending notification
// triggers, scored by occurrence time.
const notificationsKey = "notifications"

// EventPublisher delivers circulation events to the notification pipeline.
// Implementations must not return errors into circulation flows; delivery
// is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, events ...models.Event)
}

// RedisEventPublisher pushes events onto a Redis sorted set for a
// downstream notifier to drain. Failures are logged and dropped.
type RedisEventPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisEventPublisher(client *redis.Client, logger *slog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, logger: logger}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, events ...models.Event) {
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}

		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to encode event", "type", event.Type, "error", err)
			continue
		}

		err = p.client.ZAdd(ctx, notificationsKey, redis.Z{
			Score:  float64(event.OccurredAt.UnixMilli()),
			Member: payload,
		}).Err()
		if err != nil {
			p.logger.Error("Failed to publish event",
				"type", event.Type,
				"book_id", event.BookID,
				"user_id", event.UserID,
				"error", err)
			continue
		}

		p.logger.Debug("Event published", "type", event.Type, "book_id", event.BookID, "user_id", event.UserID)
	}
}
