package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/telemetry"
)

// RedisPublisher publishes each event on the Redis channel named after its
// type.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	ctx, span := tracer.Start(ctx, "RedisPublish")
	defer span.End()

	data, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		return apperr.Internal("marshaling event", err)
	}
	span.SetAttributes(
		telemetry.String("redis.channel", string(e.Type)),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.rdb.Publish(ctx, string(e.Type), data).Err(); err != nil {
		span.RecordError(err)
		return apperr.Unavailable("publishing to redis", err)
	}
	p.logger.Debug("published event",
		zap.String("type", string(e.Type)),
		zap.String("draftId", e.DraftID))
	return nil
}

// Close is a no-op; the client is shared and closed by its owner.
func (p *RedisPublisher) Close() error { return nil }
