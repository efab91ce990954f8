package websocket

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/whispers-app/whispers/internal/cache"
	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/metrics"
	"github.com/whispers-app/whispers/pkg/protocol"
)

// RedisBroadcaster fans messages out across relay processes. Publish writes
// to a Redis channel; every process, this one included, relays what it
// receives on that channel to its local hub.
type RedisBroadcaster struct {
	redis   *cache.RedisClient
	channel string
	hub     *Hub
}

// NewRedisBroadcaster creates a broadcaster publishing on channel
func NewRedisBroadcaster(redis *cache.RedisClient, channel string, hub *Hub) *RedisBroadcaster {
	return &RedisBroadcaster{
		redis:   redis,
		channel: channel,
		hub:     hub,
	}
}

// Start subscribes to the fan-out channel until ctx is cancelled
func (b *RedisBroadcaster) Start(ctx context.Context) error {
	err := b.redis.Subscribe(ctx, b.channel, func(payload []byte) {
		var message protocol.Message
		if err := json.Unmarshal(payload, &message); err != nil {
			logger.WarnWithFields("Dropping malformed fan-out message", err)
			return
		}
		b.hub.Publish(&message)
	})
	if err != nil {
		return err
	}
	logger.Log.Info("Redis fan-out subscribed", zap.String("channel", b.channel))
	return nil
}

// Publish sends message to every relay process. If Redis is unavailable the
// message still reaches this process's clients.
func (b *RedisBroadcaster) Publish(message *protocol.Message) {
	data, err := json.Marshal(message)
	if err == nil {
		err = b.redis.Publish(b.hub.ctx, b.channel, data)
	}
	metrics.Get().FanoutPublishTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		logger.Log.Warn("Redis fan-out publish failed, delivering locally",
			logger.WithEvent(message.Type),
			zap.Error(err))
		b.hub.Publish(message)
	}
}
