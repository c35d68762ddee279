package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TopicMessages      = "messages"
	TopicBroadcasts    = "broadcasts"
	TopicEvents        = "events"
	TopicNotifications = "notifications"
)

var StreamTopics = []string{TopicMessages, TopicBroadcasts, TopicEvents, TopicNotifications}

const publishTimeout = 2 * time.Second

// Publisher fans a payload out to whatever stream subscribers listen on a
// topic. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisPublisher struct {
	client redisPublishClient
	logger *zap.Logger
}

func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for topic %s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	receivers, err := p.client.Publish(ctx, topic, data).Result()
	if err != nil {
		return fmt.Errorf("publish to topic %s: %w", topic, err)
	}

	p.logger.Debug("published to topic",
		zap.String("topic", topic),
		zap.Int64("receivers", receivers))

	return nil
}
