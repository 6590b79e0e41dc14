package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"quickbite/internal/config"
	"quickbite/internal/domain"
)

// PushSender publishes notifications to Redis pub/sub topics. The recipient
// string is the topic name (orders:<id>, kitchen:<restaurant>, ...); the
// polling/streaming UI layers subscribe on their side.
type PushSender struct {
	client *redis.Client
}

func NewPushSender(cfg config.RedisConfig) (*PushSender, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &PushSender{client: client}, nil
}

func (s *PushSender) Send(ctx context.Context, _ domain.ChannelKind, recipient string, payload []byte) error {
	if err := s.client.Publish(ctx, recipient, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", recipient, err)
	}
	return nil
}

func (s *PushSender) Close() error { return s.client.Close() }
