package chat

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "chat:room:"

// RedisBus fans events out through Redis pub/sub. Every process
// pattern-subscribes to all chat rooms and filters locally.
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, room string, payload []byte) error {
	return b.client.Publish(ctx, redisChannelPrefix+room, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handle func(payload []byte)) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle([]byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()

	b.logger.Info("chat bus subscribed", zap.String("backend", "redis"))
	return nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}
