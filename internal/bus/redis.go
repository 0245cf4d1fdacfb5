package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBus carries messages over Redis Pub/Sub.
// It is intended for a Redis server on the loopback interface; Pub/Sub gives
// exactly the broadcast, at-most-once, no-history semantics the bus promises.
// The bus is thread-safe and can be used concurrently from multiple goroutines.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedis creates a bus on a new Redis client built from redisOpts.
func NewRedis(redisOpts *redis.Options) *RedisBus {
	return &RedisBus{rdb: redis.NewClient(redisOpts)}
}

// NewRedisFromURL parses a redis:// URL and creates a bus for it.
func NewRedisFromURL(url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedis(opts), nil
}

// Close closes the Redis connection. Implements io.Closer.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

// Ping verifies Redis connectivity.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Publish sends payload on the Redis channel named topic.
// Publishing to a channel nobody listens on is not an error.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe subscribes to the Redis channel named topic.
// It waits for the server's subscription confirmation before returning, so
// anything published afterwards reaches this subscriber.
//
// Messages are forwarded on a buffered channel. If the reader falls behind,
// Redis may drop messages (at-most-once delivery).
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, topic)

	// First reply is the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	messages := make(chan []byte, SubscriptionBuffer)
	done := make(chan struct{})
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(done)
		defer close(messages)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				select {
				case messages <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return newSubscription(topic, messages, cancel, done), nil
}
