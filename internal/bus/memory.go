package bus

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// MemoryBus is a process-local bus backed by Watermill's Go channel Pub/Sub.
// It is used when the host and its clients live in one process (embedding,
// tests). Nothing is persisted: publishing to a topic without subscribers
// drops the message.
type MemoryBus struct {
	pubsub *gochannel.GoChannel
	closed atomic.Bool
}

// NewMemory creates an in-process bus. A nil logger discards Watermill's logs.
func NewMemory(logger watermill.LoggerAdapter) *MemoryBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &MemoryBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            SubscriptionBuffer,
			Persistent:                     false,
			// Publish waits for the hand-off so one topic stays in publish order
			BlockPublishUntilSubscriberAck: true,
		}, logger),
	}
}

// Close shuts down the underlying Go channel Pub/Sub.
func (b *MemoryBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.pubsub.Close()
}

// Ping reports ErrClosed once the bus has been closed.
func (b *MemoryBus) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Publish delivers payload to every current subscriber of topic and returns
// once each has taken it.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a subscriber on topic. Registration is synchronous, so
// the subscription is live on return.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := b.pubsub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	messages := make(chan []byte, SubscriptionBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(messages)

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				// Ack immediately; the Go channel Pub/Sub holds the next
				// message back until this one is acknowledged
				payload := msg.Payload
				msg.Ack()

				select {
				case messages <- payload:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return newSubscription(topic, messages, cancel, done), nil
}
