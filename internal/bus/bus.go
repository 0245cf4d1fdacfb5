// Package bus provides the best-effort publish/subscribe transport used to
// carry signboard commands and responses between processes.
//
// Delivery is at-most-once per subscriber, there is no ordering across topics
// and no retained history: a subscriber only sees messages published after its
// Subscribe call returned. Every subscriber on a topic sees every message, so
// receivers must filter on the envelope's request id.
package bus

import (
	"context"
	"errors"
	"sync"
)

// SubscriptionBuffer is the number of undelivered messages a subscription
// holds before the backend starts dropping or back-pressuring.
const SubscriptionBuffer = 16

// ErrClosed is returned when using a bus after Close.
var ErrClosed = errors.New("bus is closed")

// Bus is the transport abstraction shared by the dispatcher and the client.
type Bus interface {
	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe starts receiving messages on topic. The subscription is live
	// when Subscribe returns. Callers must Close the subscription.
	Subscribe(ctx context.Context, topic string) (*Subscription, error)

	// Ping verifies the transport is reachable.
	Ping(ctx context.Context) error

	// Close releases the transport. Open subscriptions stop delivering.
	Close() error
}

// Subscription is an active registration on one topic.
// Messages are delivered on a buffered channel that is closed once the
// subscription ends, either through Close or cancellation of the context
// passed to Subscribe.
type Subscription struct {
	topic    string
	messages <-chan []byte
	cancel   func()
	done     <-chan struct{}
	once     sync.Once
}

func newSubscription(topic string, messages <-chan []byte, cancel func(), done <-chan struct{}) *Subscription {
	return &Subscription{
		topic:    topic,
		messages: messages,
		cancel:   cancel,
		done:     done,
	}
}

// Topic returns the topic this subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Messages returns the channel of raw payloads.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Close unsubscribes and waits for the delivery goroutine to exit.
// Implements io.Closer. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
