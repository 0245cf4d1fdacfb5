package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttOpTimeout      = 2 * time.Second
	mqttQoS            = 0 // at-most-once
	mqttQuiesceMs      = 250
)

// ErrMQTTNotConnected is returned when the broker connection is down.
var ErrMQTTNotConnected = errors.New("mqtt: not connected")

// MQTTBus carries messages over an MQTT broker on the local host.
//
// The broker only knows one subscription per topic per client, so MQTTBus
// holds a single broker subscription per topic and fans received messages out
// to every local Subscription. Subscriptions are restored after a reconnect.
type MQTTBus struct {
	client pahomqtt.Client

	// subMu serializes broker subscribe/unsubscribe calls. mu guards the
	// topic table and is never held while waiting on the broker.
	subMu  sync.Mutex
	mu     sync.Mutex
	topics map[string]map[uint64]chan []byte // topic -> subscription id -> delivery channel
	nextID uint64
}

// NewMQTT connects to broker (for example tcp://localhost:1883) using clientID.
func NewMQTT(broker, clientID string) (*MQTTBus, error) {
	b := &MQTTBus{topics: make(map[string]map[uint64]chan []byte)}

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOnConnectHandler(func(pahomqtt.Client) {
			b.restoreSubscriptions()
		})

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: timeout after %v", broker, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}

	return b, nil
}

// Close disconnects from the broker and ends all local subscriptions.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(mqttQuiesceMs)

	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, subs := range b.topics {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.topics, topic)
	}
	return nil
}

// Ping reports whether the broker connection is currently up.
func (b *MQTTBus) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.client.IsConnectionOpen() {
		return ErrMQTTNotConnected
	}
	return nil
}

// Publish sends payload on topic with QoS 0 and no retained copy.
func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if !b.client.IsConnectionOpen() {
		return fmt.Errorf("failed to publish to %s: %w", topic, ErrMQTTNotConnected)
	}
	token := b.client.Publish(topic, mqttQoS, false, payload)
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe adds a local subscriber on topic, subscribing at the broker
// when it is the first one.
func (b *MQTTBus) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.mu.Lock()
	_, exists := b.topics[topic]
	b.mu.Unlock()

	if !exists {
		token := b.client.Subscribe(topic, mqttQoS, b.deliver)
		if err := waitToken(ctx, token); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uint64]chan []byte)
		b.topics[topic] = subs
	}
	b.nextID++
	id := b.nextID
	messages := make(chan []byte, SubscriptionBuffer)
	subs[id] = messages
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			b.remove(topic, id)
			close(done)
		})
	}

	// Context cancellation ends the subscription the same way Close does
	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-done:
		}
	}()

	return newSubscription(topic, messages, release, done), nil
}

// deliver is the broker callback. Paho invokes it from its own goroutine, so
// sends never block: a full subscriber buffer drops the message.
func (b *MQTTBus) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := msg.Payload()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.topics[msg.Topic()] {
		select {
		case ch <- payload:
		default:
			log.Printf("[Bus] Dropping message on %s: subscriber buffer full", msg.Topic())
		}
	}
}

// remove drops one local subscription and unsubscribes at the broker when
// it was the last one on the topic.
func (b *MQTTBus) remove(topic string, id uint64) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
	}
	last := len(subs) == 0
	if last {
		delete(b.topics, topic)
	}
	b.mu.Unlock()

	if last && b.client.IsConnectionOpen() {
		token := b.client.Unsubscribe(topic)
		if !token.WaitTimeout(mqttOpTimeout) || token.Error() != nil {
			log.Printf("[Bus] Failed to unsubscribe from %s: %v", topic, token.Error())
		}
	}
}

// restoreSubscriptions re-subscribes every active topic after a reconnect.
func (b *MQTTBus) restoreSubscriptions() {
	b.mu.Lock()
	topics := make([]string, 0, len(b.topics))
	for topic := range b.topics {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	for _, topic := range topics {
		token := b.client.Subscribe(topic, mqttQoS, b.deliver)
		if !token.WaitTimeout(mqttOpTimeout) || token.Error() != nil {
			log.Printf("[Bus] Failed to restore subscription to %s: %v", topic, token.Error())
		}
	}
}

// waitToken waits for a paho token, bounded by ctx and mqttOpTimeout.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	timer := time.NewTimer(mqttOpTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", mqttOpTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
