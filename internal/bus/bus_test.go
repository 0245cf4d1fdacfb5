package bus

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receive waits for one message on sub or fails the test
func receive(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

// runBusContract exercises the behaviour every backend must share.
func runBusContract(t *testing.T, newBus func(t *testing.T) Bus) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		b := newBus(t)
		assert.NoError(t, b.Ping(ctx))
	})

	t.Run("delivers published messages", func(t *testing.T) {
		b := newBus(t)
		sub, err := b.Subscribe(ctx, "signboard:test:commands")
		require.NoError(t, err)
		defer sub.Close()

		assert.Equal(t, "signboard:test:commands", sub.Topic())

		require.NoError(t, b.Publish(ctx, "signboard:test:commands", []byte("hello")))
		assert.Equal(t, []byte("hello"), receive(t, sub))
	})

	t.Run("no retained history", func(t *testing.T) {
		b := newBus(t)
		require.NoError(t, b.Publish(ctx, "signboard:test:late", []byte("before")))

		sub, err := b.Subscribe(ctx, "signboard:test:late")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, b.Publish(ctx, "signboard:test:late", []byte("after")))
		assert.Equal(t, []byte("after"), receive(t, sub))
	})

	t.Run("broadcasts to every subscriber", func(t *testing.T) {
		b := newBus(t)
		sub1, err := b.Subscribe(ctx, "signboard:test:responses")
		require.NoError(t, err)
		defer sub1.Close()

		sub2, err := b.Subscribe(ctx, "signboard:test:responses")
		require.NoError(t, err)
		defer sub2.Close()

		require.NoError(t, b.Publish(ctx, "signboard:test:responses", []byte("both")))
		assert.Equal(t, []byte("both"), receive(t, sub1))
		assert.Equal(t, []byte("both"), receive(t, sub2))
	})

	t.Run("topics are isolated", func(t *testing.T) {
		b := newBus(t)
		sub, err := b.Subscribe(ctx, "signboard:a:commands")
		require.NoError(t, err)
		defer sub.Close()

		require.NoError(t, b.Publish(ctx, "signboard:b:commands", []byte("other")))
		require.NoError(t, b.Publish(ctx, "signboard:a:commands", []byte("mine")))
		assert.Equal(t, []byte("mine"), receive(t, sub))
	})

	t.Run("keeps publish order on one topic", func(t *testing.T) {
		b := newBus(t)
		sub, err := b.Subscribe(ctx, "signboard:test:order")
		require.NoError(t, err)
		defer sub.Close()

		for i := 0; i < 10; i++ {
			require.NoError(t, b.Publish(ctx, "signboard:test:order", []byte(strconv.Itoa(i))))
		}
		for i := 0; i < 10; i++ {
			assert.Equal(t, strconv.Itoa(i), string(receive(t, sub)))
		}
	})

	t.Run("close is idempotent and closes the channel", func(t *testing.T) {
		b := newBus(t)
		sub, err := b.Subscribe(ctx, "signboard:test:close")
		require.NoError(t, err)

		assert.NoError(t, sub.Close())
		assert.NoError(t, sub.Close())

		_, ok := <-sub.Messages()
		assert.False(t, ok, "channel should be closed")
	})

	t.Run("remaining subscriber keeps receiving", func(t *testing.T) {
		b := newBus(t)
		sub1, err := b.Subscribe(ctx, "signboard:test:keep")
		require.NoError(t, err)
		sub2, err := b.Subscribe(ctx, "signboard:test:keep")
		require.NoError(t, err)
		defer sub2.Close()

		require.NoError(t, sub1.Close())
		require.NoError(t, b.Publish(ctx, "signboard:test:keep", []byte("still here")))
		assert.Equal(t, []byte("still here"), receive(t, sub2))
	})

	t.Run("cleanup on context cancellation", func(t *testing.T) {
		b := newBus(t)
		cancelCtx, cancel := context.WithCancel(ctx)

		sub, err := b.Subscribe(cancelCtx, "signboard:test:cancel")
		require.NoError(t, err)
		defer sub.Close()

		cancel()

		select {
		case _, ok := <-sub.Messages():
			assert.False(t, ok, "channel should be closed")
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for channel close")
		}
	})
}
