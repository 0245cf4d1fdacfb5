// Package client sends one signboard command and waits for its response.
package client

import (
	"context"
	"time"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/pkg/signboard"
)

// Timeout bounds the wait for a matching response.
const Timeout = 2 * time.Second

// Client issues commands on a session's command topic.
// It is safe for concurrent use; every Send has its own subscription.
type Client struct {
	bus     bus.Bus
	session string
	timeout time.Duration
}

// New creates a client for session on b.
func New(b bus.Bus, session string) *Client {
	return &Client{bus: b, session: session, timeout: Timeout}
}

// Send publishes cmd and returns the first response carrying its request id.
//
// Responses for other requests and undecodable messages are ignored. If no
// match arrives within Timeout, or the bus fails, or ctx ends first, Send
// returns a failure with signboard.CodeUnreachable. The response
// subscription is released before Send returns.
func (c *Client) Send(ctx context.Context, cmd signboard.Command) signboard.Response {
	requestID := signboard.NewRequestID()

	payload, err := signboard.EncodeCommand(requestID, cmd)
	if err != nil {
		return signboard.ResponseFor(err)
	}

	// Subscribe before publishing so the response cannot be missed
	subscription, err := c.bus.Subscribe(ctx, signboard.ResponseTopic(c.session))
	if err != nil {
		return unreachable(err)
	}
	defer subscription.Close()

	if err := c.bus.Publish(ctx, signboard.CommandTopic(c.session), payload); err != nil {
		return unreachable(err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return unreachable(nil)

		case <-ctx.Done():
			return unreachable(ctx.Err())

		case msg, ok := <-subscription.Messages():
			if !ok {
				return unreachable(bus.ErrClosed)
			}
			id, resp, err := signboard.DecodeResponse(msg)
			if err != nil || id != requestID {
				continue
			}
			return resp
		}
	}
}

func unreachable(cause error) signboard.Response {
	return signboard.ResponseFor(&signboard.UnreachableError{Cause: cause})
}
