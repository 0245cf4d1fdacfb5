// Package dispatcher executes signboard commands received over the bus.
//
// A Dispatcher runs one loop that owns every registry mutation: remote
// commands from the command topic and local mutations submitted through
// Exec are applied one at a time, in arrival order, so there is never more
// than one writer.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/internal/registry"
	"github.com/dyluth/signboard/pkg/signboard"
)

// ErrNotRunning is returned by Exec once the loop has stopped.
var ErrNotRunning = errors.New("dispatcher is not running")

// Observer is called on the dispatcher loop after each command has been
// executed and before its response is published. It must not block.
type Observer func(cmd signboard.Command, resp signboard.Response)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records command metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithObserver registers fn to be told about every executed command, so a
// UI can redraw after remote changes.
func WithObserver(fn Observer) Option {
	return func(d *Dispatcher) { d.observer = fn }
}

type execRequest struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Dispatcher subscribes to a session's command topic and answers on its
// response topic.
type Dispatcher struct {
	bus      bus.Bus
	registry *registry.Registry
	session  string
	metrics  *Metrics
	observer Observer

	execCh    chan execRequest
	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
	stopOnce  sync.Once
}

// New creates a dispatcher for session. Call Run to start it.
func New(b bus.Bus, reg *registry.Registry, session string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:      b,
		registry: reg,
		session:  session,
		execCh:   make(chan execRequest),
		ready:    make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ready is closed once the command subscription is live.
func (d *Dispatcher) Ready() <-chan struct{} {
	return d.ready
}

// Run subscribes to the command topic and processes commands until ctx is
// cancelled or the subscription ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.stopOnce.Do(func() { close(d.stopped) })

	topic := signboard.CommandTopic(d.session)
	subscription, err := d.bus.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	defer subscription.Close()

	d.metrics.setSignboards(d.registry.Len())
	d.readyOnce.Do(func() { close(d.ready) })
	log.Printf("[Dispatcher] Listening on %s", subscription.Topic())

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Dispatcher] Shutting down...")
			return nil

		case payload, ok := <-subscription.Messages():
			if !ok {
				log.Printf("[Dispatcher] Subscription closed")
				return nil
			}
			d.handleMessage(ctx, payload)

		case req := <-d.execCh:
			err := req.fn(ctx)
			d.metrics.setSignboards(d.registry.Len())
			req.done <- err
		}
	}
}

// Exec runs fn on the dispatcher loop, serialized with remote commands, and
// returns its error. UI code uses it for local edits such as dragging or
// changing opacity.
func (d *Dispatcher) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	req := execRequest{fn: fn, done: make(chan error, 1)}

	select {
	case d.execCh <- req:
	case <-d.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted, fn runs to completion on the loop
	return <-req.done
}

// handleMessage decodes one envelope, executes it and publishes the reply.
func (d *Dispatcher) handleMessage(ctx context.Context, payload []byte) {
	requestID, cmd, err := signboard.DecodeCommand(payload)
	if err != nil {
		d.metrics.decodeFailed()
		if requestID == "" {
			d.logEvent("command_dropped", map[string]interface{}{
				"error": err.Error(),
				"bytes": len(payload),
			})
			return
		}
		d.logEvent("command_rejected", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		d.respond(ctx, requestID, signboard.Failure(signboard.CodeFailure, signboard.MsgUnknownCommand))
		return
	}

	resp := d.Handle(ctx, cmd)

	d.logEvent("command_handled", map[string]interface{}{
		"request_id": requestID,
		"action":     string(cmd.Action),
		"id":         cmd.ID,
		"code":       resp.Code,
	})
	d.respond(ctx, requestID, resp)
}

// Handle validates and executes cmd against the registry. It must be called
// from the dispatcher loop, or when no loop is running.
func (d *Dispatcher) Handle(ctx context.Context, cmd signboard.Command) signboard.Response {
	start := time.Now()
	cmd = cmd.Normalize()

	var resp signboard.Response
	if err := cmd.Validate(); err != nil {
		resp = signboard.ResponseFor(err)
	} else {
		resp = d.execute(ctx, cmd)
	}

	d.metrics.observeCommand(cmd.Action, resp.Code, time.Since(start))
	d.metrics.setSignboards(d.registry.Len())
	if d.observer != nil {
		d.observer(cmd, resp)
	}
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, cmd signboard.Command) signboard.Response {
	switch cmd.Action {
	case signboard.ActionCreate:
		item, created, err := d.registry.Create(ctx, cmd.ID, cmd.Text)
		if err != nil {
			return signboard.ResponseFor(err)
		}
		if created {
			return signboard.OK("created " + item.ID)
		}
		return signboard.OK("updated " + item.ID)

	case signboard.ActionUpdate:
		item, err := d.registry.Update(ctx, cmd.ID, cmd.Text)
		if err != nil {
			return signboard.ResponseFor(err)
		}
		return signboard.OK("updated " + item.ID)

	case signboard.ActionDelete:
		if cmd.All {
			n, err := d.registry.DeleteAll(ctx)
			if err != nil {
				return signboard.ResponseFor(err)
			}
			return signboard.OK("deleted-all " + strconv.Itoa(n))
		}
		if err := d.registry.Delete(ctx, cmd.ID); err != nil {
			return signboard.ResponseFor(err)
		}
		return signboard.OK("deleted " + cmd.ID)

	case signboard.ActionHide:
		d.registry.SetVisible(false)
		return signboard.OK("hidden")

	case signboard.ActionShow:
		d.registry.SetVisible(true)
		return signboard.OK("shown")

	case signboard.ActionList:
		return signboard.OK(strings.Join(d.registry.List(), "\n"))

	default:
		return signboard.ResponseFor(signboard.ErrUnknownCommand)
	}
}

func (d *Dispatcher) respond(ctx context.Context, requestID string, resp signboard.Response) {
	payload, err := signboard.EncodeResponse(requestID, resp)
	if err != nil {
		log.Printf("[Dispatcher] Failed to encode response for %s: %v", requestID, err)
		return
	}
	if err := d.bus.Publish(ctx, signboard.ResponseTopic(d.session), payload); err != nil {
		log.Printf("[Dispatcher] Failed to publish response for %s: %v", requestID, err)
	}
}

// logEvent logs a structured JSON event.
func (d *Dispatcher) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "dispatcher"
	data["event_type"] = eventType
	data["session"] = d.session

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Dispatcher] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
