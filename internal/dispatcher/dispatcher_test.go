package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/internal/client"
	"github.com/dyluth/signboard/internal/registry"
	"github.com/dyluth/signboard/internal/store"
	"github.com/dyluth/signboard/pkg/signboard"
)

const session = "test"

type harness struct {
	bus      *bus.MemoryBus
	store    *store.MemoryStore
	registry *registry.Registry
	disp     *Dispatcher
	metrics  *Metrics
	promReg  *prometheus.Registry
	client   *client.Client
}

// setupHarness starts a dispatcher on an in-memory bus and an initialized,
// empty in-memory store.
func setupHarness(t *testing.T, opts ...Option) *harness {
	ctx, cancel := context.WithCancel(context.Background())

	b := bus.NewMemory(nil)
	st := store.NewMemory()
	require.NoError(t, st.Save(ctx, nil))

	reg := registry.New(st, registry.Defaults{})
	require.NoError(t, reg.Load(ctx))

	promReg := prometheus.NewRegistry()
	metrics, err := NewMetrics(promReg)
	require.NoError(t, err)

	d := New(b, reg, session, append([]Option{WithMetrics(metrics)}, opts...)...)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		<-errCh
		b.Close()
	})

	return &harness{
		bus:      b,
		store:    st,
		registry: reg,
		disp:     d,
		metrics:  metrics,
		promReg:  promReg,
		client:   client.New(b, session),
	}
}

func (h *harness) send(cmd signboard.Command) signboard.Response {
	return h.client.Send(context.Background(), cmd)
}

func TestWorkedExample(t *testing.T) {
	h := setupHarness(t)

	resp := h.send(signboard.Command{Action: signboard.ActionCreate, Text: "Room 4"})
	require.Equal(t, signboard.CodeOK, resp.Code)
	require.True(t, strings.HasPrefix(resp.Output, "created "))
	id := strings.TrimPrefix(resp.Output, "created ")
	assert.Len(t, id, signboard.ShortIDLength)

	persisted := h.store.Load(context.Background())
	require.Len(t, persisted, 1)
	assert.Equal(t, id, persisted[0].ID)
	assert.Equal(t, "Room 4", persisted[0].Text)

	resp = h.send(signboard.Command{Action: signboard.ActionDelete, ID: id})
	assert.Equal(t, signboard.OK("deleted "+id), resp)
	assert.Empty(t, h.store.Load(context.Background()))

	resp = h.send(signboard.Command{Action: signboard.ActionDelete, ID: "zz"})
	assert.Equal(t, signboard.Failure(signboard.CodeNotFound, "Unknown id: zz"), resp)
}

func TestCommands(t *testing.T) {
	h := setupHarness(t)

	tests := []struct {
		name string
		cmd  signboard.Command
		want signboard.Response
	}{
		{"create with id", signboard.Command{Action: signboard.ActionCreate, ID: " lobby ", Text: "Lobby"}, signboard.OK("created lobby")},
		{"create existing id updates", signboard.Command{Action: signboard.ActionCreate, ID: "lobby", Text: "Main\nlobby"}, signboard.OK("updated lobby")},
		{"create second", signboard.Command{Action: signboard.ActionCreate, ID: "desk", Text: "Desk"}, signboard.OK("created desk")},
		{"update", signboard.Command{Action: signboard.ActionUpdate, ID: "desk", Text: "Front desk"}, signboard.OK("updated desk")},
		{"list", signboard.Command{Action: signboard.ActionList}, signboard.OK("lobby Main lobby\ndesk Front desk")},
		{"hide", signboard.Command{Action: signboard.ActionHide}, signboard.OK("hidden")},
		{"show", signboard.Command{Action: signboard.ActionShow}, signboard.OK("shown")},
		{"create without text", signboard.Command{Action: signboard.ActionCreate}, signboard.Failure(signboard.CodeFailure, signboard.MsgTextRequired)},
		{"update without id", signboard.Command{Action: signboard.ActionUpdate, Text: "x"}, signboard.Failure(signboard.CodeFailure, signboard.MsgIDRequired)},
		{"update without text", signboard.Command{Action: signboard.ActionUpdate, ID: "desk"}, signboard.Failure(signboard.CodeFailure, signboard.MsgTextRequired)},
		{"update unknown", signboard.Command{Action: signboard.ActionUpdate, ID: "zz", Text: "x"}, signboard.Failure(signboard.CodeNotFound, "Unknown id: zz")},
		{"delete without id", signboard.Command{Action: signboard.ActionDelete}, signboard.Failure(signboard.CodeFailure, signboard.MsgIDRequired)},
		{"unknown action", signboard.Command{Action: "explode"}, signboard.Failure(signboard.CodeFailure, signboard.MsgUnknownCommand)},
		{"delete all", signboard.Command{Action: signboard.ActionDelete, All: true, ID: "ignored"}, signboard.OK("deleted-all 2")},
		{"list empty", signboard.Command{Action: signboard.ActionList}, signboard.OK("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.send(tt.cmd))
		})
	}
}

func TestVisibilityCommands(t *testing.T) {
	h := setupHarness(t)

	h.send(signboard.Command{Action: signboard.ActionHide})
	assert.False(t, h.registry.Visible())
	h.send(signboard.Command{Action: signboard.ActionShow})
	assert.True(t, h.registry.Visible())
}

func TestUpdateUnknownLeavesCollectionUnchanged(t *testing.T) {
	h := setupHarness(t)
	h.send(signboard.Command{Action: signboard.ActionCreate, ID: "a", Text: "keep"})
	before := h.registry.All()
	saves := h.store.Saves()

	resp := h.send(signboard.Command{Action: signboard.ActionUpdate, ID: "missing", Text: "x"})
	assert.Equal(t, signboard.CodeNotFound, resp.Code)
	assert.Equal(t, before, h.registry.All())
	assert.Equal(t, saves, h.store.Saves())
}

func TestMalformedEnvelopes(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	responses, err := h.bus.Subscribe(ctx, signboard.ResponseTopic(session))
	require.NoError(t, err)
	defer responses.Close()

	publish := func(raw string) {
		require.NoError(t, h.bus.Publish(ctx, signboard.CommandTopic(session), []byte(raw)))
	}

	// Unreadable: no request id can be recovered, so nothing is published
	publish("garbage")
	publish(`{"v":1,"command":{"action":"list"}}`)
	// Recoverable id with a bad version gets a generic failure
	publish(`{"v":9,"request_id":"r1","command":{"action":"list"}}`)

	select {
	case payload := <-responses.Messages():
		requestID, resp, err := signboard.DecodeResponse(payload)
		require.NoError(t, err)
		assert.Equal(t, "r1", requestID)
		assert.Equal(t, signboard.Failure(signboard.CodeFailure, signboard.MsgUnknownCommand), resp)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for failure response")
	}

	select {
	case payload := <-responses.Messages():
		t.Fatalf("unexpected response: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.decodeFailures))
}

func TestMetrics(t *testing.T) {
	h := setupHarness(t)

	h.send(signboard.Command{Action: signboard.ActionCreate, Text: "one"})
	h.send(signboard.Command{Action: signboard.ActionCreate, Text: "two"})
	h.send(signboard.Command{Action: signboard.ActionUpdate, ID: "zz", Text: "x"})
	h.send(signboard.Command{Action: "explode"})

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.commands.WithLabelValues("create", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.commands.WithLabelValues("update", "2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.commands.WithLabelValues("unknown", "1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.signboards))
	assert.Equal(t, 3, testutil.CollectAndCount(h.metrics.duration))
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	promReg := prometheus.NewRegistry()
	first, err := NewMetrics(promReg)
	require.NoError(t, err)
	second, err := NewMetrics(promReg)
	require.NoError(t, err)

	second.setSignboards(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(first.signboards))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeCommand(signboard.ActionList, 0, time.Millisecond)
		m.setSignboards(1)
		m.decodeFailed()
	})
}

func TestExec(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	err := h.disp.Exec(ctx, func(ctx context.Context) error {
		_, err := h.registry.CreateDefault(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.registry.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.signboards))

	boom := errors.New("boom")
	assert.ErrorIs(t, h.disp.Exec(ctx, func(context.Context) error { return boom }), boom)
}

func TestExec_InterleavesWithRemoteCommands(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			h.send(signboard.Command{Action: signboard.ActionCreate, Text: "remote"})
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, h.disp.Exec(ctx, func(ctx context.Context) error {
			_, err := h.registry.SetOpacity(ctx, "", 0.8)
			if errors.Is(err, registry.ErrNoTarget) {
				return nil
			}
			return err
		}))
	}
	<-done

	assert.Equal(t, 20, h.registry.Len())
	assert.Equal(t, h.registry.All(), h.store.Load(ctx))
}

func TestExec_AfterStop(t *testing.T) {
	b := bus.NewMemory(nil)
	defer b.Close()
	reg := registry.New(store.NewMemory(), registry.Defaults{})
	d := New(b, reg, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	err := d.Exec(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRun_SubscribeFailure(t *testing.T) {
	b := bus.NewMemory(nil)
	require.NoError(t, b.Close())
	d := New(b, registry.New(store.NewMemory(), registry.Defaults{}), session)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}

func TestObserver(t *testing.T) {
	seen := make(chan signboard.Response, 1)
	h := setupHarness(t, WithObserver(func(cmd signboard.Command, resp signboard.Response) {
		seen <- resp
	}))

	h.send(signboard.Command{Action: signboard.ActionHide})
	select {
	case resp := <-seen:
		assert.Equal(t, signboard.OK("hidden"), resp)
	case <-time.After(time.Second):
		t.Fatal("observer not called")
	}
}

func TestHandle_PersistFailureIsGenericFailure(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemory()}
	require.NoError(t, st.MemoryStore.Save(context.Background(), nil))
	reg := registry.New(st, registry.Defaults{})
	require.NoError(t, reg.Load(context.Background()))

	d := New(bus.NewMemory(nil), reg, session)
	resp := d.Handle(context.Background(), signboard.Command{Action: signboard.ActionCreate, Text: "x"})
	assert.Equal(t, signboard.CodeFailure, resp.Code)
	assert.Contains(t, resp.Error, "failed to persist")
	assert.Equal(t, 0, reg.Len())
}

type failingStore struct {
	*store.MemoryStore
}

func (s *failingStore) Save(context.Context, []signboard.Signboard) error {
	return errors.New("read-only filesystem")
}
