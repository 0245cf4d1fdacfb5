package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/internal/client"
	"github.com/dyluth/signboard/internal/config"
	"github.com/dyluth/signboard/internal/dispatcher"
	"github.com/dyluth/signboard/pkg/signboard"
)

type host struct {
	cfg    *config.Config
	health string
	client *client.Client
	stop   func()
}

// startHost runs the host against miniredis with a file store in dir.
func startHost(t *testing.T, mr *miniredis.Miniredis, dir string) *host {
	cfg := &config.Config{
		Session: "hosttest",
		Bus:     config.BusConfig{Backend: config.BusRedis, RedisURL: "redis://" + mr.Addr()},
		Store:   config.StoreConfig{Backend: config.StoreFile, Path: filepath.Join(dir, "signboards.json")},
		Health:  config.HealthConfig{Addr: "127.0.0.1:0"},
	}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, func(_ *dispatcher.Dispatcher, hs *dispatcher.HealthServer) {
			ready <- hs.Addr()
		})
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatalf("host exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not become ready")
	}

	cliBus, err := bus.NewRedisFromURL(cfg.Bus.RedisURL)
	require.NoError(t, err)

	h := &host{cfg: cfg, health: addr, client: client.New(cliBus, cfg.Session)}
	var stopped bool
	h.stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		assert.NoError(t, <-errCh)
		cliBus.Close()
	}
	t.Cleanup(h.stop)
	return h
}

func TestRun_SeedsServesAndPersists(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	ctx := context.Background()

	h := startHost(t, mr, dir)

	// First launch seeds one default signboard
	resp := h.client.Send(ctx, signboard.Command{Action: signboard.ActionList})
	require.Equal(t, signboard.CodeOK, resp.Code, resp.Error)
	lines := strings.Split(resp.Output, "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], " Signboard 1"))

	resp = h.client.Send(ctx, signboard.Command{Action: signboard.ActionCreate, ID: "lobby", Text: "Welcome"})
	require.Equal(t, signboard.OK("created lobby"), resp)

	h.stop()

	// A restarted host sees the persisted snapshot and does not seed again
	h = startHost(t, mr, dir)
	resp = h.client.Send(ctx, signboard.Command{Action: signboard.ActionList})
	require.Equal(t, signboard.CodeOK, resp.Code)
	assert.Len(t, strings.Split(resp.Output, "\n"), 2)
	assert.Contains(t, resp.Output, "lobby Welcome")
}

func TestRun_HealthAndMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	h := startHost(t, mr, t.TempDir())

	res, err := http.Get("http://" + h.health + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body dispatcher.HealthResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)

	resp := h.client.Send(context.Background(), signboard.Command{Action: signboard.ActionShow})
	require.Equal(t, signboard.OK("shown"), resp)

	res, err = http.Get("http://" + h.health + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `signboard_commands_total{action="show",code="0"} 1`)
	assert.Contains(t, string(data), "signboard_signboards 1")
}

func TestRun_BusUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{
		Bus:   config.BusConfig{Backend: config.BusRedis, RedisURL: "redis://" + addr},
		Store: config.StoreConfig{Backend: config.StoreMemory},
	}
	require.NoError(t, cfg.Validate())

	err := run(context.Background(), cfg, func(*dispatcher.Dispatcher, *dispatcher.HealthServer) {
		t.Fatal("host must not start without a bus")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus not accessible")
}
