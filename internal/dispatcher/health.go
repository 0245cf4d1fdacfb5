package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dyluth/signboard/internal/bus"
)

// HealthServer provides HTTP health and metrics endpoints for the host.
type HealthServer struct {
	addr     string
	bus      bus.Bus
	gatherer prometheus.Gatherer
	server   *http.Server
	listener net.Listener
}

// NewHealthServer creates a health server for addr. A nil gatherer leaves
// /metrics unregistered.
func NewHealthServer(addr string, b bus.Bus, gatherer prometheus.Gatherer) *HealthServer {
	return &HealthServer{
		addr:     addr,
		bus:      b,
		gatherer: gatherer,
	}
}

// Start binds the listener and serves in the background.
// An empty address disables the server.
func (h *HealthServer) Start() error {
	if h.addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = listener

	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	log.Printf("[Health] Listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, or "" when the server is not running.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Shutdown gracefully shuts down the server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the bus is reachable, 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Bus: "connected"}
	status := http.StatusOK

	if err := h.bus.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Bus = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Bus    string `json:"bus,omitempty"`
	Error  string `json:"error,omitempty"`
}
