package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dyluth/signboard/internal/bus"
	"github.com/dyluth/signboard/internal/config"
	"github.com/dyluth/signboard/internal/dispatcher"
	"github.com/dyluth/signboard/internal/registry"
	"github.com/dyluth/signboard/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("SIGNBOARD_CONFIG"), "Path to the signboard config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Signboard host error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Signboard host stopped")
}

// run wires the host for cfg and blocks until ctx is cancelled. started, when
// set, is called once the dispatcher is accepting commands.
func run(ctx context.Context, cfg *config.Config, started func(*dispatcher.Dispatcher, *dispatcher.HealthServer)) error {
	st, err := store.Open(cfg.Store, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	reg := registry.New(st, registry.DefaultsFrom(cfg))
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("failed to load signboards: %w", err)
	}

	b, err := bus.Open(cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to connect to %s bus: %w", cfg.Bus.Backend, err)
	}
	defer b.Close()

	if err := b.Ping(ctx); err != nil {
		return fmt.Errorf("bus not accessible: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := dispatcher.NewMetrics(promReg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	health := dispatcher.NewHealthServer(cfg.Health.Addr, b, promReg)
	if err := health.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := health.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Host] Health server shutdown failed: %v", err)
		}
	}()

	d := dispatcher.New(b, reg, cfg.Session, dispatcher.WithMetrics(metrics))

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()

	select {
	case <-d.Ready():
		log.Printf("[Host] Session '%s' ready with %d signboards (bus: %s, store: %s)",
			cfg.Session, reg.Len(), cfg.Bus.Backend, cfg.Store.Backend)
		if started != nil {
			started(d, health)
		}
	case err := <-errCh:
		return err
	}

	return <-errCh
}
