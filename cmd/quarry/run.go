package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/api"
	"github.com/quarry-project/quarry/internal/cli"
	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/db"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/health"
	"github.com/quarry-project/quarry/internal/metrics"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/scheduler"
	"github.com/quarry-project/quarry/internal/server"
	"github.com/quarry-project/quarry/internal/telemetry"
	"github.com/quarry-project/quarry/internal/util"
)

const shutdownTimeout = 30 * time.Second

type runOptions struct {
	configPath string
	console    bool
}

func run(opts runOptions) error {
	fmt.Printf(banner, util.Version)
	fmt.Println()

	// Defaults until the config is loaded
	logCloser, err := util.InitLogger(util.DefaultLogConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logCloser.Close()
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCloser.Close()
	logCloser, err = util.InitLogger(util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to reconfigure logger: %w", err)
	}
	defer logCloser.Close()

	log.Info().
		Str("version", util.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("config", cfg.Path()).
		Msg("starting quarry")

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, run 'quarry init' or fix the errors above")
	}

	hostInfo := util.DescribeHost()
	log.Info().
		Str("hostname", hostInfo.Hostname).
		Str("platform", hostInfo.Platform).
		Str("cpu", hostInfo.CPUModel).
		Int("cores", hostInfo.CPUCores).
		Uint64("memory_mb", hostInfo.MemoryMB).
		Msg("host information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	eventBus := events.NewEventBus()
	dispatcher := server.NewDispatcher(cfg, eventBus, m)
	listener := network.NewTCPListener(cfg, dispatcher, m)

	// The console's quit command arrives as a shutdown event.
	quitCh := make(chan string, 1)
	eventBus.Subscribe(events.EventShutdown, "main", func(ctx context.Context, e events.Event) error {
		if e.Source == "main" {
			return nil
		}
		select {
		case quitCh <- e.Source:
		default:
		}
		return nil
	})

	var history *db.LoginHistory
	if cfg.Database.Enabled {
		history, err = db.NewLoginHistory(cfg.Database.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open login history, recording disabled")
			history = nil
		} else {
			history.Subscribe(eventBus)
		}
	}

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, hostInfo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		}
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, eventBus, dispatcher, registry)
		if history != nil {
			apiServer.SetLoginStore(history)
		}
	}

	healthMgr := health.NewManager(cfg, eventBus, dispatcher)

	var pruner scheduler.Pruner
	if history != nil {
		pruner = history
	}
	sched := scheduler.NewScheduler(cfg, pruner)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Cancelling ctx stops the dispatcher, which closes every connection and
	// so unblocks the readers the listener is waiting on.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("address", cfg.Address).Msg("starting game listener")
		if err := startWithRetry(ctx, "game listener", listener.Start, 5); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("game listener: %w", err)
		}
	}()

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMgr.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if opts.console {
		console := cli.NewCLI(cfg, eventBus, dispatcher, os.Stdin, os.Stdout)
		if history != nil {
			console.SetLoginStore(history)
		}
		// Not tracked by wg: a blocked stdin read must not hold up shutdown.
		go console.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var reason string
	select {
	case sig := <-sigCh:
		reason = sig.String()
		log.Info().Str("signal", reason).Msg("received shutdown signal")
	case src := <-quitCh:
		reason = src
		log.Info().Str("source", src).Msg("shutdown requested")
	case err := <-errCh:
		reason = "error"
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	eventBus.Emit(ctx, events.Event{
		Type:    events.EventShutdown,
		Source:  "main",
		Payload: events.ShutdownPayload{Reason: reason},
	})

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	eventBus.Stop()

	if history != nil {
		closeQuietly("login history", history)
	}

	log.Info().Msg("quarry stopped")
	return nil
}

// startWithRetry retries startFn on bind errors with a fixed 3 second pause,
// returning the last error once retries are exhausted.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("component", name).Msg("close failed")
	}
}
