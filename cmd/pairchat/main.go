package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/internal"
	"pairchat/moderation"
	"pairchat/observability"
	"pairchat/runtime"
	"pairchat/runtime/workers"
	"pairchat/services"
	"pairchat/transport/websocket"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pairchat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run builds every component, serves until a signal or a fatal error, then
// stops in reverse order so deferred cleanup always runs.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Core state
	filter, err := moderation.NewFilter(config.Words(), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("censor filter: %w", err)
	}
	registry := runtime.NewRegistry(logger, runtime.RegistryConfig{TombstoneTTL: config.TombstoneTTL})
	store := runtime.NewConversationStore(logger, runtime.StoreConfig{
		DedupWindow: config.DedupWindow,
		Filter:      filter,
	})

	// 3. Observability
	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry, observability.Sources{
		Sessions:      func() float64 { return float64(registry.Len()) },
		Conversations: func() float64 { return float64(store.Stats().Conversations) },
		Messages:      func() float64 { return float64(store.Stats().Messages) },
	})
	monitoring := observability.NewMonitoringManager(config.AppEnv, func() observability.CoreStats {
		stats := store.Stats()
		return observability.CoreStats{
			Sessions:      registry.Len(),
			Tombstones:    registry.Tombstones(),
			Conversations: stats.Conversations,
			Messages:      stats.Messages,
			Censored:      stats.Censored,
		}
	})

	// 4. Engine
	router := runtime.NewRouter(logger, registry, metrics)
	handler := services.NewSessionHandler(logger, registry, store, router, metrics, services.Config{
		RateLimitPerSecond: config.RateLimitPerSecond,
		RateLimitBurst:     config.RateLimitBurst,
	})

	// 5. Background workers
	supervisor := workers.NewSupervisor(logger, workers.SupervisorConfig{
		RestartInterval:    config.RestartInterval,
		MaxRestartInterval: config.MaxRestartInterval,
		Observer:           metrics,
	})
	supervisor.Add(
		workers.NewLivenessMonitor(logger, registry, handler, config.HeartbeatInterval),
		workers.NewProcessSampler(logger, monitoring, config.StatsInterval),
	)

	// 6. Transport
	wsServer := websocket.NewServer(logger, handler, websocket.ServerConfig{
		HeartbeatInterval: config.HeartbeatInterval,
		WriteTimeout:      config.WriteTimeout,
		MaxPayloadBytes:   config.MaxPayloadBytes,
	})
	httpServer := &http.Server{
		Addr: config.Address(),
		Handler: websocket.NewRouter(logger, wsServer, websocket.RoutesConfig{
			WSPath:  config.WSPath,
			Mode:    config.AppEnv,
			Metrics: metrics.Handler(),
			Stats:   monitoring.GetLatest,
		}),
		ReadHeaderTimeout: config.WriteTimeout,
	}

	// 7. Lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	supervisorDone := make(chan struct{})

	go func() {
		defer close(supervisorDone)
		logger.Info("Starting workers")
		supervisor.Run(ctx)
	}()

	go func() {
		logger.Info("Starting websocket server",
			"address", config.Address(), "path", config.WSPath, "mode", config.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 8. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	handler.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	supervisor.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}
