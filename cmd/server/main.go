package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/chat-orchestrator/internal/app"
	"github.com/lexiqai/chat-orchestrator/internal/config"
	"github.com/lexiqai/chat-orchestrator/internal/gateway"
	"github.com/lexiqai/chat-orchestrator/internal/observability"
)

const serviceName = "chat-orchestrator"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("model", cfg.ModelName).
		Str("transport", cfg.ModelTransport).
		Int("max_rounds", cfg.MaxRounds).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Chat orchestrator starting")

	application, err := app.Build(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to wire application")
	}
	defer application.Close()

	mux := http.NewServeMux()
	gateway.New(application.Orchestrator).Register(mux)

	mux.HandleFunc("/health", observability.HealthCheckHandler(serviceName))
	mux.HandleFunc("/ready", observability.ReadinessHandler(serviceName,
		observability.DependencyCheck{Name: "model", Check: application.Transport.HealthCheck},
	))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No write timeout: streamed turns outlive any fixed deadline
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/chat/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
