package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/challenge-designer/internal/api"
	"github.com/terra-clan/challenge-designer/internal/cleanup"
	"github.com/terra-clan/challenge-designer/internal/config"
	"github.com/terra-clan/challenge-designer/internal/llm"
	"github.com/terra-clan/challenge-designer/internal/observability"
	"github.com/terra-clan/challenge-designer/internal/pipeline"
	"github.com/terra-clan/challenge-designer/internal/prompts"
	"github.com/terra-clan/challenge-designer/internal/ratelimit"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting challenge-designer",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"provider", cfg.LLM.Provider,
		"fallback_provider", cfg.LLM.FallbackProvider,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	shutdownTracing := observability.InitTracing(initCtx, cfg.Telemetry)

	// Load prompt catalog
	loader, err := prompts.NewLoader()
	if err != nil {
		slog.Error("failed to load embedded prompt catalog", "error", err)
		os.Exit(1)
	}
	if cfg.Prompts.Dir != "" {
		if err := loader.LoadFromDir(cfg.Prompts.Dir); err != nil {
			slog.Warn("failed to load prompts from dir", "dir", cfg.Prompts.Dir, "error", err)
		}
	}

	// Register completion providers
	registry := buildRegistry(initCtx, cfg.LLM)
	gateway := llm.NewGateway(llm.GatewayConfig{
		Timeout:      cfg.LLM.Timeout,
		RetryBackoff: cfg.LLM.RetryBackoff,
	}, registry.Get(cfg.LLM.Provider), registry.Get(cfg.LLM.FallbackProvider))

	if len(gateway.Providers()) == 0 {
		slog.Warn("no completion provider configured, every stage will use its fallback")
	}

	orchestrator := pipeline.New(gateway, prompts.NewBuilder(loader))

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []api.Option{
		api.WithProviders(gateway.Providers()),
		api.WithReadinessCheck("llm", registry.Ready),
	}

	// Setup rate limiting
	var redisLimiter *ratelimit.RedisLimiter
	switch {
	case cfg.RateLimit.PerMinute == 0:
		slog.Info("rate limiting disabled")
	case cfg.Redis.Address != "":
		redisLimiter, err = ratelimit.NewRedisLimiter(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.RateLimit.PerMinute, time.Minute)
		if err != nil {
			slog.Error("failed to connect to redis", "address", cfg.Redis.Address, "error", err)
			os.Exit(1)
		}
		slog.Info("redis connected successfully", "address", cfg.Redis.Address)
		opts = append(opts,
			api.WithLimiter(redisLimiter),
			api.WithReadinessCheck("redis", redisLimiter.HealthCheck),
		)
	default:
		memoryLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.PerMinute, time.Minute)
		opts = append(opts, api.WithLimiter(memoryLimiter))

		// Start cleanup worker for expired windows
		cleaner := cleanup.NewCleaner(memoryLimiter, cfg.Cleanup.Interval)
		cleaner.Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, orchestrator, opts...)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if redisLimiter != nil {
		if err := redisLimiter.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracer shutdown error", "error", err)
	}

	slog.Info("challenge-designer stopped")
}

// buildRegistry registers every provider that has credentials. Providers
// without an API key are skipped so the service still starts and answers
// from its fallbacks.
func buildRegistry(ctx context.Context, cfg config.LLMConfig) *llm.Registry {
	registry := llm.NewRegistry()

	for _, name := range []string{cfg.Provider, cfg.FallbackProvider} {
		if name == config.ProviderNone || registry.Get(name) != nil {
			continue
		}
		provider, err := newProvider(ctx, name, cfg)
		if err != nil {
			slog.Warn("completion provider unavailable", "provider", name, "error", err)
			continue
		}
		registry.Register(name, provider)
		slog.Info("completion provider registered", "provider", name)
	}

	return registry
}

func newProvider(ctx context.Context, name string, cfg config.LLMConfig) (llm.Provider, error) {
	switch name {
	case config.ProviderGroq:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			Name:    config.ProviderGroq,
			BaseURL: llm.GroqBaseURL,
			APIKey:  cfg.GroqAPIKey,
			Model:   cfg.GroqModel,
		})
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			Name:    config.ProviderOpenAI,
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
		})
	case config.ProviderGemini:
		return llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
