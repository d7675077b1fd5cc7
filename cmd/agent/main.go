package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/config"
	"github.com/boddenberg/vende-agent-go/internal/domain"
	"github.com/boddenberg/vende-agent-go/internal/handler"
	"github.com/boddenberg/vende-agent-go/internal/infra/cache"
	"github.com/boddenberg/vende-agent-go/internal/infra/client"
	"github.com/boddenberg/vende-agent-go/internal/infra/observability"
	"github.com/boddenberg/vende-agent-go/internal/infra/resilience"
	"github.com/boddenberg/vende-agent-go/internal/infra/supabase"
	"github.com/boddenberg/vende-agent-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("completion_url", cfg.CompletionURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("completion_timeout", cfg.CompletionTimeout),
		zap.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		zap.Int("history_window", cfg.HistoryWindow),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "vende-agent")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	catalogCache := cache.New[[]domain.Product](cfg.CatalogCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
	}
	supabaseCB := resilience.NewCircuitBreaker("supabase")
	completionCB := resilience.NewCircuitBreaker("completion")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	completionHTTPClient := &http.Client{Timeout: cfg.CompletionTimeout}

	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		supabaseCB,
		resilienceCfg,
		logger,
	)

	completionClient := client.NewCompletionClient(
		completionHTTPClient,
		cfg.CompletionURL,
		cfg.CompletionAPIKey,
		completionCB,
		resilienceCfg,
	)

	// --- Services ---
	selector := service.NewSelector(supabaseClient, metrics, logger, nil)

	// Seed the strategy ledger. A failure here is not fatal: the selector
	// degrades to the default strategy until the backend recovers.
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	if err := selector.EnsureInitialized(initCtx); err != nil {
		logger.Warn("strategy ledger initialization failed", zap.Error(err))
	}
	cancelInit()

	funnelSvc := service.NewFunnelService(
		supabaseClient,
		completionClient,
		catalogCache,
		metrics,
		logger,
		cfg.HistoryWindow,
		cfg.CompletionMode,
	)

	gateway := service.NewGateway(
		supabaseClient,
		supabaseClient,
		supabaseClient,
		supabaseClient,
		supabaseClient,
		selector,
		funnelSvc,
		metrics,
		logger,
		cfg.HistoryWindow,
	)

	authSvc := service.NewAuthService(cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH not set, dashboard login unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(gateway, selector, authSvc, metrics, logger, cfg.DashboardOrigin)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
