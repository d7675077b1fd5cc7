package config

import (
	"os"
	"strconv"
	"time"

	"github.com/boddenberg/vende-agent-go/internal/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Completion service (the external LLM)
	CompletionURL    string
	CompletionAPIKey string
	CompletionMode   string // "json" or "text"

	// HTTP client
	HTTPTimeout time.Duration

	// Completion calls are slow; they get their own, longer timeout.
	CompletionTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Cache
	CatalogCacheTTL time.Duration

	// Conversation
	HistoryWindow int // turns included in model prompts

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Dashboard auth
	AdminPasswordHash string // bcrypt hash of the admin password
	JWTSecret         string
	JWTAccessTTL      time.Duration

	// CORS
	DashboardOrigin string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CompletionURL:    getEnv("COMPLETION_API_URL", "http://localhost:8090"),
		CompletionAPIKey: getEnv("COMPLETION_API_KEY", ""),
		CompletionMode:   getEnv("COMPLETION_MODE", "json"),

		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		CatalogCacheTTL: getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		HistoryWindow: getEnvInt("HISTORY_WINDOW", 6),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		JWTSecret:         getEnv("JWT_SECRET", "vende-default-dev-secret-change-me"),
		JWTAccessTTL:      getEnvDuration("JWT_ACCESS_TTL", 1*time.Hour),

		DashboardOrigin: getEnv("DASHBOARD_ORIGIN", "*"),
	}
}

// Validate checks the settings the service cannot run without.
// A missing completion credential is fatal: running without it would
// silently degrade every model-assisted reply to the fallback text.
func (c *Config) Validate() error {
	if c.CompletionAPIKey == "" {
		return &domain.ErrConfig{Key: "COMPLETION_API_KEY", Reason: "completion service credential is required"}
	}
	if c.SupabaseURL == "" {
		return &domain.ErrConfig{Key: "SUPABASE_URL", Reason: "data backend URL is required"}
	}
	if c.CompletionMode != "json" && c.CompletionMode != "text" {
		return &domain.ErrConfig{Key: "COMPLETION_MODE", Reason: "must be \"json\" or \"text\""}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
