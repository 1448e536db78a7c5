package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by LLM_PROVIDER and LLM_FALLBACK_PROVIDER
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config holds all configuration for challenge-designer
type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Prompts   PromptsConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Cleanup   CleanupConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// LLMConfig holds completion service configuration
type LLMConfig struct {
	Provider         string
	FallbackProvider string

	GroqAPIKey string
	GroqModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	Timeout      time.Duration
	RetryBackoff time.Duration
}

// PromptsConfig holds prompt catalog configuration
type PromptsConfig struct {
	// Dir holds YAML overlays for the embedded catalog; empty means none
	Dir string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	// PerMinute is the request budget per client IP; 0 disables limiting
	PerMinute int
}

// RedisConfig holds Redis configuration. An empty address keeps rate
// limit counters in memory.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// CleanupConfig holds cleanup worker configuration
type CleanupConfig struct {
	Interval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// TelemetryConfig holds OpenTelemetry tracing configuration
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	SampleRatio float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			RequestTimeout: getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", ProviderGroq)),
			FallbackProvider: strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", ProviderNone)),
			GroqAPIKey:       getEnv("GROQ_API_KEY", ""),
			GroqModel:        getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Timeout:          getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
			RetryBackoff:     getEnvAsDuration("LLM_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Prompts: PromptsConfig{
			Dir: getEnv("PROMPTS_DIR", ""),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "challenge-designer"),
			Environment: getEnv("OTEL_ENVIRONMENT", "development"),
			Version:     getEnv("OTEL_SERVICE_VERSION", ""),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			Headers:     parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", "")),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !validProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown LLM provider: %q", c.LLM.Provider)
	}
	if !validProvider(c.LLM.FallbackProvider) {
		return fmt.Errorf("unknown LLM fallback provider: %q", c.LLM.FallbackProvider)
	}
	if c.LLM.FallbackProvider != ProviderNone && c.LLM.FallbackProvider == c.LLM.Provider {
		return fmt.Errorf("LLM fallback provider must differ from primary: %q", c.LLM.Provider)
	}

	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive: %s", c.LLM.Timeout)
	}
	if c.LLM.RetryBackoff < 0 {
		return fmt.Errorf("LLM retry backoff must not be negative: %s", c.LLM.RetryBackoff)
	}

	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.RateLimit.PerMinute)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("OTEL sampler ratio must be within [0,1]: %v", c.Telemetry.SampleRatio)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps LOG_LEVEL onto a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func validProvider(name string) bool {
	switch name {
	case ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderNone:
		return true
	}
	return false
}

// parseHeaders reads "k1=v1,k2=v2" into a map, skipping malformed pairs
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
