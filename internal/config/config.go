package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	SessionTTL         time.Duration
	SessionHistory     int
	SessionLockTTL     time.Duration
	RateLimitPerMinute int
	MaxBodyBytes       int64
	RunMigrations      bool
	QueueConcurrency   int
	WorkerMetricsAddr  string
	Obs                ObsConfig
}

// ObsConfig groups logging, metrics and tracing settings.
type ObsConfig struct {
	LogFormat         string
	LogLevel          string
	MetricsNamespace  string
	MetricsBucketsMS  string
	EnablePrometheus  bool
	EnableTracing     bool
	OTLPEndpoint      string
	ServiceName       string
	TracingSampleRate float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		SessionTTL:         parseDuration(k.String("SESSION_TTL"), "720h"),
		SessionHistory:     parseInt(k.String("SESSION_HISTORY_LIMIT"), 20),
		SessionLockTTL:     parseDuration(k.String("SESSION_LOCK_TTL"), "5s"),
		RateLimitPerMinute: parseInt(k.String("RATE_LIMIT_PER_MINUTE"), 120),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 64<<10)),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS"), false),
		QueueConcurrency:   parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		WorkerMetricsAddr:  valueOrDefault(k.String("WORKER_METRICS_ADDR"), ":9091"),
		Obs: ObsConfig{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "canasta"),
			MetricsBucketsMS:  k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus:  parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:     parseBool(k.String("OBS_ENABLE_TRACING"), false),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			ServiceName:       valueOrDefault(k.String("OBS_SERVICE_NAME"), "canasta-api"),
			TracingSampleRate: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SessionHistory <= 0 {
		return nil, errors.New("SESSION_HISTORY_LIMIT must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RemoteSyncEnabled reports whether a Postgres database is configured.
func (c *Config) RemoteSyncEnabled() bool {
	return c.DatabaseURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
