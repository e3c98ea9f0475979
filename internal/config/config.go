// Package config loads application configuration from the environment,
// with optional .env overrides for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session backend names accepted in SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds every runtime setting of the app.
type Config struct {
	Port        int
	Environment string
	LogLevel    string

	// SMART / FHIR
	FHIRBaseURL string
	AppID       string
	RedirectURI string
	Scopes      []string

	// Sessions
	SessionBackend string
	SessionSecret  string
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	DatabaseURL    string

	// Audit
	KafkaBrokers []string

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           envInt("PORT", 8080),
		Environment:    envString("ENVIRONMENT", "development"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		FHIRBaseURL:    envString("FHIR_BASE_URL", "https://launch.smarthealthit.org/v/r4/fhir"),
		AppID:          envString("SMART_APP_ID", "smart-meds-app"),
		RedirectURI:    os.Getenv("SMART_REDIRECT_URI"),
		SessionBackend: envString("SESSION_BACKEND", BackendMemory),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		SessionTTL:     envDuration("SESSION_TTL", time.Hour),
		RedisAddr:      envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
	}

	if cfg.RedirectURI == "" {
		cfg.RedirectURI = fmt.Sprintf("http://localhost:%d/fhir-app/", cfg.Port)
	}
	if v := os.Getenv("SMART_SCOPES"); v != "" {
		cfg.Scopes = strings.Fields(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.SessionBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.SessionBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("postgres session backend requires DATABASE_URL")
	}
	if c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL must not be empty")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
