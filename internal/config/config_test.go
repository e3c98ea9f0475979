package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.SessionBackend != BackendMemory {
		t.Errorf("session backend = %q, want memory", cfg.SessionBackend)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("session ttl = %v, want 1h", cfg.SessionTTL)
	}
	if cfg.RedirectURI != "http://localhost:8080/fhir-app/" {
		t.Errorf("redirect uri = %q", cfg.RedirectURI)
	}
	if cfg.FHIRBaseURL == "" {
		t.Error("fhir base url must default to the sandbox")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("SMART_SCOPES", "openid profile launch/patient")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.SessionBackend != BackendRedis {
		t.Errorf("session backend = %q", cfg.SessionBackend)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
	if len(cfg.Scopes) != 3 || cfg.Scopes[2] != "launch/patient" {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker2:9092" {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.RedirectURI != "http://localhost:9090/fhir-app/" {
		t.Errorf("redirect uri = %q, want derived from port", cfg.RedirectURI)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown session backend")
	}
}

func TestPostgresBackendNeedsDatabaseURL(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}
