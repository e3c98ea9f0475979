// Package main provides the SMART app service entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eircare/smart-meds/internal/audit"
	"github.com/eircare/smart-meds/internal/config"
	"github.com/eircare/smart-meds/internal/observability/metrics"
	"github.com/eircare/smart-meds/internal/observability/tracing"
	"github.com/eircare/smart-meds/internal/session"
	"github.com/eircare/smart-meds/internal/smart"
	"github.com/eircare/smart-meds/internal/web/handlers"
	"github.com/eircare/smart-meds/internal/web/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()

	// Tracing (no-op without an OTLP endpoint)
	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  "smart-app",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	// Session store backend
	store, ready, cleanup, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("session store init failed", zap.Error(err))
	}
	defer cleanup()

	// Audit publisher (nil without brokers)
	publisher, err := audit.NewPublisher(ctx, audit.DefaultPublisherConfig(cfg.KafkaBrokers), logger)
	if err != nil {
		logger.Fatal("audit publisher init failed", zap.Error(err))
	}
	if publisher != nil {
		defer publisher.Close(context.Background())
		logger.Info("audit publishing enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	m := metrics.New()
	go trackSessions(ctx, store, m, logger)

	settings := smart.DefaultSettings()
	settings.AppID = cfg.AppID
	settings.APIBase = cfg.FHIRBaseURL
	settings.RedirectURI = cfg.RedirectURI
	if len(cfg.Scopes) > 0 {
		settings.Scopes = cfg.Scopes
	}
	if !settings.Valid() {
		logger.Fatal("invalid smart settings",
			zap.String("app_id", settings.AppID),
			zap.String("api_base", settings.APIBase))
	}

	cookies := session.NewCookieManager([]byte(cfg.SessionSecret), cfg.SessionTTL, cfg.Environment == "production")

	app := handlers.New(settings, store, cookies, cfg.SessionTTL, logger,
		handlers.WithMetrics(m),
		handlers.WithAudit(publisher),
	)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("smart-app"))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	app.Routes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting smart app",
		zap.Int("port", cfg.Port),
		zap.String("fhir_base", cfg.FHIRBaseURL),
		zap.String("session_backend", cfg.SessionBackend))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	return logger
}

// newSessionStore wires the configured backend and returns the store,
// a readiness probe, and a cleanup func.
func newSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, func(context.Context) error, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		return session.NewRedisStore(client),
			func(ctx context.Context) error { return client.Ping(ctx).Err() },
			func() { client.Close() },
			nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		logger.Info("connected to postgres")
		store := session.NewPostgresStore(pool)
		go sweepSessions(ctx, store, logger)
		return store,
			func(ctx context.Context) error { return pool.Ping(ctx) },
			pool.Close,
			nil

	default:
		return session.NewMemoryStore(),
			func(context.Context) error { return nil },
			func() {},
			nil
	}
}

// trackSessions keeps the session gauge in step with the store, so
// TTL expiry is reflected without any bookkeeping in the handlers.
func trackSessions(ctx context.Context, store session.Store, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		n, err := store.Count(ctx)
		if err != nil {
			logger.Warn("session count failed", zap.Error(err))
			continue
		}
		m.ActiveSessions.Set(float64(n))
	}
}

// sweepSessions periodically drops expired rows. Redis and the memory
// store expire on their own.
func sweepSessions(ctx context.Context, store *session.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := store.Sweep(ctx); err != nil {
			logger.Warn("session sweep failed", zap.Error(err))
		}
	}
}
