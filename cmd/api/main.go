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

	"github.com/clipwave/clipwave/internal/assistant"
	"github.com/clipwave/clipwave/internal/auth"
	"github.com/clipwave/clipwave/internal/blob"
	"github.com/clipwave/clipwave/internal/cache"
	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/database"
	"github.com/clipwave/clipwave/internal/events"
	"github.com/clipwave/clipwave/internal/logging"
	"github.com/clipwave/clipwave/internal/metadata"
	"github.com/clipwave/clipwave/internal/metrics"
	"github.com/clipwave/clipwave/internal/middleware"
	"github.com/clipwave/clipwave/internal/persist"
	"github.com/clipwave/clipwave/internal/playback"
	"github.com/clipwave/clipwave/internal/processing"
	"github.com/clipwave/clipwave/internal/project"
	"github.com/clipwave/clipwave/internal/queue"
	"github.com/clipwave/clipwave/internal/simulator"
	"github.com/clipwave/clipwave/internal/storage"
	"github.com/clipwave/clipwave/internal/store"
	"github.com/clipwave/clipwave/internal/tracing"
	"github.com/clipwave/clipwave/internal/upload"
	"github.com/clipwave/clipwave/internal/webhook"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	tracer, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer tracer.Close()

	api, cleanup, err := buildAPI(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger, api.checks)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	// Hydrate the auth store in the background, guarded routes answer 503
	// until it is done
	hydrateCtx, stopHydrate := context.WithCancel(context.Background())
	go hydrateAuth(hydrateCtx, api.auth, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	stopCleanup := make(chan struct{})
	go limiter.Cleanup(10*time.Minute, stopCleanup)

	router := setupRouter(api, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopHydrate()
	close(stopCleanup)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if err := api.processor.Shutdown(ctx); err != nil {
		logger.ErrorWithErr("Processing runs did not stop in time", err)
	}
	if err := api.sessions.SaveAll(ctx); err != nil {
		logger.ErrorWithErr("Failed to save sessions", err)
	}
	if api.auth.Hydrated() {
		if err := api.auth.Save(ctx); err != nil {
			logger.ErrorWithErr("Failed to save auth store", err)
		}
	}
	cleanup(ctx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}

	logger.Info("Server stopped")
}

// buildAPI wires every collaborator from cfg. The returned cleanup releases
// connections in reverse order of creation.
func buildAPI(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*API, func(context.Context), error) {
	var closers []func(context.Context)
	cleanup := func(ctx context.Context) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}
	}
	fail := func(err error) (*API, func(context.Context), error) {
		cleanup(ctx)
		return nil, nil, err
	}

	checks := map[string]metrics.Probe{}

	// Redis backs snapshot persistence, the metadata cache and login throttling
	var redisCache *cache.Cache
	if cfg.Persistence.Backend == config.BackendRedis {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		redisCache = c
		closers = append(closers, func(context.Context) { c.Close() })
		checks["redis"] = c.Ping
	}

	var adapter persist.Adapter
	switch cfg.Persistence.Backend {
	case config.BackendRedis:
		adapter = persist.Instrument(redisCache, config.BackendRedis, logger)
	case config.BackendPostgres:
		db, err := database.New(cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		closers = append(closers, func(context.Context) { db.Close() })
		checks["database"] = db.Health
		adapter = persist.Instrument(database.NewRepository(db), config.BackendPostgres, logger)
	default:
		adapter = persist.Instrument(persist.NewMemory(), config.BackendMemory, logger)
	}

	var backend blob.Backend
	if cfg.Storage.Backend == config.BackendMinio {
		stor, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize storage: %w", err))
		}
		backend = stor
	} else {
		backend = blob.NewMemoryBackend()
	}

	hub := events.NewHub(logger)
	closers = append(closers, func(context.Context) { hub.Close() })
	publishers := events.Multi{hub}

	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to queue: %w", err))
		}
		closers = append(closers, func(context.Context) { q.Close() })
		publishers = append(publishers, q)
	}
	// With a queue the worker delivers webhooks
	if !cfg.Queue.Enabled && len(cfg.Webhook.URLs) > 0 {
		hooks := webhook.NewService(cfg.Webhook, logger)
		closers = append(closers, func(context.Context) { hooks.Close() })
		publishers = append(publishers, hooks)
	}

	registry := blob.NewRegistry(backend, logger.WithComponent("blob"))
	sessions := store.NewManager(registry, adapter, logger.WithComponent("store"))
	sim := simulator.New(simulator.Config{
		StepDuration: cfg.Simulator.StepDuration,
		TickInterval: cfg.Simulator.TickInterval,
		Clock:        simulator.RealClock{},
	})

	authStore := auth.NewStore(adapter, auth.Config{
		Latency:     cfg.Auth.SimulatedLatency,
		LoginLimit:  cfg.RateLimit.LoginLimit,
		LoginWindow: cfg.RateLimit.LoginWindow,
	}, logger)

	var lookupCache metadata.Cache
	if redisCache != nil {
		authStore.SetLimiter(redisCache)
		lookupCache = redisCache
	}

	uploads := upload.NewStager(backend, logger)
	closers = append(closers, uploads.ReleaseAll)

	api := &API{
		logger:    logger.WithComponent("api"),
		auth:      authStore,
		tokens:    middleware.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		sessions:  sessions,
		factory:   project.NewFactory(registry),
		registry:  registry,
		uploads:   uploads,
		processor: processing.NewService(sessions, sim, publishers, logger.WithComponent("processing")),
		playback:  playback.NewResolver(registry),
		hub:       hub,
		publisher: publishers,
		assistant: assistant.NewClient(cfg.Assistant, logger),
		metadata:  metadata.NewService(cfg.Metadata, lookupCache, logger),
		checks:    checks,
	}
	return api, cleanup, nil
}

// hydrateAuth loads the auth snapshot, retrying with backoff until it
// succeeds or ctx ends
func hydrateAuth(ctx context.Context, a *auth.Store, logger *logging.Logger) {
	delay := 500 * time.Millisecond
	for {
		err := a.Hydrate(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.WithError(err).Warnf("Auth hydration failed, retrying in %s", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}
