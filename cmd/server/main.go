package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/handlers"
	"github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/platform"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/quickfix/quickfix-api/internal/telemetry"
	"go.uber.org/zap"
)

const (
	dlqInterval  = time.Hour
	dlqRetention = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(telemetry.ServiceAPI, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("docstore_driver", cfg.DocstoreDriver),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracing := cfg.OTELEnabled
	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEnabled, telemetry.ServiceAPI, cfg.OTELEndpoint)
	if err != nil {
		zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		tracing = false
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}()

	store, err := platform.OpenStore(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_docstore", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			zapLogger.Warn("failed_to_close_docstore", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_docstore")

	if err := store.EnsureIndexes(ctx, database.Indexes()); err != nil {
		zapLogger.Warn("failed_to_ensure_indexes", zap.Error(err))
	}

	redisClient, err := platform.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Warn("redis_unavailable_using_in_process_fallbacks", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		zapLogger.Info("connected_to_redis")
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
	}

	var notifier docstore.Notifier = docstore.NewLocalNotifier()
	var revoked identity.RevocationList
	var geocoder geocode.Geocoder = geocode.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, zapLogger)
	if redisClient != nil {
		notifier = docstore.NewRedisNotifier(redisClient, zapLogger)
		revoked = identity.NewRedisRevocationList(redisClient)
		geocoder = geocode.NewCachedGeocoder(geocoder, redisClient, cfg.GeocodeCacheTTL, zapLogger)
	}
	feed := docstore.NewFeed(store, notifier, zapLogger)

	checks := map[string]handlers.CheckFunc{"docstore": store.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var jobs queue.Enqueuer
	var dlqPurger queue.DLQPurger
	jobQueue, err := platform.ConnectQueue(ctx, cfg.RabbitMQURL, 10, zapLogger)
	switch {
	case errors.Is(err, platform.ErrQueueDisabled):
		zapLogger.Info("job_queue_disabled_listing_maintenance_off")
	case err != nil:
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	default:
		zapLogger.Info("connected_to_rabbitmq")
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		jobs = jobQueue
		dlqPurger = jobQueue
		checks["rabbitmq"] = jobQueue.HealthCheck
	}

	tokens := identity.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	identityService := identity.NewService(feed, tokens, revoked, zapLogger)

	app, err := newAPI(routerDeps{
		feed:        feed,
		identity:    identityService,
		geocoder:    geocoder,
		jobs:        jobs,
		redis:       redisClient,
		frontendURL: cfg.FrontendURL,
		enableHSTS:  cfg.EnableHSTS,
		tracing:     tracing,
		checks:      checks,
		logger:      zapLogger,
	})
	if err != nil {
		zapLogger.Fatal("failed_to_build_router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        app.handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go app.cors.Start(ctx)
	go app.rateLimit.Start(ctx)

	if dlqPurger != nil {
		dlqGC := queue.NewGarbageCollector(dlqPurger, dlqInterval, dlqRetention, zapLogger)
		go func() {
			if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", dlqInterval),
			zap.Duration("retention", dlqRetention),
		)
	}

	go func() {
		zapLogger.Info("server_listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
