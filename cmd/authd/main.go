package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/lockplane/authcore/pkg/config"
	"github.com/lockplane/authcore/pkg/events"
	"github.com/lockplane/authcore/pkg/httputil"
	"github.com/lockplane/authcore/pkg/observability"
	"github.com/lockplane/authcore/pkg/rbac"
)

// maxRequestBody caps inbound JSON bodies; role and assignment payloads are
// small, anything near this size is malformed or hostile.
const maxRequestBody = 1 << 20

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.WithFields(logrus.Fields{
		"db_type":    cfg.Database.Type,
		"cache_type": cfg.Cache.Type,
	}).Info("Starting authd")

	// Store
	var (
		roleStore rbac.RoleStore
		permStore rbac.PermissionStore
		menuStore rbac.MenuStore
		userStore rbac.UserRoleStore
		db        *sql.DB
	)
	switch cfg.Database.Type {
	case "postgres":
		store, err := rbac.NewPostgresStore(rbac.PostgresConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Timeout:  cfg.Database.Timeout,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer store.Close()
		db = store.DB()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := rbac.RunMigrations(ctx, db); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to run migrations")
		}
		cancel()

		roleStore, permStore, menuStore, userStore = store, store, store, store
	default:
		store := rbac.NewMemoryStore()
		roleStore, permStore, menuStore, userStore = store, store, store, store
	}

	// Cache
	var (
		cache       rbac.PermissionCache
		redisClient *redis.Client
	)
	if cfg.Cache.Type == "redis" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid redis URL")
		}
		redisClient = redis.NewClient(opts)
		redisCache := rbac.NewRedisCacheFromClient(redisClient)
		defer redisCache.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisCache.Ping(ctx); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		cancel()
		cache = redisCache
	} else {
		cache = rbac.NewMemoryCache()
	}

	// Events
	var sinks []events.Sink
	if cfg.Events.LogEvents {
		sinks = append(sinks, events.NewLogSink(logger))
	}
	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, logger))
	}
	dispatcher := events.NewDispatcher(logger, sinks...)
	defer dispatcher.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	if db != nil {
		stopSampler := observability.StartDBStatsSampler(db, metrics, 15*time.Second)
		defer stopSampler()
	}

	service, err := rbac.NewService(rbac.ServiceConfig{
		Roles:       roleStore,
		Permissions: permStore,
		Menus:       menuStore,
		UserRoles:   userStore,
		Cache:       cache,
		Events:      dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to build authorization service")
	}

	// Router
	router := mux.NewRouter()
	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware(logger))
	router.Use(httputil.RecoveryMiddleware(logger))
	router.Use(httputil.MaxBytesMiddleware(maxRequestBody))
	router.Use(httputil.ContentTypeMiddleware)
	router.Use(observability.HTTPMetricsMiddleware(metrics))

	rbac.NewHandlers(service).RegisterRoutes(router)

	checker := observability.NewHealthChecker(db, redisClient)
	router.HandleFunc("/health", checker.Readiness).Methods("GET")
	router.HandleFunc("/health/live", checker.Liveness).Methods("GET")
	router.HandleFunc("/health/ready", checker.Readiness).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		dispatcher.Close()
		return nil
	})
	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
}
