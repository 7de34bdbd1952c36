// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for authd.
//
// Logging is logrus with a JSON or text formatter:
//
//	logger := observability.NewLogger("info", "json", nil)
//	logger.WithField("tenant_id", tenant).Info("role created")
//
// Metrics are registered on a caller-owned registry so tests stay isolated:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CacheHitsTotal.WithLabelValues("role_permissions").Inc()
//
// Health checks probe the role store and the permission cache. A failing
// Redis degrades the service rather than failing readiness, because the
// cache holds only derived state:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
package observability
