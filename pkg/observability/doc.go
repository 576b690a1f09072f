// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry tracing and process lifecycle helpers.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("code", "FORBIDDEN").Warn("request rejected")
//
// Request-scoped loggers pick up request, org and trace ids from the context:
//
//	observability.FromContext(r.Context()).Info("handled")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.GuardDecision("authorize", observability.OutcomeDeny, "FORBIDDEN")
//
// Every helper on *Metrics tolerates a nil receiver so guards can run without
// a metrics sink.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker) // /healthz, /readyz
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	ctx, span := observability.StartSpan(ctx, "session.verify")
//	identity, err := verifier.Verify(ctx, credential)
//	observability.EndSpan(span, err)
//
// # Lifecycle
//
// Runner serves HTTP servers and background tasks under one errgroup and
// drains them on SIGINT/SIGTERM.
package observability
