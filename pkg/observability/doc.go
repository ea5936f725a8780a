// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for invoicegate.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("invoice_id", id).Info("invoice finalized")
//
// Request-scoped loggers carry the request ID, the admin actor and the
// active trace:
//
//	observability.FromContext(ctx).Warn("usage export unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordReconciliation("DRIFT")
//
// Every Record* method is safe on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddDependency("invoice_store", store, true)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//	ctx, span := observability.Tracer().Start(ctx, "reconcile")
package observability
