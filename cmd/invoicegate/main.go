package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/invoicegate/pkg/api"
	"github.com/platinummonkey/invoicegate/pkg/config"
	"github.com/platinummonkey/invoicegate/pkg/lifecycle"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/reconciliation"
	"github.com/platinummonkey/invoicegate/pkg/storage"
	"github.com/platinummonkey/invoicegate/pkg/usage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("INVOICEGATE_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "invoicegate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	store, err := storage.Open(ctx, cfg.Storage, metrics)
	if err != nil {
		return err
	}
	logger.WithField("driver", cfg.Storage.Driver).Info("Invoice store opened")

	exportClient, err := usage.NewHTTPClient(usage.HTTPConfig{
		BaseURL: cfg.Usage.BaseURL,
		Token:   cfg.Usage.Token,
		Timeout: cfg.Usage.Timeout,
	})
	if err != nil {
		store.Close()
		return err
	}

	engine := reconciliation.NewEngine(store, exportClient, reconciliation.EngineConfig{
		ExportTimeout: cfg.Usage.Timeout,
		Logger:        logger,
		Metrics:       metrics,
	})

	adminServer := api.NewServer(api.Dependencies{
		Store:         store,
		Usage:         exportClient,
		Engine:        engine,
		Gate:          reconciliation.NewGate(store, engine, metrics),
		Summarizer:    reconciliation.NewSummarizer(store, engine),
		Lifecycle:     lifecycle.NewService(store, engine, logger, metrics),
		Logger:        logger,
		Metrics:       metrics,
		ExportTimeout: cfg.Usage.Timeout,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      adminServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port so probes bypass the admin API
	checker := observability.NewHealthChecker(version).
		AddDependency("invoice_store", store, true).
		AddDependency("usage_export", exportClient, false)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if metrics != nil {
		healthMux.Handle("/metrics", dbStatsRefresher(store, metrics, registry))
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return store.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, healthServer} {
		go func(srv *http.Server) {
			logger.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s failed: %w", srv.Addr, err)
				cancel()
			}
		}(srv)
	}

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		return err
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// dbStatsRefresher copies connection pool stats into the gauges on every scrape
func dbStatsRefresher(store interface{}, metrics *observability.Metrics, registry *prometheus.Registry) http.Handler {
	scrape := http.NewServeMux()
	observability.RegisterMetricsEndpoint(scrape, registry)

	pooled, ok := store.(interface{ DB() *sql.DB })
	if !ok {
		return scrape
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.UpdateDBStats(pooled.DB().Stats())
		scrape.ServeHTTP(w, r)
	})
}
