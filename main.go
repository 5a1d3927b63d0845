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

	"github.com/invoicedesk/invoiceform/internal/application/grid"
	"github.com/invoicedesk/invoiceform/internal/application/picker"
	"github.com/invoicedesk/invoiceform/internal/config"
	catalogworker "github.com/invoicedesk/invoiceform/internal/infrastructure/catalog/worker"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/catalogapi"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/id"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/memory"
	infraobs "github.com/invoicedesk/invoiceform/internal/infrastructure/observability"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/observability/oteltrace"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/observability/prometrics"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/observability/zaplogger"
	"github.com/invoicedesk/invoiceform/internal/infrastructure/outbox"
	"github.com/invoicedesk/invoiceform/internal/observability"
	httppresentation "github.com/invoicedesk/invoiceform/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	registry := prometrics.New(cfg.ServiceName, "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: registry.Counter(
			string(observability.MExternalRequests),
			"Total number of outbound requests to external services.",
			"peer", "endpoint", "outcome",
		),
		observability.MLookupStaleDiscards: registry.Counter(
			string(observability.MLookupStaleDiscards),
			"Count of catalog lookup completions discarded as stale.",
			"flow",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			prometheus.DefBuckets,
			"use_case",
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP request handling in seconds.",
			prometheus.DefBuckets,
			"method", "route", "status",
		),
		observability.MExternalRequestDuration: registry.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of outbound requests in seconds.",
			prometheus.DefBuckets,
			"peer", "endpoint",
		),
	}

	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)
	systemLogger := tel.Logger().With(observability.F("component", "main"))

	bus := outbox.NewBus(tel.Logger())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	finder := catalogapi.New(catalogapi.Config{
		BaseURL: cfg.CatalogBaseURL,
		APIKey:  cfg.CatalogAPIKey,
		Timeout: cfg.LookupTimeout,
	}, tel)

	lookupWorker := catalogworker.New(finder, bus, bus, tel)
	lookupWorker.Start()

	idGenerator := id.NewUUIDGenerator()

	pickerService := picker.NewService(memory.NewPickerSessionRepository(), bus, idGenerator, cfg.DefaultVATRate, tel)
	pickerService.Start(bus)

	gridService := grid.NewService(memory.NewGridSessionRepository(), bus, idGenerator, tel)
	gridService.Start(bus)

	handler := httppresentation.NewHandler(pickerService, gridService, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				observability.F("error", err),
			)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			observability.F("error", err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}
}
