package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/msomdec/locomotiva-cache/internal/config"
	"github.com/msomdec/locomotiva-cache/internal/domain"
	"github.com/msomdec/locomotiva-cache/internal/handler"
	"github.com/msomdec/locomotiva-cache/internal/logging"
	"github.com/msomdec/locomotiva-cache/internal/repository/sqlite"
	"github.com/msomdec/locomotiva-cache/internal/schema"
	"github.com/msomdec/locomotiva-cache/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	open := func(ctx context.Context) (domain.Store, error) {
		return sqlite.Open(ctx, cfg.DatabasePath, schema.Version, schema.Upgrade(schema.Version))
	}
	cache := service.NewCache(open, cfg.Policy.Build(),
		service.WithLogger(logger),
		service.WithMetrics(service.NewMetrics(registry)),
	)
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Error("failed to close cache", "error", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var limiter *service.TokenBucket
	if cfg.Admin.PurgeBurst > 0 {
		limiter = service.NewTokenBucket(cfg.Admin.PurgeRate, float64(cfg.Admin.PurgeBurst))
		go limiter.RunCleanup(ctx)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, cache, registry, limiter)

	srv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           handler.SecurityHeaders(handler.RequestLogger(logger, mux)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		slog.Info("admin server starting", "addr", srv.Addr, "database", cfg.DatabasePath, "schema_version", schema.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down admin server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
