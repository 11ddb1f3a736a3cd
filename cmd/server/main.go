package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/reports/internal/config"
	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/logging"
	"github.com/JonMunkholm/reports/internal/metrics"
	"github.com/JonMunkholm/reports/internal/reports"
	"github.com/JonMunkholm/reports/internal/scheduler"
	"github.com/JonMunkholm/reports/internal/web"
)

func main() {
	// Variables already in the environment win over .env.
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"export_dir", cfg.Export.Dir,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	store := reports.NewStore(pool)
	if cfg.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
	}

	var collector *metrics.Collector
	exportOpts := []csvexport.Option{csvexport.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
		exportOpts = append(exportOpts, csvexport.WithRecorder(collector))
	}
	exporter := csvexport.NewExporter(nil, exportOpts...)

	jobs, err := scheduler.LoadJobs(cfg.Export.JobsFile)
	if err != nil {
		logger.Error("failed to load export jobs", "error", err)
		os.Exit(1)
	}
	schedOpts := []scheduler.Option{scheduler.WithLogger(logger)}
	if collector != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(collector))
	}
	sched := scheduler.New(store,
		exporter.WithDeliverer(csvexport.DirDeliverer{Dir: cfg.Export.Dir}),
		schedOpts...,
	)
	if err := sched.Start(ctx, jobs); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	for name, next := range sched.NextRuns() {
		logger.Info("scheduled export", "job", name, "next_run", next)
	}

	server := web.NewServer(ctx, cfg, web.Deps{
		Backend:  store,
		Exporter: exporter,
		Metrics:  collector,
		Health:   pool.Ping,
		Logger:   logger,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		sched.Stop()
	}()

	if err := server.Start(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
