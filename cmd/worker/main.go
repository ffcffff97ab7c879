package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulsewatch/pulsewatch/config"
	"github.com/pulsewatch/pulsewatch/internal/executor"
	"github.com/pulsewatch/pulsewatch/internal/health"
	"github.com/pulsewatch/pulsewatch/internal/infrastructure/postgres"
	ctxlog "github.com/pulsewatch/pulsewatch/internal/log"
	"github.com/pulsewatch/pulsewatch/internal/maintenance"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/processor"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	httptransport "github.com/pulsewatch/pulsewatch/internal/transport/http"
	"github.com/pulsewatch/pulsewatch/internal/transport/http/handler"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
	"github.com/pulsewatch/pulsewatch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	transport, err := pubsub.New(ctx, cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer func() { _ = transport.Close() }()

	metrics.Register()

	scheduleRepo := postgres.NewScheduleRepository(pool, logger)
	heartbeatRepo := postgres.NewHeartbeatRepository(pool)
	monitorRepo := postgres.NewMonitorRepository(pool)
	maintenanceRepo := postgres.NewMaintenanceRepository(pool)
	pushRepo := postgres.NewPushRepository(pool)

	maint := maintenance.NewService(maintenanceRepo, transport, logger)
	go maint.Run(ctx)

	registry := executor.NewDefaultRegistry()
	exec := executor.New(registry, maint, &executor.ServerContext{
		Pushes: pushRepo,
		Logger: logger,
	}, logger)

	dispatcher := newDispatcher(cfg, logger)
	calcs := uptime.NewCache(heartbeatRepo, logger)
	proc := processor.New(heartbeatRepo, calcs, transport, dispatcher, logger)

	w := worker.New(scheduleRepo, heartbeatRepo, monitorRepo, exec, proc, transport, logger, worker.Options{
		ID:                cfg.WorkerID,
		BatchSize:         cfg.WorkerBatchSize,
		PollInterval:      cfg.PollInterval(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
		StaleClaimAge:     cfg.StaleClaimAge(),
		RetentionDays:     cfg.RetentionDays,
	})

	checker := health.NewChecker(pool, transport, w.Ready, logger, prometheus.DefaultRegisterer)
	router := httptransport.NewWorkerRouter(
		logger,
		handler.NewHealthHandler(checker, logger),
		handler.NewStatusHandler(w, scheduleRepo, logger),
	)
	srv := &http.Server{Addr: ":" + cfg.WorkerHealthPort, Handler: router}
	go func() {
		logger.Info("health server started", "port", cfg.WorkerHealthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server", "error", err)
		}
	}()

	// Blocks until ctx is cancelled, then drains in-flight checks.
	w.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown", "error", err)
	}

	logger.Info("worker shut down")
}

func newDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	if cfg.Env != "local" && cfg.ResendAPIKey != "" && cfg.AlertEmail != "" {
		return notify.NewDispatcher(logger, notify.NewEmailNotifier(cfg.ResendAPIKey, cfg.ResendFrom, cfg.AlertEmail))
	}
	return notify.NewDispatcher(logger, notify.NewLogNotifier(logger))
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
