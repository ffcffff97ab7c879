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
	"github.com/pulsewatch/pulsewatch/internal/health"
	"github.com/pulsewatch/pulsewatch/internal/infrastructure/postgres"
	ctxlog "github.com/pulsewatch/pulsewatch/internal/log"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/relay"
	httptransport "github.com/pulsewatch/pulsewatch/internal/transport/http"
	"github.com/pulsewatch/pulsewatch/internal/transport/http/handler"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
)

// The relay binary is what an API process embeds: it bridges worker events
// to websocket rooms. Standalone it serves /ws directly for local runs.
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

	transport, err := pubsub.New(ctx, cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer func() { _ = transport.Close() }()

	metrics.Register()

	heartbeatRepo := postgres.NewHeartbeatRepository(pool)
	calcs := uptime.NewCache(heartbeatRepo, logger)

	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	rly := relay.New(transport, hub, calcs, nil, logger)
	if err := rly.Start(ctx); err != nil {
		log.Fatalf("relay: %v", err)
	}

	checker := health.NewChecker(pool, transport, nil, logger, prometheus.DefaultRegisterer)
	router := httptransport.NewRelayRouter(
		logger,
		handler.NewHealthHandler(checker, logger),
		handler.NewWSHandler(hub, logger),
		rly,
		hub,
	)

	srv := &http.Server{Addr: ":" + cfg.RelayPort, Handler: router}
	go func() {
		logger.Info("relay server started", "port", cfg.RelayPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay server shutdown", "error", err)
	}

	logger.Info("relay shut down")
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
