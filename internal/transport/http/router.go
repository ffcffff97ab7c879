package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulsewatch/pulsewatch/internal/relay"
	"github.com/pulsewatch/pulsewatch/internal/transport/http/handler"
	"github.com/pulsewatch/pulsewatch/internal/transport/http/middleware"

	sloggin "github.com/samber/slog-gin"
)

func newEngine(logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())
	return r
}

// NewWorkerRouter serves orchestrator probes and operator introspection for
// one worker process.
func NewWorkerRouter(logger *slog.Logger, healthHandler *handler.HealthHandler, statusHandler *handler.StatusHandler) *gin.Engine {
	r := newEngine(logger)

	r.GET("/health", healthHandler.Liveness)
	r.GET("/ready", healthHandler.Readiness)
	r.GET("/status", statusHandler.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// NewRelayRouter serves the websocket endpoint plus probes for a relay
// process.
func NewRelayRouter(logger *slog.Logger, healthHandler *handler.HealthHandler, wsHandler *handler.WSHandler, rly *relay.Relay, hub *relay.Hub) *gin.Engine {
	r := newEngine(logger)

	r.GET("/health", healthHandler.Liveness)
	r.GET("/ready", healthHandler.Readiness)
	r.GET("/ws", wsHandler.Serve)
	r.GET("/status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"counters": rly.Counters(),
			"clients":  hub.ClientCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
