package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that dependencies are reachable and the worker is
// accepting work. An unreachable broker degrades but never fails readiness:
// checks still execute in single-process mode.
type Checker struct {
	db        Pinger
	transport pubsub.Transport
	ready     func() bool
	logger    *slog.Logger
	gauge     *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// ready may be nil for processes without a worker loop.
func NewChecker(db Pinger, transport pubsub.Transport, ready func() bool, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pulsewatch",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		db:        db,
		transport: transport,
		ready:     ready,
		logger:    logger.With("component", "health"),
		gauge:     gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency and reports per-check status.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	if err := c.db.Ping(checkCtx); err != nil {
		c.logger.Warn("postgres health check failed", "error", err)
		result.Status = "down"
		result.Checks["postgres"] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues("postgres").Set(0)
	} else {
		result.Checks["postgres"] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues("postgres").Set(1)
	}

	switch {
	case !c.transport.Enabled():
		result.Checks["pubsub"] = CheckResult{Status: "disabled"}
	case c.transport.Ping(checkCtx) != nil:
		c.logger.Warn("broker health check failed")
		result.Checks["pubsub"] = CheckResult{Status: "down", Error: "broker unreachable"}
		c.gauge.WithLabelValues("pubsub").Set(0)
	default:
		result.Checks["pubsub"] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues("pubsub").Set(1)
	}

	if c.ready != nil && !c.ready() {
		result.Status = "down"
		result.Checks["worker"] = CheckResult{Status: "down", Error: "not accepting work"}
	} else if c.ready != nil {
		result.Checks["worker"] = CheckResult{Status: "up"}
	}

	return result
}
