package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"golang.org/x/time/rate"
)

// Notifier delivers one alert. Transports (email, webhook, chat) live behind
// this interface; the core only decides when to fire.
type Notifier interface {
	Notify(ctx context.Context, m *domain.Monitor, hb *domain.Heartbeat) error
}

// Dispatcher fans an alert out to every configured notifier, rate-limited
// per monitor so a flapping target cannot flood the transports. Errors are
// logged, never returned: notification failure must not fail the pipeline.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Three alerts per monitor per minute, small burst for down+recovery pairs.
const (
	limitPerMonitor = rate.Limit(3.0 / 60.0)
	limitBurst      = 3
)

func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With("component", "notify"),
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, m *domain.Monitor, hb *domain.Heartbeat) {
	if len(d.notifiers) == 0 {
		return
	}
	if !d.limiter(m.ID).Allow() {
		d.logger.Warn("notification rate limited", "monitor_id", m.ID, "status", hb.Status.String())
		return
	}
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, m, hb); err != nil {
			d.logger.Error("notifier failed", "monitor_id", m.ID, "error", err)
		}
	}
}

func (d *Dispatcher) limiter(monitorID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[monitorID]
	if !ok {
		l = rate.NewLimiter(limitPerMonitor, limitBurst)
		d.limiters[monitorID] = l
	}
	return l
}

// Subject and body shared by the transports.

func alertSubject(m *domain.Monitor, hb *domain.Heartbeat) string {
	return fmt.Sprintf("[%s] %s is %s", m.TenantID, m.Name, hb.Status.String())
}

func alertBody(m *domain.Monitor, hb *domain.Heartbeat) string {
	ping := "n/a"
	if hb.Ping != nil {
		ping = fmt.Sprintf("%.1f ms", *hb.Ping)
	}
	return fmt.Sprintf("Monitor %s (%s) reported %s at %s.\nPing: %s\nMessage: %s\n",
		m.Name, m.Type, hb.Status.String(), hb.Time.Format(time.RFC3339), ping, hb.Msg)
}
