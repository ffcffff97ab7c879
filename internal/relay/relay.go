package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
)

// StatsInvalidator drops a monitor's cached uptime calculator so the next
// stats read rehydrates from the heartbeat store. *uptime.Cache satisfies it.
type StatsInvalidator interface {
	Remove(monitorID string)
}

// ResponseCache is the API process's response cache. Important beats change
// what monitor list/detail endpoints return, so their entries are flushed.
type ResponseCache interface {
	InvalidateMonitor(tenantID, monitorID string)
}

// Message is what clients receive in their room: the channel name plus the
// original envelope.
type Message struct {
	Channel string           `json:"channel"`
	Event   *pubsub.Envelope `json:"event"`
}

// Counters is a snapshot of the relay's processed-event totals.
type Counters struct {
	Heartbeats          int64 `json:"heartbeats"`
	ImportantHeartbeats int64 `json:"important_heartbeats"`
	StatsUpdates        int64 `json:"stats_updates"`
	CertInfoUpdates     int64 `json:"cert_info_updates"`
	Errors              int64 `json:"errors"`
}

// Relay runs inside API processes: it turns worker-published events into
// user-room deliveries plus cache invalidation.
type Relay struct {
	transport pubsub.Transport
	hub       *Hub
	stats     StatsInvalidator
	responses ResponseCache
	logger    *slog.Logger

	heartbeats          atomic.Int64
	importantHeartbeats atomic.Int64
	statsUpdates        atomic.Int64
	certInfoUpdates     atomic.Int64
	errors              atomic.Int64
}

func New(transport pubsub.Transport, hub *Hub, stats StatsInvalidator, responses ResponseCache, logger *slog.Logger) *Relay {
	return &Relay{
		transport: transport,
		hub:       hub,
		stats:     stats,
		responses: responses,
		logger:    logger.With("component", "relay"),
	}
}

// Start subscribes to the monitor event channels. With no broker configured
// the relay is a no-op and the API serves stale-tolerant reads only.
func (r *Relay) Start(ctx context.Context) error {
	channels := []string{
		pubsub.ChannelHeartbeat,
		pubsub.ChannelImportantHeartbeat,
		pubsub.ChannelMonitorStats,
		pubsub.ChannelCertInfo,
	}
	for _, channel := range channels {
		channel := channel
		err := r.transport.Subscribe(ctx, channel, func(ctx context.Context, env *pubsub.Envelope) {
			r.handle(channel, env)
		})
		if errors.Is(err, pubsub.ErrDisabled) {
			r.logger.Warn("relay disabled: no broker configured")
			return nil
		}
		if err != nil {
			return err
		}
	}
	r.logger.Info("relay subscribed", "channels", len(channels))
	return nil
}

func (r *Relay) handle(channel string, env *pubsub.Envelope) {
	if err := env.ValidateMonitorEvent(); err != nil {
		r.errors.Add(1)
		metrics.RelayErrorsTotal.Inc()
		r.logger.Warn("dropping malformed event", "channel", channel, "error", err)
		return
	}

	switch channel {
	case pubsub.ChannelHeartbeat:
		r.heartbeats.Add(1)
		// The local calculator is stale the moment any worker appends a
		// beat; drop it so the next stats query rehydrates.
		r.stats.Remove(env.MonitorID)
	case pubsub.ChannelImportantHeartbeat:
		r.importantHeartbeats.Add(1)
		r.stats.Remove(env.MonitorID)
		if r.responses != nil {
			r.responses.InvalidateMonitor(env.TenantID, env.MonitorID)
		}
	case pubsub.ChannelMonitorStats:
		r.statsUpdates.Add(1)
	case pubsub.ChannelCertInfo:
		r.certInfoUpdates.Add(1)
	}

	metrics.RelayEventsTotal.WithLabelValues(channel).Inc()
	r.hub.Emit(Room(env.TenantID, env.UserID), Message{Channel: channel, Event: env})
}

func (r *Relay) Counters() Counters {
	return Counters{
		Heartbeats:          r.heartbeats.Load(),
		ImportantHeartbeats: r.importantHeartbeats.Load(),
		StatsUpdates:        r.statsUpdates.Load(),
		CertInfoUpdates:     r.certInfoUpdates.Load(),
		Errors:              r.errors.Load(),
	}
}
