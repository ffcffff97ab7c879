package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/repository"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
)

// Processor owns the post-check pipeline: notify, update stats, persist,
// publish. The append always happens before any publish so a subscriber that
// reads the heartbeat store after receiving the event finds the row.
type Processor struct {
	heartbeats repository.HeartbeatRepository
	calcs      *uptime.Cache
	transport  pubsub.Transport
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

func New(
	heartbeats repository.HeartbeatRepository,
	calcs *uptime.Cache,
	transport pubsub.Transport,
	dispatcher *notify.Dispatcher,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		heartbeats: heartbeats,
		calcs:      calcs,
		transport:  transport,
		dispatcher: dispatcher,
		logger:     logger.With("component", "processor"),
	}
}

func (p *Processor) Process(ctx context.Context, m *domain.Monitor, res *domain.CheckResult) error {
	hb := res.Heartbeat

	if res.ShouldNotify || res.ShouldResendNotification {
		// Fire-and-log: the dispatcher swallows transport errors.
		p.dispatcher.Dispatch(ctx, m, hb)
	}

	calc := p.calcs.Get(ctx, m.ID)
	endTime := calc.Update(hb.Status, hb.Ping)
	hb.EndTime = &endTime

	if _, err := p.heartbeats.Append(ctx, hb); err != nil {
		return fmt.Errorf("append heartbeat for %s: %w", m.ID, err)
	}

	p.publishAll(ctx, m, res, calc)

	// Restart the resend countdown now that the alert went out again.
	if !res.Important && res.ShouldResendNotification {
		if err := p.heartbeats.ResetDownCount(ctx, hb.ID); err != nil {
			p.logger.Warn("reset down count", "monitor_id", m.ID, "error", err)
		}
	}
	return nil
}

func (p *Processor) publishAll(ctx context.Context, m *domain.Monitor, res *domain.CheckResult, calc *uptime.Calculator) {
	if !p.transport.Enabled() {
		return
	}
	hb := res.Heartbeat

	p.publish(ctx, m, pubsub.ChannelHeartbeat, hb)
	if res.Important {
		p.publish(ctx, m, pubsub.ChannelImportantHeartbeat, hb)
		p.publish(ctx, m, pubsub.ChannelMonitorStatus, pubsub.StatusPayload{
			Status: int(hb.Status),
			Msg:    hb.Msg,
		})
	}

	day := calc.Get24Hour()
	month := calc.Get30Day()
	p.publish(ctx, m, pubsub.ChannelMonitorStats, pubsub.StatsPayload{
		Uptime24h:       day.Uptime,
		Uptime30d:       month.Uptime,
		AvgPingLastHour: calc.AvgPingLastHour(),
	})

	if res.TLSInfo != nil {
		p.publish(ctx, m, pubsub.ChannelCertInfo, res.TLSInfo)
	}
}

func (p *Processor) publish(ctx context.Context, m *domain.Monitor, channel string, payload any) {
	env, err := pubsub.NewEnvelope(m.TenantID, m.ID, m.UserID, channel, payload)
	if err != nil {
		p.logger.Error("build event", "channel", channel, "error", err)
		return
	}
	if err := p.transport.Publish(ctx, channel, env); err != nil {
		// Best-effort: broker loss never fails the pipeline.
		metrics.PublishFailuresTotal.Inc()
		p.logger.Warn("publish failed", "channel", channel, "monitor_id", m.ID, "error", err)
		return
	}
	metrics.PublishesTotal.WithLabelValues(channel).Inc()
}
