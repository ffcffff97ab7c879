package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
)

// Command is the payload on the worker.command channel. A command with a
// WorkerID targets one worker; monitor commands are handled by every worker
// because any of them may claim the row next.
type Command struct {
	Command   string `json:"command"`
	WorkerID  string `json:"workerId,omitempty"`
	MonitorID string `json:"monitorId,omitempty"`
}

const (
	CommandShutdown       = "SHUTDOWN"
	CommandCheckNow       = "CHECK_NOW"
	CommandStartMonitor   = "START_MONITOR"
	CommandStopMonitor    = "STOP_MONITOR"
	CommandRestartMonitor = "RESTART_MONITOR"
)

func (w *Worker) subscribeCommands(ctx context.Context) {
	if !w.transport.Enabled() {
		return
	}
	err := w.transport.Subscribe(ctx, pubsub.ChannelWorkerCommand, func(ctx context.Context, env *pubsub.Envelope) {
		var cmd Command
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			w.logger.Warn("malformed worker command", "error", err)
			return
		}
		w.handleCommand(ctx, cmd)
	})
	if err != nil {
		w.logger.Error("subscribe worker commands", "error", err)
	}
}

func (w *Worker) handleCommand(ctx context.Context, cmd Command) {
	if cmd.WorkerID != "" && cmd.WorkerID != w.id {
		return
	}
	w.logger.Info("worker command", "command", cmd.Command, "monitor_id", cmd.MonitorID)

	switch cmd.Command {
	case CommandShutdown:
		w.Stop()
	case CommandCheckNow, CommandStartMonitor, CommandRestartMonitor:
		if cmd.MonitorID == "" {
			w.logger.Warn("monitor command without monitor id", "command", cmd.Command)
			return
		}
		// Making the row due immediately covers all three: the next poll on
		// any worker claims it and runs a fresh check.
		err := w.schedules.Activate(ctx, cmd.MonitorID, 0)
		if errors.Is(err, domain.ErrScheduleNotFound) && cmd.Command != CommandCheckNow {
			err = w.recreateSchedule(ctx, cmd.MonitorID)
		}
		if err != nil {
			w.logger.Error("activate schedule", "monitor_id", cmd.MonitorID, "error", err)
		}
	case CommandStopMonitor:
		if cmd.MonitorID == "" {
			w.logger.Warn("monitor command without monitor id", "command", cmd.Command)
			return
		}
		if err := w.schedules.Deactivate(ctx, cmd.MonitorID); err != nil {
			w.logger.Error("deactivate schedule", "monitor_id", cmd.MonitorID, "error", err)
		}
	default:
		w.logger.Warn("unknown worker command", "command", cmd.Command)
	}
}

// recreateSchedule rebuilds the schedule row for a monitor that lost it, so
// START_MONITOR works even after a delete/create cycle in the management UI.
func (w *Worker) recreateSchedule(ctx context.Context, monitorID string) error {
	m, err := w.monitors.GetByID(ctx, monitorID)
	if err != nil {
		return err
	}
	w.logger.Info("recreating schedule row", "monitor_id", monitorID)
	return w.schedules.Initialize(ctx, m.ID, m.TenantID, m.Active)
}
