package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// MaintenanceChecker answers whether a monitor is inside an active window.
type MaintenanceChecker interface {
	IsUnderMaintenance(ctx context.Context, monitorID string) (bool, error)
}

// Executor runs one check and turns the outcome into a CheckResult. It is
// stateless: the previous beat and retry counter come in as arguments, so
// any worker can execute any monitor.
type Executor struct {
	registry *Registry
	maint    MaintenanceChecker
	srv      *ServerContext
	logger   *slog.Logger
}

func New(registry *Registry, maint MaintenanceChecker, srv *ServerContext, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		maint:    maint,
		srv:      srv,
		logger:   logger.With("component", "executor"),
	}
}

// Execute never returns an error: every failure mode is folded into the
// returned heartbeat so the worker loop stays simple.
func (e *Executor) Execute(ctx context.Context, m *domain.Monitor, prev *domain.Heartbeat, retries int) *domain.CheckResult {
	start := time.Now()

	hb := &domain.Heartbeat{
		MonitorID: m.ID,
		TenantID:  m.TenantID,
		Time:      start.UTC(),
		Status:    domain.StatusDown,
	}
	firstBeat := prev == nil
	if !firstBeat {
		hb.DownCount = prev.DownCount
		hb.Duration = int(start.UTC().Sub(prev.Time).Seconds())
	}
	// For upside-down monitors an unreachable target is the good outcome, so
	// a handler failure must land on UP.
	if m.UpsideDown {
		hb.Status = domain.StatusUp
	}

	timeout := effectiveTimeout(m)

	var tlsInfo *domain.TLSInfo
	checkErr := error(nil)

	if under := e.underMaintenance(ctx, m.ID); under {
		hb.Status = domain.StatusMaintenance
		hb.Msg = "monitor under maintenance"
		retries = 0
	} else {
		tlsInfo, checkErr = e.runCheck(ctx, m, hb, timeout)
		if checkErr == nil && m.UpsideDown {
			// Reachable target on an upside-down monitor is the failure case.
			hb.Status = domain.StatusDown
			checkErr = errors.New("target is reachable")
		}

		if checkErr != nil {
			hb.Msg = classify(checkErr, timeout)

			switch {
			case m.UpsideDown && hb.Status == domain.StatusUp:
				retries = 0
			case retries < m.MaxRetries:
				retries++
				hb.Status = domain.StatusPending
			default:
				retries++
			}
		} else {
			retries = 0
		}
	}

	hb.Retries = retries

	important := firstBeat || prev.Status != hb.Status
	hb.Important = important

	// Down-count bookkeeping drives the resend-notification cadence.
	shouldResend := false
	if important {
		hb.DownCount = 0
	} else if hb.Status == domain.StatusDown && m.ResendInterval > 0 {
		hb.DownCount++
		shouldResend = hb.DownCount >= m.ResendInterval
	}

	nextInterval := m.IntervalSeconds
	if hb.Status == domain.StatusPending && m.RetryIntervalSeconds > 0 {
		nextInterval = m.RetryIntervalSeconds
	}

	if hb.Ping == nil && hb.Status != domain.StatusMaintenance {
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		hb.Ping = &elapsed
	}

	var prevStatus domain.HeartbeatStatus
	if !firstBeat {
		prevStatus = prev.Status
	}

	return &domain.CheckResult{
		Heartbeat:                hb,
		TLSInfo:                  tlsInfo,
		FirstBeat:                firstBeat,
		Important:                important,
		ShouldNotify:             important && domain.ShouldTriggerNotification(firstBeat, prevStatus, hb.Status),
		ShouldResendNotification: shouldResend,
		NextIntervalSeconds:      nextInterval,
		Retries:                  retries,
	}
}

// runCheck dispatches to the type handler under the per-check deadline and
// converts panics into plain check failures.
func (e *Executor) runCheck(ctx context.Context, m *domain.Monitor, hb *domain.Heartbeat, timeout time.Duration) (tlsInfo *domain.TLSInfo, err error) {
	handler, ok := e.registry.Get(m.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMonitorType, m.Type)
	}

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic", "monitor_id", m.ID, "type", m.Type, "panic", r)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	view := domain.NewMonitorView(m)
	tlsInfo, err = handler.Check(checkCtx, view, hb, e.srv)
	if err != nil {
		return nil, err
	}
	if hb.Status != domain.StatusUp && !handler.AllowCustomStatus() {
		// Contract violation: a handler without custom-status rights must
		// either set UP or fail.
		return nil, fmt.Errorf("handler for %q returned success without setting status up", m.Type)
	}
	return tlsInfo, nil
}

func (e *Executor) underMaintenance(ctx context.Context, monitorID string) bool {
	under, err := e.maint.IsUnderMaintenance(ctx, monitorID)
	if err != nil {
		e.logger.Warn("maintenance lookup failed, assuming none", "monitor_id", monitorID, "error", err)
		return false
	}
	return under
}

// effectiveTimeout is the monitor's timeout, or 80% of its interval when the
// monitor does not set one.
func effectiveTimeout(m *domain.Monitor) time.Duration {
	if m.TimeoutSeconds > 0 {
		return time.Duration(m.TimeoutSeconds) * time.Second
	}
	return time.Duration(float64(m.IntervalSeconds)*0.8) * time.Second
}

func classify(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Sprintf("timeout (%ds)", int(timeout.Seconds()))
	}
	return err.Error()
}
