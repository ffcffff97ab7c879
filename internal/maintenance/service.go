package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/repository"
	"github.com/robfig/cron/v3"
)

const refreshInterval = time.Minute

// Service answers "is this monitor under maintenance right now" from a
// periodically refreshed snapshot and publishes window transitions.
type Service struct {
	repo      repository.MaintenanceRepository
	transport pubsub.Transport
	logger    *slog.Logger

	mu      sync.RWMutex
	windows []*domain.MaintenanceWindow
	// under tracks which windows were active last tick, for transition events.
	under map[string]bool
}

func NewService(repo repository.MaintenanceRepository, transport pubsub.Transport, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		transport: transport,
		logger:    logger.With("component", "maintenance"),
		under:     make(map[string]bool),
	}
}

// Run refreshes the window snapshot every minute until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.refresh(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// IsUnderMaintenance reports whether any active window covers the monitor.
func (s *Service) IsUnderMaintenance(_ context.Context, monitorID string) (bool, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.windows {
		if !windowCovers(w, monitorID) {
			continue
		}
		if windowActiveAt(w, now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) refresh(ctx context.Context) {
	windows, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.Error("refresh maintenance windows", "error", err)
		return
	}

	now := time.Now()

	s.mu.Lock()
	s.windows = windows
	var transitions []*domain.MaintenanceWindow
	seen := make(map[string]bool, len(windows))
	for _, w := range windows {
		active := windowActiveAt(w, now)
		seen[w.ID] = active
		if active != s.under[w.ID] {
			transitions = append(transitions, w)
		}
	}
	s.under = seen
	s.mu.Unlock()

	for _, w := range transitions {
		s.publishTransition(ctx, w, seen[w.ID])
	}
}

func (s *Service) publishTransition(ctx context.Context, w *domain.MaintenanceWindow, entered bool) {
	event := "maintenance.ended"
	if entered {
		event = "maintenance.started"
	}
	env, err := pubsub.NewEnvelope(w.TenantID, "", "", event, map[string]any{
		"windowId":   w.ID,
		"title":      w.Title,
		"monitorIds": w.MonitorIDs,
	})
	if err != nil {
		s.logger.Error("build maintenance event", "error", err)
		return
	}
	if err := s.transport.Publish(ctx, pubsub.ChannelMaintenance, env); err != nil {
		s.logger.Warn("publish maintenance event", "window_id", w.ID, "error", err)
	}
}

func windowCovers(w *domain.MaintenanceWindow, monitorID string) bool {
	for _, id := range w.MonitorIDs {
		if id == monitorID {
			return true
		}
	}
	return false
}

// windowActiveAt evaluates one window at an instant. One-shot windows use
// the absolute range; recurring windows ask cron for the occurrence that
// could still be running.
func windowActiveAt(w *domain.MaintenanceWindow, now time.Time) bool {
	if !w.Active {
		return false
	}
	if w.StartsAt != nil && now.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && now.After(*w.EndsAt) {
		return false
	}
	if w.CronExpr == "" {
		// Pure absolute window: active iff within [starts_at, ends_at].
		return w.StartsAt != nil
	}

	sched, err := cron.ParseStandard(w.CronExpr)
	if err != nil {
		// Expression was validated by the management layer.
		return false
	}
	duration := time.Duration(w.DurationSeconds) * time.Second
	if duration <= 0 {
		return false
	}
	// An occurrence that started within the last `duration` is still open.
	start := sched.Next(now.Add(-duration))
	return !start.After(now)
}
