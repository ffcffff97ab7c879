package maintenance

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/repository"
)

func tp(t time.Time) *time.Time { return &t }

func TestWindowActiveAt_AbsoluteRange(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	w := &domain.MaintenanceWindow{
		Active:   true,
		StartsAt: tp(now.Add(-time.Hour)),
		EndsAt:   tp(now.Add(time.Hour)),
	}

	if !windowActiveAt(w, now) {
		t.Fatal("inside the range must be active")
	}
	if windowActiveAt(w, now.Add(-2*time.Hour)) {
		t.Fatal("before starts_at must be inactive")
	}
	if windowActiveAt(w, now.Add(2*time.Hour)) {
		t.Fatal("after ends_at must be inactive")
	}

	w.Active = false
	if windowActiveAt(w, now) {
		t.Fatal("disabled window must be inactive")
	}
}

func TestWindowActiveAt_CronRecurrence(t *testing.T) {
	// Nightly 02:00, one hour long.
	w := &domain.MaintenanceWindow{
		Active:          true,
		CronExpr:        "0 2 * * *",
		DurationSeconds: 3600,
	}

	during := time.Date(2026, 5, 10, 2, 30, 0, 0, time.UTC)
	if !windowActiveAt(w, during) {
		t.Fatal("02:30 is inside the nightly window")
	}

	outside := time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC)
	if windowActiveAt(w, outside) {
		t.Fatal("04:00 is outside the nightly window")
	}

	boundary := time.Date(2026, 5, 10, 2, 0, 0, 0, time.UTC)
	if !windowActiveAt(w, boundary) {
		t.Fatal("the window opens at exactly 02:00")
	}
}

func TestWindowActiveAt_CronBoundedByAbsoluteRange(t *testing.T) {
	during := time.Date(2026, 5, 10, 2, 30, 0, 0, time.UTC)
	w := &domain.MaintenanceWindow{
		Active:          true,
		CronExpr:        "0 2 * * *",
		DurationSeconds: 3600,
		EndsAt:          tp(during.Add(-24 * time.Hour)), // recurrence expired yesterday
	}

	if windowActiveAt(w, during) {
		t.Fatal("recurrence past ends_at must be inactive")
	}
}

func TestWindowActiveAt_Invalid(t *testing.T) {
	w := &domain.MaintenanceWindow{Active: true, CronExpr: "not a cron", DurationSeconds: 3600}
	if windowActiveAt(w, time.Now()) {
		t.Fatal("unparseable cron must be inactive")
	}

	w = &domain.MaintenanceWindow{Active: true, CronExpr: "0 2 * * *"}
	if windowActiveAt(w, time.Now()) {
		t.Fatal("cron window without duration must be inactive")
	}

	w = &domain.MaintenanceWindow{Active: true}
	if windowActiveAt(w, time.Now()) {
		t.Fatal("window with neither range nor cron must be inactive")
	}
}

type fakeMaintenanceRepo struct {
	windows []*domain.MaintenanceWindow
}

func (f *fakeMaintenanceRepo) ListActive(context.Context) ([]*domain.MaintenanceWindow, error) {
	return f.windows, nil
}

var _ repository.MaintenanceRepository = (*fakeMaintenanceRepo)(nil)

func TestIsUnderMaintenance(t *testing.T) {
	now := time.Now()
	repo := &fakeMaintenanceRepo{windows: []*domain.MaintenanceWindow{
		{
			ID:         "win-1",
			Active:     true,
			MonitorIDs: []string{"mon-1", "mon-2"},
			StartsAt:   tp(now.Add(-time.Hour)),
			EndsAt:     tp(now.Add(time.Hour)),
		},
	}}

	s := NewService(repo, pubsub.Disabled{}, slog.Default())
	s.refresh(context.Background())

	under, err := s.IsUnderMaintenance(context.Background(), "mon-1")
	if err != nil || !under {
		t.Fatalf("mon-1 must be under maintenance, got %v %v", under, err)
	}
	under, _ = s.IsUnderMaintenance(context.Background(), "mon-9")
	if under {
		t.Fatal("uncovered monitor must not be under maintenance")
	}
}
