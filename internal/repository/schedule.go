package repository

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// ClaimedRow pairs a claimed schedule row with its monitor so the worker
// never has to make a second round-trip before executing.
type ClaimedRow struct {
	Schedule *domain.ScheduleRow
	Monitor  *domain.Monitor
}

// The worker loop depends on interfaces, not the pgx implementations.
// Tests drive the same loop against an in-memory store.
type ScheduleRepository interface {
	// Initialize upserts the row for a monitor. A new row becomes due
	// immediately; an existing row only has tenant/active refreshed.
	Initialize(ctx context.Context, monitorID, tenantID string, active bool) error

	// Claim atomically marks up to limit due rows as owned by workerID and
	// returns them most-overdue first. Rows whose claim is older than the
	// claim timeout count as due again, as do due rows workerID already owns
	// (retries keep the claim).
	Claim(ctx context.Context, workerID string, limit int) ([]*ClaimedRow, error)

	// Release clears the claim and schedules the next check. It only touches
	// rows still owned by workerID and returns domain.ErrScheduleNotOwned
	// when the row was reclaimed in the meantime.
	Release(ctx context.Context, scheduleID, workerID string, nextIntervalSeconds int, status domain.HeartbeatStatus, ping *float64, wasFailure bool) error

	// ScheduleRetry keeps the claim (PENDING beats) and moves next_check_at
	// forward by the retry interval.
	ScheduleRetry(ctx context.Context, scheduleID string, retryIntervalSeconds int) error

	// ReleaseStale unconditionally clears claims older than the cutoff and
	// returns how many rows it recovered.
	ReleaseStale(ctx context.Context, staleCutoff time.Time) (int, error)

	// Admin commands.
	Activate(ctx context.Context, monitorID string, intervalSeconds int) error
	Deactivate(ctx context.Context, monitorID string) error
	Delete(ctx context.Context, monitorID string) error

	// Stats summarises the table; tenantID == "" means all tenants.
	Stats(ctx context.Context, tenantID string) (*domain.ScheduleStats, error)

	// SyncActiveMonitors ensures every active monitor has a schedule row.
	// Returns the number of rows created.
	SyncActiveMonitors(ctx context.Context) (int, error)
}
