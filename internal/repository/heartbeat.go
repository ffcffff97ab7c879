package repository

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

type HeartbeatRepository interface {
	// Append persists a beat and returns it with the assigned id.
	Append(ctx context.Context, hb *domain.Heartbeat) (*domain.Heartbeat, error)

	// Latest returns the most recent beat for a monitor, or (nil, nil) when
	// none exists. Retention deletes make empty results routine, not errors.
	Latest(ctx context.Context, monitorID string) (*domain.Heartbeat, error)

	// Recent returns up to limit beats newest-first, optionally only the
	// important ones.
	Recent(ctx context.Context, monitorID string, limit int, importantOnly bool) ([]*domain.Heartbeat, error)

	// ResetDownCount zeroes down_count on one beat after a resend
	// notification fired.
	ResetDownCount(ctx context.Context, heartbeatID int64) error

	// DeleteOlderThan prunes beats past the retention horizon.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
