package repository

import (
	"context"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// MonitorRepository is read-only: the management layer owns monitors.
type MonitorRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Monitor, error)
	ListActive(ctx context.Context) ([]*domain.Monitor, error)
}

// MaintenanceRepository reads the maintenance windows the management layer
// configured.
type MaintenanceRepository interface {
	ListActive(ctx context.Context) ([]*domain.MaintenanceWindow, error)
}

// PushRepository reads the last time an external push arrived for a token.
// The HTTP push route (outside the core) appends to the push table.
type PushRepository interface {
	LastPush(ctx context.Context, token string) (*time.Time, error)
}
