package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// MonitorRepository reads monitors owned by the management layer. The core
// never writes this table.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

const monitorSelect = `
	SELECT id, tenant_id, user_id, name, type,
	       interval_seconds, retry_interval_seconds, max_retries, timeout_seconds,
	       resend_interval, upside_down, active, config
	FROM monitors`

func (r *MonitorRepository) GetByID(ctx context.Context, id string) (*domain.Monitor, error) {
	row := r.pool.QueryRow(ctx, monitorSelect+` WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMonitorNotFound
	}
	return m, err
}

func (r *MonitorRepository) ListActive(ctx context.Context) ([]*domain.Monitor, error) {
	rows, err := r.pool.Query(ctx, monitorSelect+` WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func scanMonitor(row rowScanner) (*domain.Monitor, error) {
	var (
		m      domain.Monitor
		config []byte
	)
	err := row.Scan(
		&m.ID, &m.TenantID, &m.UserID, &m.Name, &m.Type,
		&m.IntervalSeconds, &m.RetryIntervalSeconds, &m.MaxRetries, &m.TimeoutSeconds,
		&m.ResendInterval, &m.UpsideDown, &m.Active, &config,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan monitor: %w", err)
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &m.Config); err != nil {
			return nil, fmt.Errorf("parse monitor config %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

// MaintenanceRepository reads maintenance windows; read-only like monitors.
type MaintenanceRepository struct {
	pool *pgxpool.Pool
}

func NewMaintenanceRepository(pool *pgxpool.Pool) *MaintenanceRepository {
	return &MaintenanceRepository{pool: pool}
}

func (r *MaintenanceRepository) ListActive(ctx context.Context) ([]*domain.MaintenanceWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT mw.id, mw.tenant_id, mw.title, mw.active,
		       mw.starts_at, mw.ends_at, mw.cron_expr, mw.duration_seconds,
		       COALESCE(array_agg(mwm.monitor_id) FILTER (WHERE mwm.monitor_id IS NOT NULL), '{}')
		FROM maintenance_windows mw
		LEFT JOIN maintenance_window_monitors mwm ON mwm.window_id = mw.id
		WHERE mw.active
		GROUP BY mw.id`)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()

	var windows []*domain.MaintenanceWindow
	for rows.Next() {
		var w domain.MaintenanceWindow
		if err := rows.Scan(
			&w.ID, &w.TenantID, &w.Title, &w.Active,
			&w.StartsAt, &w.EndsAt, &w.CronExpr, &w.DurationSeconds,
			&w.MonitorIDs,
		); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		windows = append(windows, &w)
	}
	return windows, rows.Err()
}

// PushRepository reads push arrivals recorded by the HTTP push route.
type PushRepository struct {
	pool *pgxpool.Pool
}

func NewPushRepository(pool *pgxpool.Pool) *PushRepository {
	return &PushRepository{pool: pool}
}

func (r *PushRepository) LastPush(ctx context.Context, token string) (*time.Time, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT pushed_at FROM push_events WHERE token = $1 ORDER BY pushed_at DESC LIMIT 1`,
		token,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last push: %w", err)
	}
	return &t, nil
}
