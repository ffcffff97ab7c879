package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsewatch/pulsewatch/internal/domain"
)

type HeartbeatRepository struct {
	pool *pgxpool.Pool
}

func NewHeartbeatRepository(pool *pgxpool.Pool) *HeartbeatRepository {
	return &HeartbeatRepository{pool: pool}
}

func (r *HeartbeatRepository) Append(ctx context.Context, hb *domain.Heartbeat) (*domain.Heartbeat, error) {
	query := `
		INSERT INTO heartbeats (
			monitor_id, tenant_id, time, status, msg, ping,
			important, duration, down_count, retries, end_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		hb.MonitorID, hb.TenantID, hb.Time, int(hb.Status), hb.Msg, hb.Ping,
		hb.Important, hb.Duration, hb.DownCount, hb.Retries, hb.EndTime,
	).Scan(&hb.ID)
	if err != nil {
		return nil, fmt.Errorf("append heartbeat: %w", err)
	}
	return hb, nil
}

func (r *HeartbeatRepository) Latest(ctx context.Context, monitorID string) (*domain.Heartbeat, error) {
	row := r.pool.QueryRow(ctx, heartbeatSelect+`
		WHERE monitor_id = $1
		ORDER BY time DESC, id DESC
		LIMIT 1`, monitorID)

	hb, err := scanHeartbeat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // no history is a valid state, not an error
	}
	return hb, err
}

func (r *HeartbeatRepository) Recent(ctx context.Context, monitorID string, limit int, importantOnly bool) ([]*domain.Heartbeat, error) {
	query := heartbeatSelect + ` WHERE monitor_id = $1`
	if importantOnly {
		query += ` AND important`
	}
	query += ` ORDER BY time DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent heartbeats: %w", err)
	}
	defer rows.Close()

	var beats []*domain.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, err
		}
		beats = append(beats, hb)
	}
	return beats, rows.Err()
}

func (r *HeartbeatRepository) ResetDownCount(ctx context.Context, heartbeatID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE heartbeats SET down_count = 0 WHERE id = $1`, heartbeatID)
	if err != nil {
		return fmt.Errorf("reset down count: %w", err)
	}
	return nil
}

func (r *HeartbeatRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM heartbeats WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune heartbeats: %w", err)
	}
	return tag.RowsAffected(), nil
}

const heartbeatSelect = `
	SELECT id, monitor_id, tenant_id, time, status, msg, ping,
	       important, duration, down_count, retries, end_time
	FROM heartbeats`

func scanHeartbeat(row rowScanner) (*domain.Heartbeat, error) {
	var (
		hb     domain.Heartbeat
		status int
	)
	err := row.Scan(
		&hb.ID, &hb.MonitorID, &hb.TenantID, &hb.Time, &status, &hb.Msg, &hb.Ping,
		&hb.Important, &hb.Duration, &hb.DownCount, &hb.Retries, &hb.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan heartbeat: %w", err)
	}
	hb.Status = domain.HeartbeatStatus(status)
	return &hb, nil
}
