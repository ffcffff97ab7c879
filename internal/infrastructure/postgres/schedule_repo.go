package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/repository"
)

// claimTimeout is how long a claim protects a row from other workers. It is
// strictly below the sweeper's stale threshold so a normal release never
// races the sweeper.
const claimTimeout = 60 * time.Second

type ScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, logger: logger.With("component", "schedule_repo")}
}

func (r *ScheduleRepository) Initialize(ctx context.Context, monitorID, tenantID string, active bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO monitor_schedule (monitor_id, tenant_id, active, next_check_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (monitor_id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id,
		    active    = EXCLUDED.active,
		    updated_at = NOW()`,
		monitorID, tenantID, active)
	if err != nil {
		return fmt.Errorf("initialize schedule: %w", err)
	}
	return nil
}

// Claim marks up to limit due rows as owned by workerID and returns them with
// their monitors. FOR UPDATE SKIP LOCKED prevents double-claims across
// workers; the claimed_at predicate lets abandoned claims be retaken after
// the claim timeout. A worker may always retake its own rows: retries keep
// the claim, so the owner must see the row again when the retry comes due.
func (r *ScheduleRepository) Claim(ctx context.Context, workerID string, limit int) ([]*repository.ClaimedRow, error) {
	query := `
		UPDATE monitor_schedule
		SET    claimed_by = $1,
		       claimed_at = NOW(),
		       updated_at = NOW()
		WHERE id IN (
			SELECT id FROM monitor_schedule
			WHERE  active
			  AND  next_check_at <= NOW()
			  AND  (claimed_by IS NULL OR claimed_by = $1 OR claimed_at < NOW() - $3::interval)
			ORDER BY next_check_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, monitor_id, tenant_id, active, next_check_at,
		          claimed_by, claimed_at, last_check_at, last_status, last_ping,
		          retry_count, consecutive_failures, created_at, updated_at`

	rows, err := r.pool.Query(ctx, query, workerID, limit, claimTimeout.String())
	if err != nil {
		return nil, fmt.Errorf("claim schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.ScheduleRow
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}

	// RETURNING does not preserve the subquery order; most overdue first.
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].NextCheckAt.Equal(schedules[j].NextCheckAt) {
			return schedules[i].NextCheckAt.Before(schedules[j].NextCheckAt)
		}
		return schedules[i].ID < schedules[j].ID
	})

	ids := make([]string, 0, len(schedules))
	for _, s := range schedules {
		ids = append(ids, s.MonitorID)
	}
	monitors, err := r.monitorsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	claimed := make([]*repository.ClaimedRow, 0, len(schedules))
	for _, s := range schedules {
		m, ok := monitors[s.MonitorID]
		if !ok {
			// Monitor deleted under us; drop the orphan row.
			r.logger.Warn("schedule row without monitor, deleting", "monitor_id", s.MonitorID)
			_ = r.Delete(ctx, s.MonitorID)
			continue
		}
		claimed = append(claimed, &repository.ClaimedRow{Schedule: s, Monitor: m})
	}
	return claimed, nil
}

func (r *ScheduleRepository) Release(ctx context.Context, scheduleID, workerID string, nextIntervalSeconds int, status domain.HeartbeatStatus, ping *float64, wasFailure bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE monitor_schedule
		SET    claimed_by    = NULL,
		       claimed_at    = NULL,
		       next_check_at = NOW() + make_interval(secs => $3),
		       last_check_at = NOW(),
		       last_status   = $4,
		       last_ping     = $5,
		       retry_count   = 0,
		       consecutive_failures = CASE WHEN $6 THEN consecutive_failures + 1 ELSE 0 END,
		       updated_at    = NOW()
		WHERE id = $1 AND claimed_by = $2`,
		scheduleID, workerID, nextIntervalSeconds, int(status), ping, wasFailure)
	if err != nil {
		return fmt.Errorf("release schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM monitor_schedule WHERE id = $1)`, scheduleID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("release schedule: %w", err)
		}
		if !exists {
			return domain.ErrScheduleNotFound
		}
		return domain.ErrScheduleNotOwned
	}
	return nil
}

func (r *ScheduleRepository) ScheduleRetry(ctx context.Context, scheduleID string, retryIntervalSeconds int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE monitor_schedule
		SET    next_check_at = NOW() + make_interval(secs => $2),
		       retry_count   = retry_count + 1,
		       updated_at    = NOW()
		WHERE id = $1`,
		scheduleID, retryIntervalSeconds)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) ReleaseStale(ctx context.Context, staleCutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE monitor_schedule
		SET    claimed_by = NULL,
		       claimed_at = NULL,
		       updated_at = NOW()
		WHERE  claimed_by IS NOT NULL
		  AND  claimed_at < $1`,
		staleCutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ScheduleRepository) Activate(ctx context.Context, monitorID string, intervalSeconds int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE monitor_schedule
		SET    active        = TRUE,
		       next_check_at = NOW() + make_interval(secs => $2),
		       updated_at    = NOW()
		WHERE monitor_id = $1`,
		monitorID, intervalSeconds)
	if err != nil {
		return fmt.Errorf("activate schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) Deactivate(ctx context.Context, monitorID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE monitor_schedule
		SET    active     = FALSE,
		       claimed_by = NULL,
		       claimed_at = NULL,
		       updated_at = NOW()
		WHERE monitor_id = $1`,
		monitorID)
	if err != nil {
		return fmt.Errorf("deactivate schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, monitorID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM monitor_schedule WHERE monitor_id = $1`, monitorID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (r *ScheduleRepository) Stats(ctx context.Context, tenantID string) (*domain.ScheduleStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       COUNT(*) FILTER (WHERE claimed_by IS NOT NULL),
		       COUNT(*) FILTER (WHERE active AND next_check_at <= NOW()
		                          AND (claimed_by IS NULL OR claimed_at < NOW() - $1::interval))
		FROM monitor_schedule`

	args := []any{claimTimeout.String()}
	if tenantID != "" {
		query += ` WHERE tenant_id = $2`
		args = append(args, tenantID)
	}

	var s domain.ScheduleStats
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&s.Total, &s.Active, &s.Claimed, &s.Due); err != nil {
		return nil, fmt.Errorf("schedule stats: %w", err)
	}
	return &s, nil
}

func (r *ScheduleRepository) SyncActiveMonitors(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO monitor_schedule (monitor_id, tenant_id, active, next_check_at)
		SELECT m.id, m.tenant_id, TRUE, NOW()
		FROM monitors m
		WHERE m.active
		  AND NOT EXISTS (SELECT 1 FROM monitor_schedule ms WHERE ms.monitor_id = m.id)`)
	if err != nil {
		return 0, fmt.Errorf("sync active monitors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *ScheduleRepository) monitorsByID(ctx context.Context, ids []string) (map[string]*domain.Monitor, error) {
	rows, err := r.pool.Query(ctx, monitorSelect+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load claimed monitors: %w", err)
	}
	defer rows.Close()

	monitors := make(map[string]*domain.Monitor, len(ids))
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors[m.ID] = m
	}
	return monitors, rows.Err()
}

func scanSchedule(row rowScanner) (*domain.ScheduleRow, error) {
	var (
		s          domain.ScheduleRow
		lastStatus *int
	)
	err := row.Scan(
		&s.ID, &s.MonitorID, &s.TenantID, &s.Active, &s.NextCheckAt,
		&s.ClaimedBy, &s.ClaimedAt, &s.LastCheckAt, &lastStatus, &s.LastPing,
		&s.RetryCount, &s.ConsecutiveFailures, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if lastStatus != nil {
		st := domain.HeartbeatStatus(*lastStatus)
		s.LastStatus = &st
	}
	return &s, nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}
