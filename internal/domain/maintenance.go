package domain

import "time"

// MaintenanceWindow silences checks for its monitors. A window is either a
// one-shot absolute range or a cron recurrence with a duration.
type MaintenanceWindow struct {
	ID         string
	TenantID   string
	Title      string
	MonitorIDs []string
	Active     bool

	StartsAt *time.Time
	EndsAt   *time.Time

	CronExpr        string // empty for one-shot windows
	DurationSeconds int    // length of each cron occurrence
}
