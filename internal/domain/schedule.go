package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleNotFound = errors.New("schedule row not found")
	// ErrScheduleNotOwned is returned when a release targets a row that was
	// reclaimed by another worker after the claim timeout elapsed.
	ErrScheduleNotOwned = errors.New("schedule row not owned by this worker")
)

// ScheduleRow is the coordination record linking a monitor to its next due
// time and current owner. The schedule store is its single mutator.
type ScheduleRow struct {
	ID        string
	MonitorID string
	TenantID  string
	Active    bool

	NextCheckAt time.Time
	ClaimedBy   *string
	ClaimedAt   *time.Time

	LastCheckAt *time.Time
	LastStatus  *HeartbeatStatus
	LastPing    *float64

	RetryCount          int
	ConsecutiveFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleStats summarises the schedule table, optionally per tenant.
type ScheduleStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Claimed int `json:"claimed"`
	Due     int `json:"due"`
}
