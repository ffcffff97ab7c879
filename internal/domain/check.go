package domain

import "time"

// CheckResult is everything the worker loop needs to act on one executed
// check: the beat to persist, the rescheduling interval, and the
// notification decisions.
type CheckResult struct {
	Heartbeat *Heartbeat
	TLSInfo   *TLSInfo

	FirstBeat bool
	Important bool

	ShouldNotify             bool
	ShouldResendNotification bool

	NextIntervalSeconds int
	Retries             int
}

// WorkerLiveness is the ephemeral state a worker republishes on every
// heartbeat interval. It is never persisted.
type WorkerLiveness struct {
	WorkerID        string     `json:"worker_id"`
	State           string     `json:"state"` // running, stopping, stopped
	ChecksProcessed int64      `json:"checks_processed"`
	LastCheckAt     *time.Time `json:"last_check_at"`
}

const (
	WorkerStateRunning  = "running"
	WorkerStateStopping = "stopping"
	WorkerStateStopped  = "stopped"
)

// ShouldTriggerNotification decides whether a status transition is alertable:
// the first beat only alerts when it is DOWN, later beats alert on any
// UP<->DOWN flip. PENDING and MAINTENANCE transitions stay quiet.
func ShouldTriggerNotification(firstBeat bool, prev, next HeartbeatStatus) bool {
	if next == StatusPending || next == StatusMaintenance {
		return false
	}
	if firstBeat {
		return next == StatusDown
	}
	return prev != next
}
