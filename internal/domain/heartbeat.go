package domain

import "time"

// HeartbeatStatus matches the wire values the UI and the schema use.
type HeartbeatStatus int

const (
	StatusDown        HeartbeatStatus = 0
	StatusUp          HeartbeatStatus = 1
	StatusPending     HeartbeatStatus = 2
	StatusMaintenance HeartbeatStatus = 3
)

func (s HeartbeatStatus) String() string {
	switch s {
	case StatusDown:
		return "down"
	case StatusUp:
		return "up"
	case StatusPending:
		return "pending"
	case StatusMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// Heartbeat is the persisted result of one executed check. Rows are
// append-only; the only later mutation is resetting down_count after a
// resend notification fires.
type Heartbeat struct {
	ID        int64           `json:"id"`
	MonitorID string          `json:"monitorId"`
	TenantID  string          `json:"tenantId"`
	Time      time.Time       `json:"time"`
	Status    HeartbeatStatus `json:"status"`
	Msg       string          `json:"msg"`
	Ping      *float64        `json:"ping"` // milliseconds, fractional
	Important bool            `json:"important"`
	Duration  int             `json:"duration"` // seconds since the previous beat
	DownCount int             `json:"downCount"`
	Retries   int             `json:"retries"`
	EndTime   *time.Time      `json:"endTime"`
}

// TLSInfo describes the certificate observed during an https or tls check.
type TLSInfo struct {
	Valid         bool      `json:"valid"`
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	DaysRemaining int       `json:"daysRemaining"`
	ExpiresAt     time.Time `json:"expiresAt"`
}
