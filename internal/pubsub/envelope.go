package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Channel names are part of the wire contract with API processes.
const (
	ChannelHeartbeat          = "heartbeat"
	ChannelImportantHeartbeat = "heartbeat.important"
	ChannelMonitorStatus      = "monitor.status"
	ChannelMonitorStats       = "monitor.stats"
	ChannelCertInfo           = "cert.info"
	ChannelMaintenance        = "maintenance"
	ChannelWorkerHeartbeat    = "worker.heartbeat"
	ChannelWorkerCommand      = "worker.command"
)

// Envelope frames every message. Worker-level channels (worker.heartbeat,
// worker.command) leave the tenant/monitor/user fields empty.
type Envelope struct {
	TenantID  string          `json:"tenantId,omitempty"`
	MonitorID string          `json:"monitorId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals payload and stamps the envelope.
func NewEnvelope(tenantID, monitorID, userID, event string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return &Envelope{
		TenantID:  tenantID,
		MonitorID: monitorID,
		UserID:    userID,
		Event:     event,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ValidateMonitorEvent checks the fields relay consumers require on
// monitor-scoped channels. Malformed events are dropped, not retried.
func (e *Envelope) ValidateMonitorEvent() error {
	switch {
	case e == nil:
		return errors.New("nil envelope")
	case e.TenantID == "":
		return errors.New("missing tenantId")
	case e.MonitorID == "":
		return errors.New("missing monitorId")
	case e.UserID == "":
		return errors.New("missing userId")
	case len(e.Payload) == 0:
		return errors.New("missing payload")
	}
	return nil
}

// StatsPayload is published on monitor.stats after each processed beat.
type StatsPayload struct {
	Uptime24h       float64 `json:"uptime24h"`
	Uptime30d       float64 `json:"uptime30d"`
	AvgPingLastHour float64 `json:"avgPingLastHour"`
}

// StatusPayload is published on monitor.status for important beats.
type StatusPayload struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}
