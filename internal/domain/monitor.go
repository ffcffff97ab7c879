package domain

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrMonitorNotFound    = errors.New("monitor not found")
	ErrUnknownMonitorType = errors.New("unknown monitor type")
)

type MonitorType string

const (
	MonitorHTTP    MonitorType = "http"
	MonitorTCP     MonitorType = "tcp"
	MonitorPing    MonitorType = "ping"
	MonitorDNS     MonitorType = "dns"
	MonitorPush    MonitorType = "push"
	MonitorTLSCert MonitorType = "tls"
)

// Monitor is read-only to the core; the management layer owns it.
type Monitor struct {
	ID       string
	TenantID string
	UserID   string
	Name     string
	Type     MonitorType

	IntervalSeconds      int
	RetryIntervalSeconds int
	MaxRetries           int
	TimeoutSeconds       int
	ResendInterval       int // consecutive down beats before the alert is re-sent
	UpsideDown           bool
	Active               bool

	Config MonitorConfig
}

// MonitorConfig holds the type-specific settings, stored as jsonb.
type MonitorConfig struct {
	URL                 string            `json:"url,omitempty"`
	Method              string            `json:"method,omitempty"`
	Body                *string           `json:"body,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	AcceptedStatusCodes []string          `json:"acceptedStatusCodes,omitempty"` // "200-299" or "301"
	Keyword             string            `json:"keyword,omitempty"`
	InvertKeyword       bool              `json:"invertKeyword,omitempty"`
	IgnoreTLS           bool              `json:"ignoreTls,omitempty"`
	BasicAuthUser       string            `json:"basicAuthUser,omitempty"`
	BasicAuthPass       string            `json:"basicAuthPass,omitempty"`

	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`

	DNSResolver   string `json:"dnsResolver,omitempty"`
	DNSRecordType string `json:"dnsRecordType,omitempty"`

	PushToken        string `json:"pushToken,omitempty"`
	PushGraceSeconds int    `json:"pushGraceSeconds,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// MonitorView adapts a monitor row into the accessor surface type handlers
// consume. Handlers never see the raw row.
type MonitorView struct {
	m *Monitor
}

func NewMonitorView(m *Monitor) *MonitorView {
	return &MonitorView{m: m}
}

func (v *MonitorView) ID() string           { return v.m.ID }
func (v *MonitorView) IntervalSeconds() int { return v.m.IntervalSeconds }
func (v *MonitorView) TenantID() string     { return v.m.TenantID }
func (v *MonitorView) Name() string         { return v.m.Name }
func (v *MonitorView) Type() MonitorType    { return v.m.Type }
func (v *MonitorView) URL() string          { return v.m.Config.URL }
func (v *MonitorView) IsUpsideDown() bool   { return v.m.UpsideDown }
func (v *MonitorView) GetIgnoreTLS() bool   { return v.m.Config.IgnoreTLS }
func (v *MonitorView) GetTags() []string    { return v.m.Config.Tags }
func (v *MonitorView) Config() *MonitorConfig {
	return &v.m.Config
}

// Hostname returns the configured host, falling back to the URL host for
// monitors created before hostname was a separate field.
func (v *MonitorView) Hostname() string {
	if v.m.Config.Hostname != "" {
		return v.m.Config.Hostname
	}
	return v.m.Config.URL
}

func (v *MonitorView) Port() int { return v.m.Config.Port }

// Method defaults to GET.
func (v *MonitorView) Method() string {
	if v.m.Config.Method == "" {
		return "GET"
	}
	return v.m.Config.Method
}

// GetAcceptedStatuscodes reports whether an HTTP status code is acceptable.
// Entries are single codes ("301") or inclusive ranges ("200-299"); an empty
// list accepts 2xx.
func (v *MonitorView) GetAcceptedStatuscodes(code int) bool {
	accepted := v.m.Config.AcceptedStatusCodes
	if len(accepted) == 0 {
		return code >= 200 && code < 300
	}
	for _, entry := range accepted {
		if lo, hi, ok := parseStatusRange(entry); ok && code >= lo && code <= hi {
			return true
		}
	}
	return false
}

// BasicAuthHeader returns the Authorization header value, or "" when basic
// auth is not configured.
func (v *MonitorView) BasicAuthHeader() string {
	if v.m.Config.BasicAuthUser == "" {
		return ""
	}
	creds := v.m.Config.BasicAuthUser + ":" + v.m.Config.BasicAuthPass
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

func parseStatusRange(entry string) (lo, hi int, ok bool) {
	if before, after, found := strings.Cut(entry, "-"); found {
		l, err1 := strconv.Atoi(strings.TrimSpace(before))
		h, err2 := strconv.Atoi(strings.TrimSpace(after))
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return l, h, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(entry))
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}
