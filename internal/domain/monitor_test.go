package domain

import "testing"

func TestGetAcceptedStatuscodes(t *testing.T) {
	tests := []struct {
		name     string
		accepted []string
		code     int
		want     bool
	}{
		{"default 2xx ok", nil, 200, true},
		{"default 2xx upper bound", nil, 299, true},
		{"default rejects 301", nil, 301, false},
		{"default rejects 500", nil, 500, false},
		{"single code match", []string{"301"}, 301, true},
		{"single code miss", []string{"301"}, 302, false},
		{"range match low", []string{"200-299"}, 200, true},
		{"range match high", []string{"200-299"}, 299, true},
		{"range miss", []string{"200-299"}, 300, false},
		{"multiple entries", []string{"200-299", "301", "404"}, 404, true},
		{"garbage entry ignored", []string{"abc", "200-299"}, 204, true},
		{"garbage range ignored", []string{"200-abc"}, 200, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewMonitorView(&Monitor{Config: MonitorConfig{AcceptedStatusCodes: tt.accepted}})
			if got := v.GetAcceptedStatuscodes(tt.code); got != tt.want {
				t.Fatalf("code %d with %v: got %v, want %v", tt.code, tt.accepted, got, tt.want)
			}
		})
	}
}

func TestBasicAuthHeader(t *testing.T) {
	v := NewMonitorView(&Monitor{Config: MonitorConfig{
		BasicAuthUser: "alice",
		BasicAuthPass: "s3cret",
	}})
	// base64("alice:s3cret")
	if got, want := v.BasicAuthHeader(), "Basic YWxpY2U6czNjcmV0"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	empty := NewMonitorView(&Monitor{})
	if got := empty.BasicAuthHeader(); got != "" {
		t.Fatalf("expected empty header, got %q", got)
	}
}

func TestMonitorView_Defaults(t *testing.T) {
	v := NewMonitorView(&Monitor{Config: MonitorConfig{URL: "https://example.com"}})
	if got := v.Method(); got != "GET" {
		t.Fatalf("expected default method GET, got %s", got)
	}
	if got := v.Hostname(); got != "https://example.com" {
		t.Fatalf("expected URL fallback hostname, got %s", got)
	}

	v2 := NewMonitorView(&Monitor{Config: MonitorConfig{URL: "https://example.com", Hostname: "db.internal", Method: "HEAD"}})
	if got := v2.Hostname(); got != "db.internal" {
		t.Fatalf("expected explicit hostname, got %s", got)
	}
	if got := v2.Method(); got != "HEAD" {
		t.Fatalf("expected explicit method, got %s", got)
	}
}
