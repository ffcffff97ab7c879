package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/pubsub"
)

type fakeInvalidator struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeInvalidator) Remove(monitorID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, monitorID)
}

type fakeResponseCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (f *fakeResponseCache) InvalidateMonitor(tenantID, monitorID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, tenantID+"/"+monitorID)
}

func newTestRelay(responses ResponseCache) (*Relay, *fakeInvalidator) {
	logger := slog.Default()
	stats := &fakeInvalidator{}
	hub := NewHub(logger)
	return New(pubsub.Disabled{}, hub, stats, responses, logger), stats
}

func validEnvelope(event string) *pubsub.Envelope {
	return &pubsub.Envelope{
		TenantID:  "tenant-1",
		MonitorID: "mon-1",
		UserID:    "user-1",
		Event:     event,
		Payload:   json.RawMessage(`{"status":1}`),
	}
}

func TestHandle_HeartbeatInvalidatesStats(t *testing.T) {
	r, stats := newTestRelay(nil)

	r.handle(pubsub.ChannelHeartbeat, validEnvelope(pubsub.ChannelHeartbeat))

	if len(stats.removed) != 1 || stats.removed[0] != "mon-1" {
		t.Fatalf("expected uptime invalidation for mon-1, got %v", stats.removed)
	}
	c := r.Counters()
	if c.Heartbeats != 1 || c.Errors != 0 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestHandle_ImportantBeatFlushesResponseCache(t *testing.T) {
	responses := &fakeResponseCache{}
	r, stats := newTestRelay(responses)

	r.handle(pubsub.ChannelImportantHeartbeat, validEnvelope(pubsub.ChannelImportantHeartbeat))

	if len(stats.removed) != 1 {
		t.Fatalf("important beats must also invalidate uptime, got %v", stats.removed)
	}
	if len(responses.invalidated) != 1 || responses.invalidated[0] != "tenant-1/mon-1" {
		t.Fatalf("expected response cache flush, got %v", responses.invalidated)
	}
	if got := r.Counters().ImportantHeartbeats; got != 1 {
		t.Fatalf("expected 1 important heartbeat, got %d", got)
	}
}

func TestHandle_MalformedEventDropped(t *testing.T) {
	r, stats := newTestRelay(nil)

	env := validEnvelope(pubsub.ChannelHeartbeat)
	env.UserID = ""
	r.handle(pubsub.ChannelHeartbeat, env)

	if len(stats.removed) != 0 {
		t.Fatal("malformed events must not touch caches")
	}
	c := r.Counters()
	if c.Errors != 1 || c.Heartbeats != 0 {
		t.Fatalf("expected one error and no deliveries, got %+v", c)
	}
}

func TestHandle_StatsAndCertCountOnly(t *testing.T) {
	r, stats := newTestRelay(nil)

	r.handle(pubsub.ChannelMonitorStats, validEnvelope(pubsub.ChannelMonitorStats))
	r.handle(pubsub.ChannelCertInfo, validEnvelope(pubsub.ChannelCertInfo))

	if len(stats.removed) != 0 {
		t.Fatal("stats and cert events must not invalidate the uptime cache")
	}
	c := r.Counters()
	if c.StatsUpdates != 1 || c.CertInfoUpdates != 1 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestStart_DisabledBrokerIsNotAnError(t *testing.T) {
	r, _ := newTestRelay(nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("disabled broker must not fail startup: %v", err)
	}
}

type failingTransport struct {
	pubsub.Transport
}

func (failingTransport) Subscribe(context.Context, string, pubsub.Handler) error {
	return errors.New("broker refused")
}
func (failingTransport) Enabled() bool { return true }

func TestStart_SubscribeErrorPropagates(t *testing.T) {
	logger := slog.Default()
	r := New(failingTransport{}, NewHub(logger), &fakeInvalidator{}, nil, logger)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected subscribe error")
	}
}

func TestRoom(t *testing.T) {
	if got, want := Room("t1", "u1"), "tenant:t1:user:u1"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
