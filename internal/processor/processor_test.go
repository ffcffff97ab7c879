package processor_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/processor"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
)

type fakeHeartbeats struct {
	mu        sync.Mutex
	nextID    int64
	appended  []*domain.Heartbeat
	resets    []int64
	appendErr error
}

func (f *fakeHeartbeats) Append(_ context.Context, hb *domain.Heartbeat) (*domain.Heartbeat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.nextID++
	hb.ID = f.nextID
	f.appended = append(f.appended, hb)
	return hb, nil
}

func (f *fakeHeartbeats) Latest(context.Context, string) (*domain.Heartbeat, error) { return nil, nil }

func (f *fakeHeartbeats) Recent(context.Context, string, int, bool) ([]*domain.Heartbeat, error) {
	return nil, nil
}

func (f *fakeHeartbeats) ResetDownCount(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, id)
	return nil
}

func (f *fakeHeartbeats) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// fakeTransport records publishes in order so tests can assert the
// append-before-publish contract and channel fan-out.
type fakeTransport struct {
	mu        sync.Mutex
	published []publishedEvent
	failWith  error
}

type publishedEvent struct {
	channel string
	env     *pubsub.Envelope
}

func (f *fakeTransport) Publish(_ context.Context, channel string, env *pubsub.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, publishedEvent{channel: channel, env: env})
	return nil
}

func (f *fakeTransport) Subscribe(context.Context, string, pubsub.Handler) error { return nil }
func (f *fakeTransport) Enabled() bool                                           { return true }
func (f *fakeTransport) Healthy() bool                                           { return true }
func (f *fakeTransport) Ping(context.Context) error                              { return nil }
func (f *fakeTransport) Close() error                                            { return nil }

func (f *fakeTransport) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	for i, p := range f.published {
		out[i] = p.channel
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) Notify(context.Context, *domain.Monitor, *domain.Heartbeat) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

func newTestProcessor(hb *fakeHeartbeats, tr pubsub.Transport, notifiers ...notify.Notifier) *processor.Processor {
	logger := slog.Default()
	calcs := uptime.NewCache(hb, logger)
	return processor.New(hb, calcs, tr, notify.NewDispatcher(logger, notifiers...), logger)
}

func testMonitor() *domain.Monitor {
	return &domain.Monitor{ID: "mon-1", TenantID: "tenant-1", UserID: "user-1", Name: "api", Type: domain.MonitorHTTP}
}

func upResult() *domain.CheckResult {
	ping := 12.5
	return &domain.CheckResult{
		Heartbeat: &domain.Heartbeat{
			MonitorID: "mon-1",
			TenantID:  "tenant-1",
			Time:      time.Now().UTC(),
			Status:    domain.StatusUp,
			Ping:      &ping,
		},
	}
}

func TestProcess_AppendsAndPublishes(t *testing.T) {
	hb := &fakeHeartbeats{}
	tr := &fakeTransport{}
	p := newTestProcessor(hb, tr)

	res := upResult()
	if err := p.Process(context.Background(), testMonitor(), res); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(hb.appended) != 1 {
		t.Fatalf("expected 1 appended beat, got %d", len(hb.appended))
	}
	if hb.appended[0].EndTime == nil {
		t.Fatal("append must carry the calculator bucket end time")
	}

	channels := tr.channels()
	want := []string{pubsub.ChannelHeartbeat, pubsub.ChannelMonitorStats}
	if len(channels) != len(want) {
		t.Fatalf("expected channels %v, got %v", want, channels)
	}
	for i := range want {
		if channels[i] != want[i] {
			t.Fatalf("expected channels %v, got %v", want, channels)
		}
	}
}

func TestProcess_ImportantBeatFansOut(t *testing.T) {
	hb := &fakeHeartbeats{}
	tr := &fakeTransport{}
	p := newTestProcessor(hb, tr)

	res := upResult()
	res.Important = true
	res.Heartbeat.Important = true
	res.TLSInfo = &domain.TLSInfo{Valid: true, DaysRemaining: 42}

	if err := p.Process(context.Background(), testMonitor(), res); err != nil {
		t.Fatalf("process: %v", err)
	}

	channels := tr.channels()
	want := []string{
		pubsub.ChannelHeartbeat,
		pubsub.ChannelImportantHeartbeat,
		pubsub.ChannelMonitorStatus,
		pubsub.ChannelMonitorStats,
		pubsub.ChannelCertInfo,
	}
	if len(channels) != len(want) {
		t.Fatalf("expected channels %v, got %v", want, channels)
	}
	for i := range want {
		if channels[i] != want[i] {
			t.Fatalf("expected channels %v, got %v", want, channels)
		}
	}

	tr.mu.Lock()
	env := tr.published[0].env
	tr.mu.Unlock()
	if env.TenantID != "tenant-1" || env.MonitorID != "mon-1" || env.UserID != "user-1" {
		t.Fatalf("envelope missing identity fields: %+v", env)
	}
}

func TestProcess_AppendFailureStopsPipeline(t *testing.T) {
	hb := &fakeHeartbeats{appendErr: errors.New("disk full")}
	tr := &fakeTransport{}
	p := newTestProcessor(hb, tr)

	err := p.Process(context.Background(), testMonitor(), upResult())
	if err == nil {
		t.Fatal("expected append error to propagate")
	}
	if len(tr.channels()) != 0 {
		t.Fatal("nothing may be published when the append fails")
	}
}

func TestProcess_PublishFailureIsBestEffort(t *testing.T) {
	hb := &fakeHeartbeats{}
	tr := &fakeTransport{failWith: errors.New("broker down")}
	p := newTestProcessor(hb, tr)

	if err := p.Process(context.Background(), testMonitor(), upResult()); err != nil {
		t.Fatalf("publish failure must not fail the pipeline: %v", err)
	}
	if len(hb.appended) != 1 {
		t.Fatal("beat must persist despite broker outage")
	}
}

func TestProcess_NotifiesOnImportantTransition(t *testing.T) {
	hb := &fakeHeartbeats{}
	n := &recordingNotifier{}
	p := newTestProcessor(hb, pubsub.Disabled{}, n)

	res := upResult()
	res.Important = true
	res.ShouldNotify = true

	if err := p.Process(context.Background(), testMonitor(), res); err != nil {
		t.Fatalf("process: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("expected 1 notification, got %d", n.calls)
	}
}

func TestProcess_ResendResetsDownCount(t *testing.T) {
	hb := &fakeHeartbeats{}
	n := &recordingNotifier{}
	p := newTestProcessor(hb, pubsub.Disabled{}, n)

	res := upResult()
	res.Heartbeat.Status = domain.StatusDown
	res.Heartbeat.DownCount = 3
	res.ShouldResendNotification = true

	if err := p.Process(context.Background(), testMonitor(), res); err != nil {
		t.Fatalf("process: %v", err)
	}
	if n.calls != 1 {
		t.Fatalf("expected resend notification, got %d calls", n.calls)
	}
	if len(hb.resets) != 1 || hb.resets[0] != res.Heartbeat.ID {
		t.Fatalf("expected down count reset on beat %d, got %v", res.Heartbeat.ID, hb.resets)
	}
}

func TestProcess_ImportantBeatDoesNotResetDownCount(t *testing.T) {
	hb := &fakeHeartbeats{}
	p := newTestProcessor(hb, pubsub.Disabled{})

	res := upResult()
	res.Important = true
	res.ShouldResendNotification = true

	if err := p.Process(context.Background(), testMonitor(), res); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(hb.resets) != 0 {
		t.Fatal("important beats already reset down_count in the executor")
	}
}
