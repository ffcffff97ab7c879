package executor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

type fakeHandler struct {
	err    error
	status domain.HeartbeatStatus
	ping   *float64
	tls    *domain.TLSInfo
	panics bool
}

func (f *fakeHandler) SupportsConditions() bool     { return false }
func (f *fakeHandler) ConditionVariables() []string { return nil }
func (f *fakeHandler) AllowCustomStatus() bool      { return false }

func (f *fakeHandler) Check(_ context.Context, _ *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	if f.panics {
		panic("handler exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	hb.Status = f.status
	hb.Ping = f.ping
	return f.tls, nil
}

type noMaintenance struct{}

func (noMaintenance) IsUnderMaintenance(context.Context, string) (bool, error) { return false, nil }

type alwaysMaintenance struct{}

func (alwaysMaintenance) IsUnderMaintenance(context.Context, string) (bool, error) { return true, nil }

func newTestExecutor(t *testing.T, handler Handler, maint MaintenanceChecker) *Executor {
	t.Helper()
	registry := NewRegistry()
	registry.Register("fake", handler)
	return New(registry, maint, &ServerContext{Logger: slog.Default()}, slog.Default())
}

func testMonitor() *domain.Monitor {
	return &domain.Monitor{
		ID:                   "mon-1",
		TenantID:             "tenant-1",
		Type:                 "fake",
		IntervalSeconds:      60,
		RetryIntervalSeconds: 20,
		MaxRetries:           2,
		TimeoutSeconds:       5,
	}
}

func ms(f float64) *float64 { return &f }

func TestExecute_FirstBeatUpIsImportantNoNotify(t *testing.T) {
	e := newTestExecutor(t, &fakeHandler{status: domain.StatusUp, ping: ms(42)}, noMaintenance{})

	res := e.Execute(context.Background(), testMonitor(), nil, 0)

	if res.Heartbeat.Status != domain.StatusUp {
		t.Fatalf("expected UP, got %s", res.Heartbeat.Status)
	}
	if !res.FirstBeat || !res.Important {
		t.Fatal("first beat must be important")
	}
	if res.ShouldNotify {
		t.Fatal("first UP beat must not notify")
	}
	if *res.Heartbeat.Ping != 42 {
		t.Fatalf("expected handler ping kept, got %f", *res.Heartbeat.Ping)
	}
	if res.NextIntervalSeconds != 60 {
		t.Fatalf("expected full interval, got %d", res.NextIntervalSeconds)
	}
}

func TestExecute_FirstBeatDownNotifies(t *testing.T) {
	m := testMonitor()
	m.MaxRetries = 0
	e := newTestExecutor(t, &fakeHandler{err: errors.New("connection refused")}, noMaintenance{})

	res := e.Execute(context.Background(), m, nil, 0)

	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("expected DOWN, got %s", res.Heartbeat.Status)
	}
	if !res.ShouldNotify {
		t.Fatal("first DOWN beat must notify")
	}
	if res.Heartbeat.Msg != "connection refused" {
		t.Fatalf("unexpected msg %q", res.Heartbeat.Msg)
	}
}

func TestExecute_RetriesBecomePendingThenDown(t *testing.T) {
	m := testMonitor() // MaxRetries = 2
	e := newTestExecutor(t, &fakeHandler{err: errors.New("boom")}, noMaintenance{})

	prev := &domain.Heartbeat{Status: domain.StatusUp, Time: time.Now().UTC()}

	// Attempts 1 and 2: PENDING while retries remain.
	res := e.Execute(context.Background(), m, prev, 0)
	if res.Heartbeat.Status != domain.StatusPending || res.Retries != 1 {
		t.Fatalf("attempt 1: got %s retries=%d", res.Heartbeat.Status, res.Retries)
	}
	if res.ShouldNotify {
		t.Fatal("PENDING must not notify")
	}
	if res.NextIntervalSeconds != 20 {
		t.Fatalf("PENDING must use retry interval, got %d", res.NextIntervalSeconds)
	}

	res = e.Execute(context.Background(), m, res.Heartbeat, res.Retries)
	if res.Heartbeat.Status != domain.StatusPending || res.Retries != 2 {
		t.Fatalf("attempt 2: got %s retries=%d", res.Heartbeat.Status, res.Retries)
	}

	// Attempt 3: retries exhausted, DOWN, alert fires.
	res = e.Execute(context.Background(), m, res.Heartbeat, res.Retries)
	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("attempt 3: expected DOWN, got %s", res.Heartbeat.Status)
	}
	if !res.Important || !res.ShouldNotify {
		t.Fatal("transition to DOWN must be important and notify")
	}
	if res.NextIntervalSeconds != 60 {
		t.Fatalf("DOWN must return to full interval, got %d", res.NextIntervalSeconds)
	}
}

func TestExecute_RecoveryNotifies(t *testing.T) {
	e := newTestExecutor(t, &fakeHandler{status: domain.StatusUp}, noMaintenance{})
	prev := &domain.Heartbeat{Status: domain.StatusDown, Time: time.Now().UTC(), Retries: 3}

	res := e.Execute(context.Background(), testMonitor(), prev, prev.Retries)

	if res.Heartbeat.Status != domain.StatusUp {
		t.Fatalf("expected UP, got %s", res.Heartbeat.Status)
	}
	if !res.Important || !res.ShouldNotify {
		t.Fatal("recovery must be important and notify")
	}
	if res.Retries != 0 {
		t.Fatalf("recovery must reset retries, got %d", res.Retries)
	}
}

func TestExecute_ResendAfterConsecutiveDownBeats(t *testing.T) {
	m := testMonitor()
	m.MaxRetries = 0
	m.ResendInterval = 3
	e := newTestExecutor(t, &fakeHandler{err: errors.New("down")}, noMaintenance{})

	prev := &domain.Heartbeat{Status: domain.StatusUp, Time: time.Now().UTC()}

	// Transition beat: important, down_count resets.
	res := e.Execute(context.Background(), m, prev, 0)
	if !res.Important || res.Heartbeat.DownCount != 0 {
		t.Fatalf("transition beat: important=%v down_count=%d", res.Important, res.Heartbeat.DownCount)
	}

	// Two quiet DOWN beats.
	for i := 1; i <= 2; i++ {
		res = e.Execute(context.Background(), m, res.Heartbeat, res.Retries)
		if res.ShouldResendNotification {
			t.Fatalf("beat %d: resend fired too early", i)
		}
		if res.Heartbeat.DownCount != i {
			t.Fatalf("beat %d: down_count=%d", i, res.Heartbeat.DownCount)
		}
	}

	// Third consecutive non-important DOWN beat hits the resend interval.
	res = e.Execute(context.Background(), m, res.Heartbeat, res.Retries)
	if !res.ShouldResendNotification {
		t.Fatal("expected resend on third consecutive down beat")
	}
	if res.Important {
		t.Fatal("resend beat must not be important")
	}
}

func TestExecute_UpsideDown(t *testing.T) {
	m := testMonitor()
	m.UpsideDown = true
	m.MaxRetries = 0

	// Reachable target flips to DOWN with a synthetic reason.
	e := newTestExecutor(t, &fakeHandler{status: domain.StatusUp}, noMaintenance{})
	res := e.Execute(context.Background(), m, nil, 0)
	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("reachable upside-down target must be DOWN, got %s", res.Heartbeat.Status)
	}
	if res.Heartbeat.Msg != "target is reachable" {
		t.Fatalf("unexpected msg %q", res.Heartbeat.Msg)
	}

	// Unreachable target is the good outcome: UP, no retry ramp.
	e = newTestExecutor(t, &fakeHandler{err: errors.New("connection refused")}, noMaintenance{})
	res = e.Execute(context.Background(), m, nil, 5)
	if res.Heartbeat.Status != domain.StatusUp {
		t.Fatalf("unreachable upside-down target must be UP, got %s", res.Heartbeat.Status)
	}
	if res.Retries != 0 {
		t.Fatalf("upside-down UP must reset retries, got %d", res.Retries)
	}
}

func TestExecute_UnknownTypeIsDown(t *testing.T) {
	m := testMonitor()
	m.Type = "carrier-pigeon"
	m.MaxRetries = 0
	e := newTestExecutor(t, &fakeHandler{}, noMaintenance{})

	res := e.Execute(context.Background(), m, nil, 0)
	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("unknown type must be DOWN, got %s", res.Heartbeat.Status)
	}
	if !strings.Contains(res.Heartbeat.Msg, "unknown monitor type") {
		t.Fatalf("unexpected msg %q", res.Heartbeat.Msg)
	}
}

func TestExecute_HandlerPanicIsDown(t *testing.T) {
	m := testMonitor()
	m.MaxRetries = 0
	e := newTestExecutor(t, &fakeHandler{panics: true}, noMaintenance{})

	res := e.Execute(context.Background(), m, nil, 0)
	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("panicking handler must yield DOWN, got %s", res.Heartbeat.Status)
	}
	if !strings.Contains(res.Heartbeat.Msg, "handler panic") {
		t.Fatalf("unexpected msg %q", res.Heartbeat.Msg)
	}
}

func TestExecute_Maintenance(t *testing.T) {
	e := newTestExecutor(t, &fakeHandler{err: errors.New("would fail")}, alwaysMaintenance{})
	prev := &domain.Heartbeat{Status: domain.StatusUp, Time: time.Now().UTC(), Retries: 1}

	res := e.Execute(context.Background(), testMonitor(), prev, prev.Retries)

	if res.Heartbeat.Status != domain.StatusMaintenance {
		t.Fatalf("expected MAINTENANCE, got %s", res.Heartbeat.Status)
	}
	if res.ShouldNotify {
		t.Fatal("maintenance must not notify")
	}
	if res.Retries != 0 {
		t.Fatalf("maintenance must reset retries, got %d", res.Retries)
	}
	if res.Heartbeat.Ping != nil {
		t.Fatal("maintenance beat must not synthesize a ping")
	}
}

func TestExecute_SuccessWithoutStatusUpIsContractViolation(t *testing.T) {
	m := testMonitor()
	m.MaxRetries = 0
	// Handler "succeeds" but leaves the skeleton DOWN status in place.
	e := newTestExecutor(t, &fakeHandler{status: domain.StatusDown}, noMaintenance{})

	res := e.Execute(context.Background(), m, nil, 0)
	if res.Heartbeat.Status != domain.StatusDown {
		t.Fatalf("expected DOWN, got %s", res.Heartbeat.Status)
	}
	if !strings.Contains(res.Heartbeat.Msg, "without setting status up") {
		t.Fatalf("unexpected msg %q", res.Heartbeat.Msg)
	}
}

func TestEffectiveTimeout(t *testing.T) {
	m := testMonitor()
	if got := effectiveTimeout(m); got != 5*time.Second {
		t.Fatalf("expected explicit timeout, got %s", got)
	}
	m.TimeoutSeconds = 0
	if got := effectiveTimeout(m); got != 48*time.Second {
		t.Fatalf("expected 80%% of interval, got %s", got)
	}
}
