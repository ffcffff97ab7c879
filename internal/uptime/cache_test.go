package uptime

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

type stubHeartbeats struct {
	beats     []*domain.Heartbeat // newest first, as the store returns them
	recentErr error
	calls     int
}

func (s *stubHeartbeats) Append(_ context.Context, hb *domain.Heartbeat) (*domain.Heartbeat, error) {
	return hb, nil
}

func (s *stubHeartbeats) Latest(context.Context, string) (*domain.Heartbeat, error) {
	return nil, nil
}

func (s *stubHeartbeats) Recent(context.Context, string, int, bool) ([]*domain.Heartbeat, error) {
	s.calls++
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	return s.beats, nil
}

func (s *stubHeartbeats) ResetDownCount(context.Context, int64) error { return nil }

func (s *stubHeartbeats) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func TestCache_HydratesOnFirstGet(t *testing.T) {
	now := time.Now().UTC()
	store := &stubHeartbeats{beats: []*domain.Heartbeat{
		{Time: now.Add(-1 * time.Minute), Status: domain.StatusUp, Ping: ptr(10)},
		{Time: now.Add(-2 * time.Minute), Status: domain.StatusDown},
	}}
	c := NewCache(store, slog.Default())

	calc := c.Get(context.Background(), "mon-1")
	if got := calc.Get24Hour().Uptime; got != 0.5 {
		t.Fatalf("expected rehydrated uptime 0.5, got %f", got)
	}
	if store.calls != 1 {
		t.Fatalf("expected one hydrate, got %d", store.calls)
	}

	// Cached: the second Get must not re-read the store.
	if c.Get(context.Background(), "mon-1") != calc {
		t.Fatal("expected the same calculator instance")
	}
	if store.calls != 1 {
		t.Fatalf("cached get must not hydrate again, got %d calls", store.calls)
	}
}

func TestCache_RemoveForcesRebuild(t *testing.T) {
	store := &stubHeartbeats{}
	c := NewCache(store, slog.Default())

	first := c.Get(context.Background(), "mon-1")
	c.Remove("mon-1")
	second := c.Get(context.Background(), "mon-1")

	if first == second {
		t.Fatal("expected a fresh calculator after Remove")
	}
	if store.calls != 2 {
		t.Fatalf("expected 2 hydrates, got %d", store.calls)
	}
}

func TestCache_HydrateFailureStartsEmpty(t *testing.T) {
	store := &stubHeartbeats{recentErr: errors.New("db down")}
	c := NewCache(store, slog.Default())

	calc := c.Get(context.Background(), "mon-1")
	if calc == nil {
		t.Fatal("expected an empty calculator despite hydrate failure")
	}
	if got := calc.Get24Hour().Uptime; got != 0 {
		t.Fatalf("expected empty stats, got uptime %f", got)
	}
}
