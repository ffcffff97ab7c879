package executor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

func httpView(url string) *domain.MonitorView {
	return domain.NewMonitorView(&domain.Monitor{
		ID:       "mon-http",
		TenantID: "tenant-1",
		Type:     domain.MonitorHTTP,
		Config:   domain.MonitorConfig{URL: url},
	})
}

func TestHTTPHandler_ReusesConnections(t *testing.T) {
	var mu sync.Mutex
	conns := 0

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			mu.Lock()
			conns++
			mu.Unlock()
		}
	}
	srv.Start()
	defer srv.Close()

	h := &HTTPHandler{}
	view := httpView(srv.URL)
	for i := 0; i < 3; i++ {
		hb := &domain.Heartbeat{}
		if _, err := h.Check(context.Background(), view, hb, nil); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if hb.Status != domain.StatusUp {
			t.Fatalf("check %d: expected UP, got %s", i, hb.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if conns != 1 {
		t.Fatalf("expected 1 connection reused across checks, got %d", conns)
	}
}

func TestHTTPHandler_RejectedStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hb := &domain.Heartbeat{}
	_, err := (&HTTPHandler{}).Check(context.Background(), httpView(srv.URL), hb, nil)
	if err == nil {
		t.Fatal("expected an error for status 500")
	}
}
