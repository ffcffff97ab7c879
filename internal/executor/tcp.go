package executor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// TCPHandler succeeds when a TCP connection to host:port opens.
type TCPHandler struct{}

func (h *TCPHandler) SupportsConditions() bool     { return false }
func (h *TCPHandler) ConditionVariables() []string { return nil }
func (h *TCPHandler) AllowCustomStatus() bool      { return false }

func (h *TCPHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	addr := net.JoinHostPort(view.Hostname(), strconv.Itoa(view.Port()))

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	ping := float64(time.Since(start).Microseconds()) / 1000.0
	_ = conn.Close()

	hb.Ping = &ping
	hb.Status = domain.StatusUp
	hb.Msg = "connected"
	return nil, nil
}
