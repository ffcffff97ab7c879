package executor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// PingHandler measures reachability of a host. Raw ICMP needs elevated
// privileges, so it opens a TCP connection instead: port 0 in the config
// means probe 443 then 80, a non-zero port is probed directly.
type PingHandler struct{}

func (h *PingHandler) SupportsConditions() bool     { return false }
func (h *PingHandler) ConditionVariables() []string { return nil }
func (h *PingHandler) AllowCustomStatus() bool      { return false }

func (h *PingHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	ports := []int{443, 80}
	if p := view.Port(); p != 0 {
		ports = []int{p}
	}

	var d net.Dialer
	var lastErr error
	for _, port := range ports {
		addr := net.JoinHostPort(view.Hostname(), strconv.Itoa(port))
		start := time.Now()
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", addr, err)
			continue
		}
		ping := float64(time.Since(start).Microseconds()) / 1000.0
		_ = conn.Close()

		hb.Ping = &ping
		hb.Status = domain.StatusUp
		hb.Msg = "host reachable"
		return nil, nil
	}
	return nil, lastErr
}
