package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// TLSCertHandler checks that a TLS endpoint presents a currently valid
// certificate. Expiry is the failure condition, not reachability alone.
type TLSCertHandler struct{}

func (h *TLSCertHandler) SupportsConditions() bool     { return true }
func (h *TLSCertHandler) ConditionVariables() []string { return []string{"days_remaining"} }
func (h *TLSCertHandler) AllowCustomStatus() bool      { return false }

func (h *TLSCertHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	port := view.Port()
	if port == 0 {
		port = 443
	}
	addr := net.JoinHostPort(view.Hostname(), strconv.Itoa(port))

	dialer := &tls.Dialer{
		Config: &tls.Config{InsecureSkipVerify: view.GetIgnoreTLS()},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls connect %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("no peer certificate presented")
	}

	info := certInfo(state.PeerCertificates[0])
	if !info.Valid {
		return info, fmt.Errorf("certificate expired %s", info.ExpiresAt.Format("2006-01-02"))
	}

	hb.Status = domain.StatusUp
	hb.Msg = fmt.Sprintf("certificate valid, %d days remaining", info.DaysRemaining)
	return info, nil
}
