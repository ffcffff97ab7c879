package executor

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// DNSHandler resolves the configured record type, optionally through a
// specific resolver.
type DNSHandler struct{}

func (h *DNSHandler) SupportsConditions() bool     { return true }
func (h *DNSHandler) ConditionVariables() []string { return []string{"record_count"} }
func (h *DNSHandler) AllowCustomStatus() bool      { return false }

func (h *DNSHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	cfg := view.Config()
	resolver := net.DefaultResolver
	if cfg.DNSResolver != "" {
		addr := cfg.DNSResolver
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, "53")
		}
		resolver = &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}

	host := view.Hostname()
	start := time.Now()
	count, err := lookup(ctx, resolver, strings.ToUpper(cfg.DNSRecordType), host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("resolve %s: no records", host)
	}
	ping := float64(time.Since(start).Microseconds()) / 1000.0

	hb.Ping = &ping
	hb.Status = domain.StatusUp
	hb.Msg = fmt.Sprintf("%d records", count)
	return nil, nil
}

func lookup(ctx context.Context, r *net.Resolver, recordType, host string) (int, error) {
	switch recordType {
	case "", "A", "AAAA":
		addrs, err := r.LookupHost(ctx, host)
		return len(addrs), err
	case "CNAME":
		cname, err := r.LookupCNAME(ctx, host)
		if err != nil {
			return 0, err
		}
		if cname == "" {
			return 0, nil
		}
		return 1, nil
	case "TXT":
		records, err := r.LookupTXT(ctx, host)
		return len(records), err
	case "MX":
		records, err := r.LookupMX(ctx, host)
		return len(records), err
	case "NS":
		records, err := r.LookupNS(ctx, host)
		return len(records), err
	default:
		return 0, fmt.Errorf("unsupported record type %q", recordType)
	}
}
