package executor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// maxBodyBytes caps how much of a response the keyword search reads.
const maxBodyBytes = 1 << 20

// Shared clients so keep-alive connections survive across checks. IgnoreTLS
// is the only per-monitor transport setting, hence one client per mode.
var httpClients = map[bool]*http.Client{
	false: {Transport: &http.Transport{
		MaxIdleConnsPerHost: 4,
	}},
	true: {Transport: &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConnsPerHost: 4,
	}},
}

// HTTPHandler probes an HTTP(S) endpoint. Success means the status code is
// accepted and, if configured, the keyword matches.
type HTTPHandler struct{}

func (h *HTTPHandler) SupportsConditions() bool { return true }
func (h *HTTPHandler) ConditionVariables() []string {
	return []string{"status_code", "response_time", "body"}
}
func (h *HTTPHandler) AllowCustomStatus() bool { return false }

func (h *HTTPHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, _ *ServerContext) (*domain.TLSInfo, error) {
	cfg := view.Config()

	var bodyReader io.Reader
	if cfg.Body != nil {
		bodyReader = strings.NewReader(*cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, view.Method(), view.URL(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if auth := view.BasicAuthHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	client := httpClients[view.GetIgnoreTLS()]

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	ping := float64(time.Since(start).Microseconds()) / 1000.0
	hb.Ping = &ping

	var tlsInfo *domain.TLSInfo
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		tlsInfo = certInfo(resp.TLS.PeerCertificates[0])
	}

	if !view.GetAcceptedStatuscodes(resp.StatusCode) {
		return tlsInfo, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if cfg.Keyword != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return tlsInfo, fmt.Errorf("read body: %w", err)
		}
		found := strings.Contains(string(body), cfg.Keyword)
		if found == cfg.InvertKeyword {
			return tlsInfo, fmt.Errorf("keyword %q found=%t, expected found=%t", cfg.Keyword, found, !cfg.InvertKeyword)
		}
	} else {
		// Drain so the connection can be reused by the pool.
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	hb.Status = domain.StatusUp
	hb.Msg = fmt.Sprintf("%d - %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	return tlsInfo, nil
}

func certInfo(cert *x509.Certificate) *domain.TLSInfo {
	remaining := time.Until(cert.NotAfter)
	return &domain.TLSInfo{
		Valid:         remaining > 0,
		Issuer:        cert.Issuer.CommonName,
		Subject:       cert.Subject.CommonName,
		DaysRemaining: int(remaining.Hours() / 24),
		ExpiresAt:     cert.NotAfter,
	}
}
