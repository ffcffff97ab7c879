package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/domain"
)

// PushHandler inverts the probe direction: the target pushes to us, and the
// check only verifies the last push is fresh enough.
type PushHandler struct{}

func (h *PushHandler) SupportsConditions() bool     { return false }
func (h *PushHandler) ConditionVariables() []string { return nil }
func (h *PushHandler) AllowCustomStatus() bool      { return false }

func (h *PushHandler) Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, srv *ServerContext) (*domain.TLSInfo, error) {
	cfg := view.Config()
	if cfg.PushToken == "" {
		return nil, errors.New("push monitor has no token configured")
	}
	if srv == nil || srv.Pushes == nil {
		return nil, errors.New("push store not available")
	}

	last, err := srv.Pushes.LastPush(ctx, cfg.PushToken)
	if err != nil {
		return nil, fmt.Errorf("look up last push: %w", err)
	}
	if last == nil {
		return nil, errors.New("no push received yet")
	}

	grace := cfg.PushGraceSeconds
	if grace <= 0 {
		grace = 30
	}
	maxAge := time.Duration(view.IntervalSeconds()+grace) * time.Second
	age := time.Since(*last)
	if age > maxAge {
		return nil, fmt.Errorf("no push for %s (limit %s)", age.Round(time.Second), maxAge)
	}

	hb.Status = domain.StatusUp
	hb.Msg = fmt.Sprintf("last push %s ago", age.Round(time.Second))
	return nil, nil
}
