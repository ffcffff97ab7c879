package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/repository"
)

// ServerContext gives handlers access to the few server-side facilities a
// check may need. It is shared across all checks and must stay read-only.
type ServerContext struct {
	Pushes repository.PushRepository
	Logger *slog.Logger
}

// Handler implements one monitor type. Check must set hb.Status = UP on
// success (optionally attaching ping and returning TLS info) or return an
// error on failure. Handlers are stateless; the same instance serves every
// worker goroutine.
type Handler interface {
	SupportsConditions() bool
	ConditionVariables() []string
	AllowCustomStatus() bool
	Check(ctx context.Context, view *domain.MonitorView, hb *domain.Heartbeat, srv *ServerContext) (*domain.TLSInfo, error)
}

// Registry maps monitor types to handlers. Mutation happens under a mutex so
// plugins can register while the relay iterates.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.MonitorType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.MonitorType]Handler)}
}

func (r *Registry) Register(t domain.MonitorType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

func (r *Registry) Get(t domain.MonitorType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// NewDefaultRegistry registers the built-in handlers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.MonitorHTTP, &HTTPHandler{})
	r.Register(domain.MonitorTCP, &TCPHandler{})
	r.Register(domain.MonitorPing, &PingHandler{})
	r.Register(domain.MonitorDNS, &DNSHandler{})
	r.Register(domain.MonitorPush, &PushHandler{})
	r.Register(domain.MonitorTLSCert, &TLSCertHandler{})
	return r
}
