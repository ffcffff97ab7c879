package uptime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pulsewatch/pulsewatch/internal/repository"
)

// rehydrateLimit bounds how much history one rebuild reads. 30 days of
// one-minute checks is 43200 beats; most monitors run slower than that.
const rehydrateLimit = 45000

// Cache hands out one Calculator per monitor per process. Remove drops the
// instance when another process may have written beats; the next Get rebuilds
// it from the heartbeat store.
type Cache struct {
	mu          sync.Mutex
	calculators map[string]*Calculator
	heartbeats  repository.HeartbeatRepository
	logger      *slog.Logger
}

func NewCache(heartbeats repository.HeartbeatRepository, logger *slog.Logger) *Cache {
	return &Cache{
		calculators: make(map[string]*Calculator),
		heartbeats:  heartbeats,
		logger:      logger.With("component", "uptime_cache"),
	}
}

// Get returns the calculator for a monitor, building and hydrating it on
// first use. The same instance is returned until Remove is called.
func (c *Cache) Get(ctx context.Context, monitorID string) *Calculator {
	c.mu.Lock()
	if calc, ok := c.calculators[monitorID]; ok {
		c.mu.Unlock()
		return calc
	}
	c.mu.Unlock()

	calc := NewCalculator()
	c.hydrate(ctx, monitorID, calc)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have hydrated concurrently; first one wins.
	if existing, ok := c.calculators[monitorID]; ok {
		return existing
	}
	c.calculators[monitorID] = calc
	return calc
}

// Remove invalidates the cached instance. Called on every heartbeat received
// over pub/sub so cross-process writes become visible.
func (c *Cache) Remove(monitorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calculators, monitorID)
}

func (c *Cache) hydrate(ctx context.Context, monitorID string, calc *Calculator) {
	beats, err := c.heartbeats.Recent(ctx, monitorID, rehydrateLimit, false)
	if err != nil {
		c.logger.Warn("rehydrate from heartbeat store failed, starting empty",
			"monitor_id", monitorID, "error", err)
		return
	}
	// Recent is newest-first; replay oldest-first.
	for i := len(beats) - 1; i >= 0; i-- {
		hb := beats[i]
		calc.UpdateAt(hb.Time, hb.Status, hb.Ping)
	}
}
