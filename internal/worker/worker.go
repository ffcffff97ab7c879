package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/executor"
	"github.com/pulsewatch/pulsewatch/internal/logctx"
	"github.com/pulsewatch/pulsewatch/internal/metrics"
	"github.com/pulsewatch/pulsewatch/internal/processor"
	"github.com/pulsewatch/pulsewatch/internal/pubsub"
	"github.com/pulsewatch/pulsewatch/internal/repository"
)

const (
	sweepInterval   = time.Minute
	pruneInterval   = 12 * time.Hour
	drainTimeout    = 30 * time.Second
	defaultInterval = 60 // release fallback when a check blows up mid-pipeline
)

type Options struct {
	ID                string // empty = hostname-pid-suffix
	BatchSize         int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StaleClaimAge     time.Duration
	RetentionDays     int
}

// Worker claims due schedule rows, executes their checks concurrently, and
// releases them with the next due time. Any number of replicas can run
// against the same schedule table.
type Worker struct {
	id         string
	schedules  repository.ScheduleRepository
	heartbeats repository.HeartbeatRepository
	monitors   repository.MonitorRepository
	executor   *executor.Executor
	processor  *processor.Processor
	transport  pubsub.Transport
	logger     *slog.Logger
	opts       Options

	cancel    context.CancelFunc
	startedAt time.Time

	running         atomic.Bool
	shuttingDown    atomic.Bool
	inFlight        atomic.Int64
	checksProcessed atomic.Int64
	lastCheckAt     atomic.Pointer[time.Time]
}

func New(
	schedules repository.ScheduleRepository,
	heartbeats repository.HeartbeatRepository,
	monitors repository.MonitorRepository,
	exec *executor.Executor,
	proc *processor.Processor,
	transport pubsub.Transport,
	logger *slog.Logger,
	opts Options,
) *Worker {
	if opts.ID == "" {
		hostname, _ := os.Hostname()
		opts.ID = fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
	}
	return &Worker{
		id:         opts.ID,
		startedAt:  time.Now(),
		schedules:  schedules,
		heartbeats: heartbeats,
		monitors:   monitors,
		executor:   exec,
		processor:  proc,
		transport:  transport,
		logger:     logger.With("worker_id", opts.ID),
		opts:       opts,
	}
}

func (w *Worker) ID() string { return w.id }

// Start runs until ctx is cancelled, then drains in-flight checks.
func (w *Worker) Start(ctx context.Context) {
	ctx = logctx.WithWorkerID(ctx, w.id)
	ctx, w.cancel = context.WithCancel(ctx)

	metrics.WorkerStartTime.SetToCurrentTime()
	w.running.Store(true)

	if created, err := w.schedules.SyncActiveMonitors(ctx); err != nil {
		w.logger.Error("sync active monitors", "error", err)
	} else if created > 0 {
		w.logger.Info("created schedule rows for unscheduled monitors", "count", created)
	}

	w.subscribeCommands(ctx)

	go w.heartbeatLoop(ctx)
	go w.sweeperLoop(ctx)
	go w.retentionLoop(ctx)

	w.logger.Info("worker started",
		"batch_size", w.opts.BatchSize,
		"poll_interval", w.opts.PollInterval,
	)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// Stop initiates a graceful shutdown; commands use it for SHUTDOWN.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	// A cancelled ctx may still reach here through a queued tick; claiming
	// again would retake this worker's own in-flight rows.
	if w.shuttingDown.Load() || ctx.Err() != nil {
		return
	}

	claimed, err := w.schedules.Claim(ctx, w.id, w.opts.BatchSize)
	if err != nil {
		w.logger.Error("claim batch", "error", err)
		return
	}
	metrics.ClaimBatchSize.Observe(float64(len(claimed)))
	if len(claimed) == 0 {
		return
	}

	now := time.Now()
	for _, row := range claimed {
		metrics.CheckPickupLatency.Observe(now.Sub(row.Schedule.NextCheckAt).Seconds())
	}

	// All claims of one batch finish before the next poll claims more, so
	// the process never holds more than batch_size sockets for checks.
	var wg sync.WaitGroup
	for _, row := range claimed {
		wg.Add(1)
		go func(row *repository.ClaimedRow) {
			defer wg.Done()
			// Detached from the poll ctx: cancelling the worker must not
			// abort a check mid-flight or fail its release. The executor's
			// own timeout still bounds the check.
			w.processMonitor(context.WithoutCancel(ctx), row)
		}(row)
	}

	batchDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(batchDone)
	}()
	select {
	case <-batchDone:
	case <-ctx.Done():
		// Shutdown waits on the in-flight counter instead.
	}
}

func (w *Worker) processMonitor(ctx context.Context, row *repository.ClaimedRow) {
	m := row.Monitor
	ctx = logctx.WithMonitorID(ctx, m.ID)

	w.inFlight.Add(1)
	metrics.ChecksInFlight.Inc()
	defer func() {
		w.inFlight.Add(-1)
		metrics.ChecksInFlight.Dec()
	}()

	prev, err := w.heartbeats.Latest(ctx, m.ID)
	if err != nil {
		w.logger.Error("load previous heartbeat", "error", err)
		w.releaseFallback(ctx, row)
		return
	}
	retries := 0
	if prev != nil {
		retries = prev.Retries
	}

	start := time.Now()
	res := w.executor.Execute(ctx, m, prev, retries)
	metrics.CheckDuration.WithLabelValues(string(m.Type)).Observe(time.Since(start).Seconds())

	if err := w.processor.Process(ctx, m, res); err != nil {
		w.logger.Error("process heartbeat", "error", err)
		w.releaseFallback(ctx, row)
		return
	}

	hb := res.Heartbeat
	if hb.Status == domain.StatusPending {
		// Keep the claim between retry attempts so another worker cannot
		// interleave its own probe into the retry ladder.
		w.scheduleRetry(ctx, row.Schedule.ID, res.NextIntervalSeconds)
	} else {
		w.release(ctx, row.Schedule.ID, res.NextIntervalSeconds, hb.Status, hb.Ping, hb.Status != domain.StatusUp)
	}

	w.checksProcessed.Add(1)
	metrics.ChecksProcessedTotal.WithLabelValues(hb.Status.String()).Inc()
	now := time.Now()
	w.lastCheckAt.Store(&now)

	w.logger.Debug("check complete",
		"type", m.Type, "status", hb.Status.String(), "msg", hb.Msg, "next_interval_s", res.NextIntervalSeconds)
}

// release clears the claim, retrying once: a transient DB error must not
// leave the row claimed until the sweeper finds it.
func (w *Worker) release(ctx context.Context, scheduleID string, nextInterval int, status domain.HeartbeatStatus, ping *float64, wasFailure bool) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = w.schedules.Release(ctx, scheduleID, w.id, nextInterval, status, ping, wasFailure)
		switch err {
		case nil:
			return
		case domain.ErrScheduleNotOwned:
			// Reclaimed by another worker after the claim timeout; the other
			// worker's release carries an equally recent completion.
			w.logger.Info("row reclaimed before release", "schedule_id", scheduleID)
			return
		case domain.ErrScheduleNotFound:
			// Monitor deleted mid-check; the sweeper has nothing to recover.
			w.logger.Info("schedule row gone on release", "schedule_id", scheduleID)
			return
		}
	}
	w.logger.Error("release failed", "schedule_id", scheduleID, "error", err)
}

// scheduleRetry moves the next due time without yielding the claim, with the
// same single retry as release.
func (w *Worker) scheduleRetry(ctx context.Context, scheduleID string, retryIntervalSeconds int) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = w.schedules.ScheduleRetry(ctx, scheduleID, retryIntervalSeconds)
		switch err {
		case nil:
			return
		case domain.ErrScheduleNotFound:
			w.logger.Info("schedule row gone on retry", "schedule_id", scheduleID)
			return
		}
	}
	w.logger.Error("schedule retry failed", "schedule_id", scheduleID, "error", err)
}

// releaseFallback reschedules with conservative defaults after a pipeline
// failure so the row does not sit claimed until the claim timeout.
func (w *Worker) releaseFallback(ctx context.Context, row *repository.ClaimedRow) {
	interval := row.Monitor.IntervalSeconds
	if interval <= 0 {
		interval = defaultInterval
	}
	w.release(ctx, row.Schedule.ID, interval, domain.StatusPending, nil, true)
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()

	w.publishLiveness(ctx, domain.WorkerStateRunning)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := domain.WorkerStateRunning
			if w.shuttingDown.Load() {
				state = domain.WorkerStateStopping
			}
			w.publishLiveness(ctx, state)
		}
	}
}

func (w *Worker) publishLiveness(ctx context.Context, state string) {
	if !w.transport.Enabled() {
		return
	}
	env, err := pubsub.NewEnvelope("", "", "", pubsub.ChannelWorkerHeartbeat, domain.WorkerLiveness{
		WorkerID:        w.id,
		State:           state,
		ChecksProcessed: w.checksProcessed.Load(),
		LastCheckAt:     w.lastCheckAt.Load(),
	})
	if err != nil {
		w.logger.Error("build worker heartbeat", "error", err)
		return
	}
	if err := w.transport.Publish(ctx, pubsub.ChannelWorkerHeartbeat, env); err != nil {
		w.logger.Warn("publish worker heartbeat", "error", err)
		metrics.PublishFailuresTotal.Inc()
		return
	}
	metrics.PublishesTotal.WithLabelValues(pubsub.ChannelWorkerHeartbeat).Inc()
}

func (w *Worker) sweeperLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := w.schedules.ReleaseStale(ctx, time.Now().Add(-w.opts.StaleClaimAge))
			if err != nil {
				w.logger.Error("release stale claims", "error", err)
				continue
			}
			if released > 0 {
				metrics.SweeperReleasedTotal.Add(float64(released))
				w.logger.Warn("released stale claims from crashed workers", "count", released)
			}
		}
	}
}

func (w *Worker) retentionLoop(ctx context.Context) {
	if w.opts.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -w.opts.RetentionDays)
			deleted, err := w.heartbeats.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				w.logger.Error("prune heartbeats", "error", err)
				continue
			}
			if deleted > 0 {
				w.logger.Info("pruned heartbeats past retention", "count", deleted)
			}
		}
	}
}

// shutdown drains in-flight checks for up to 30 seconds, then abandons them;
// their claims will be recovered by a sweeper on another worker.
func (w *Worker) shutdown() {
	w.shuttingDown.Store(true)
	w.logger.Info("worker shutting down", "in_flight", w.inFlight.Load())

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for w.inFlight.Load() > 0 {
		select {
		case <-drainCtx.Done():
			w.logger.Warn("abandoning in-flight checks", "count", w.inFlight.Load())
			goto done
		case <-ticker.C:
		}
	}
done:
	w.running.Store(false)
	w.publishLiveness(drainCtx, domain.WorkerStateStopped)
	metrics.WorkerShutdownsTotal.Inc()
	w.logger.Info("worker shut down", "checks_processed", w.checksProcessed.Load())
}

// Status is the JSON shape served on /status.
type Status struct {
	WorkerID        string     `json:"worker_id"`
	State           string     `json:"state"`
	Running         bool       `json:"running"`
	ShuttingDown    bool       `json:"shutting_down"`
	InFlight        int64      `json:"in_flight"`
	ChecksProcessed int64      `json:"checks_processed"`
	LastCheckAt     *time.Time `json:"last_check_at"`
	PubSubAvailable bool       `json:"pubsub_available"`
	UptimeSeconds   int64      `json:"uptime_seconds"`
	HeapAllocBytes  uint64     `json:"heap_alloc_bytes"`
}

func (w *Worker) Status() Status {
	state := domain.WorkerStateRunning
	switch {
	case !w.running.Load():
		state = domain.WorkerStateStopped
	case w.shuttingDown.Load():
		state = domain.WorkerStateStopping
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return Status{
		WorkerID:        w.id,
		State:           state,
		Running:         w.running.Load(),
		ShuttingDown:    w.shuttingDown.Load(),
		InFlight:        w.inFlight.Load(),
		ChecksProcessed: w.checksProcessed.Load(),
		LastCheckAt:     w.lastCheckAt.Load(),
		PubSubAvailable: w.transport.Enabled() && w.transport.Healthy(),
		UptimeSeconds:   int64(time.Since(w.startedAt).Seconds()),
		HeapAllocBytes:  mem.HeapAlloc,
	}
}

func (w *Worker) Ready() bool {
	return w.running.Load() && !w.shuttingDown.Load()
}
