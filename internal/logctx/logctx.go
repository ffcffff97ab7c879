package logctx

import "context"

type workerKey struct{}
type monitorKey struct{}

// WithWorkerID returns a copy of ctx carrying the worker identifier.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerIDFromContext extracts the worker id from ctx. Returns "" if absent.
func WorkerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workerKey{}).(string)
	return id
}

// WithMonitorID returns a copy of ctx carrying the monitor being checked.
func WithMonitorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, monitorKey{}, id)
}

// MonitorIDFromContext extracts the monitor id from ctx. Returns "" if absent.
func MonitorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(monitorKey{}).(string)
	return id
}
