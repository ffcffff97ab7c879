package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by Subscribe when no broker is configured. The
// service keeps running in single-process mode.
var ErrDisabled = errors.New("pubsub disabled: no broker configured")

// Handler consumes one decoded envelope. Panics are recovered by the
// subscription loop and never unsubscribe the handler.
type Handler func(ctx context.Context, env *Envelope)

type Transport interface {
	Publish(ctx context.Context, channel string, env *Envelope) error
	Subscribe(ctx context.Context, channel string, h Handler) error
	Enabled() bool
	Healthy() bool
	Ping(ctx context.Context) error
	Close() error
}

const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 3 * time.Second
	maxFailures = 10
)

// RedisTransport keeps two connections: brokers forbid issuing regular
// commands on a connection that has subscribed, so publishing gets its own.
type RedisTransport struct {
	pub     *redis.Client
	sub     *redis.Client
	logger  *slog.Logger
	healthy atomic.Bool
}

// New returns a redis-backed transport, or the disabled transport when
// redisURL is empty.
func New(ctx context.Context, redisURL string, logger *slog.Logger) (Transport, error) {
	if redisURL == "" {
		logger.Warn("no broker configured, pubsub disabled (single-process mode)")
		return Disabled{}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	t := &RedisTransport{
		pub:    redis.NewClient(opts),
		sub:    redis.NewClient(opts),
		logger: logger.With("component", "pubsub"),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.pub.Ping(pingCtx).Err(); err != nil {
		// Broker down at startup is not fatal: publishes will fail and be
		// logged until it recovers.
		t.logger.Warn("broker unreachable at startup, continuing", "error", err)
	}
	t.healthy.Store(true)
	return t, nil
}

func (t *RedisTransport) Enabled() bool { return true }
func (t *RedisTransport) Healthy() bool { return t.healthy.Load() }

func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.pub.Ping(ctx).Err()
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := t.pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe starts a goroutine that receives until ctx is cancelled.
// Receive errors back off exponentially (100ms base, 3s cap); after ten
// consecutive failures the transport reports unhealthy and the loop stops.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string, h Handler) error {
	ps := t.sub.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go t.receiveLoop(ctx, ps, channel, h)
	return nil
}

func (t *RedisTransport) receiveLoop(ctx context.Context, ps *redis.PubSub, channel string, h Handler) {
	defer func() { _ = ps.Close() }()

	failures := 0
	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures >= maxFailures {
				t.healthy.Store(false)
				t.logger.Error("subscription gave up", "channel", channel, "failures", failures)
				return
			}
			delay := backoffBase << (failures - 1)
			if delay > backoffCap {
				delay = backoffCap
			}
			t.logger.Warn("receive failed, backing off", "channel", channel, "attempt", failures, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		failures = 0
		t.healthy.Store(true)

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.logger.Warn("dropping undecodable message", "channel", channel, "error", err)
			continue
		}
		t.dispatch(ctx, channel, &env, h)
	}
}

func (t *RedisTransport) dispatch(ctx context.Context, channel string, env *Envelope, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("handler panic", "channel", channel, "panic", r)
		}
	}()
	h(ctx, env)
}

func (t *RedisTransport) Close() error {
	pubErr := t.pub.Close()
	subErr := t.sub.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

// Disabled is the transport used when no broker is configured. Publishing is
// a silent no-op; subscribing reports ErrDisabled so callers can log once.
type Disabled struct{}

func (Disabled) Publish(context.Context, string, *Envelope) error { return nil }
func (Disabled) Subscribe(context.Context, string, Handler) error { return ErrDisabled }
func (Disabled) Enabled() bool                                    { return false }
func (Disabled) Healthy() bool                                    { return false }
func (Disabled) Ping(context.Context) error                       { return ErrDisabled }
func (Disabled) Close() error                                     { return nil }
