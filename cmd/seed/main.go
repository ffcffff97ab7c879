// seed creates the local dev schema and a handful of demo monitors with
// schedule rows. Run: go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/pulsewatch/pulsewatch/internal/domain"
	"github.com/pulsewatch/pulsewatch/internal/infrastructure/postgres"
)

const (
	seedTenant = "tenant-local"
	seedUser   = "user-local"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitors (
	id                     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id              TEXT NOT NULL,
	user_id                TEXT NOT NULL,
	name                   TEXT NOT NULL,
	type                   TEXT NOT NULL,
	interval_seconds       INT NOT NULL DEFAULT 60,
	retry_interval_seconds INT NOT NULL DEFAULT 60,
	max_retries            INT NOT NULL DEFAULT 0,
	timeout_seconds        INT NOT NULL DEFAULT 48,
	resend_interval        INT NOT NULL DEFAULT 0,
	upside_down            BOOLEAN NOT NULL DEFAULT FALSE,
	active                 BOOLEAN NOT NULL DEFAULT TRUE,
	config                 JSONB NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS monitor_schedule (
	id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	monitor_id           UUID NOT NULL UNIQUE REFERENCES monitors(id) ON DELETE CASCADE,
	tenant_id            TEXT NOT NULL,
	next_check_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	claimed_by           TEXT,
	claimed_at           TIMESTAMPTZ,
	last_check_at        TIMESTAMPTZ,
	last_status          SMALLINT,
	last_ping            DOUBLE PRECISION,
	retry_count          INT NOT NULL DEFAULT 0,
	consecutive_failures INT NOT NULL DEFAULT 0,
	active               BOOLEAN NOT NULL DEFAULT TRUE,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_schedule_due     ON monitor_schedule (next_check_at, claimed_by, active);
CREATE INDEX IF NOT EXISTS idx_schedule_claims  ON monitor_schedule (claimed_by, claimed_at);
CREATE INDEX IF NOT EXISTS idx_schedule_tenant  ON monitor_schedule (tenant_id, active);

CREATE TABLE IF NOT EXISTS heartbeats (
	id         BIGSERIAL PRIMARY KEY,
	monitor_id UUID NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	tenant_id  TEXT NOT NULL,
	time       TIMESTAMPTZ NOT NULL,
	status     SMALLINT NOT NULL,
	msg        TEXT NOT NULL DEFAULT '',
	ping       DOUBLE PRECISION,
	important  BOOLEAN NOT NULL DEFAULT FALSE,
	duration   INT NOT NULL DEFAULT 0,
	down_count INT NOT NULL DEFAULT 0,
	retries    INT NOT NULL DEFAULT 0,
	end_time   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_monitor_time ON heartbeats (monitor_id, time DESC);
CREATE INDEX IF NOT EXISTS idx_heartbeats_important    ON heartbeats (monitor_id, important, time DESC);

CREATE TABLE IF NOT EXISTS maintenance_windows (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id        TEXT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	starts_at        TIMESTAMPTZ,
	ends_at          TIMESTAMPTZ,
	cron_expr        TEXT NOT NULL DEFAULT '',
	duration_seconds INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS maintenance_window_monitors (
	window_id  UUID NOT NULL REFERENCES maintenance_windows(id) ON DELETE CASCADE,
	monitor_id UUID NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	PRIMARY KEY (window_id, monitor_id)
);

CREATE TABLE IF NOT EXISTS push_events (
	token       TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_push_events_token ON push_events (token, received_at DESC);
`

type monitorSpec struct {
	name       string
	typ        domain.MonitorType
	interval   int
	maxRetries int
	upsideDown bool
	config     domain.MonitorConfig
}

var monitors = []monitorSpec{
	// Happy path
	{"httpbin 200", domain.MonitorHTTP, 60, 1, false, domain.MonitorConfig{URL: "https://httpbin.org/status/200"}},
	{"example.com", domain.MonitorHTTP, 120, 2, false, domain.MonitorConfig{URL: "https://example.com", Keyword: "Example Domain"}},

	// Will go DOWN after retries
	{"httpbin 500", domain.MonitorHTTP, 60, 2, false, domain.MonitorConfig{URL: "https://httpbin.org/status/500"}},
	{"httpbin 404 accepted", domain.MonitorHTTP, 60, 0, false, domain.MonitorConfig{URL: "https://httpbin.org/status/404", AcceptedStatusCodes: []string{"404"}}},

	// Upside-down: alerts when the target answers
	{"tor exit canary", domain.MonitorHTTP, 300, 0, true, domain.MonitorConfig{URL: "https://httpbin.org/status/200"}},

	// Other check types
	{"ping cloudflare", domain.MonitorPing, 120, 1, false, domain.MonitorConfig{Hostname: "one.one.one.one"}},
	{"dns google", domain.MonitorDNS, 300, 1, false, domain.MonitorConfig{Hostname: "google.com", DNSRecordType: "A"}},
	{"tcp postgres", domain.MonitorTCP, 60, 1, false, domain.MonitorConfig{Hostname: "localhost", Port: 5432}},
	{"tls badssl", domain.MonitorTLSCert, 3600, 0, false, domain.MonitorConfig{Hostname: "expired.badssl.com", Port: 443}},
	{"push cron job", domain.MonitorPush, 60, 0, false, domain.MonitorConfig{PushToken: "seed-push-token", PushGraceSeconds: 60}},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("create schema: %v", err)
	}

	scheduleRepo := postgres.NewScheduleRepository(pool, slog.Default())

	var inserted, skipped int
	for _, spec := range monitors {
		cfg, err := json.Marshal(spec.config)
		if err != nil {
			log.Fatalf("marshal config for %s: %v", spec.name, err)
		}

		var id string
		err = pool.QueryRow(ctx, `
			INSERT INTO monitors (
				tenant_id, user_id, name, type, interval_seconds,
				retry_interval_seconds, max_retries, timeout_seconds,
				resend_interval, upside_down, active, config
			)
			SELECT $1, $2, $3, $4, $5, $5, $6, 30, 0, $7, TRUE, $8
			WHERE NOT EXISTS (SELECT 1 FROM monitors WHERE tenant_id = $1 AND name = $3)
			RETURNING id`,
			seedTenant, seedUser, spec.name, spec.typ, spec.interval,
			spec.maxRetries, spec.upsideDown, cfg,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			skipped++
			continue
		}
		if err != nil {
			log.Fatalf("insert monitor %s: %v", spec.name, err)
		}

		if err := scheduleRepo.Initialize(ctx, id, seedTenant, true); err != nil {
			log.Fatalf("initialize schedule for %s: %v", spec.name, err)
		}
		inserted++
	}

	// A push event so the push monitor starts fresh.
	if _, err := pool.Exec(ctx, `INSERT INTO push_events (token) VALUES ($1)`, "seed-push-token"); err != nil {
		log.Fatalf("insert push event: %v", err)
	}

	active, err := postgres.NewMonitorRepository(pool).ListActive(ctx)
	if err != nil {
		log.Fatalf("list monitors: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Tenant:           %s\n", seedTenant)
	fmt.Printf("  Monitors created: %d  (skipped %d already existing)\n", inserted, skipped)
	fmt.Printf("  Active monitors:  %d\n", len(active))
	for _, m := range active {
		fmt.Printf("    %-22s %-5s every %3ds\n", m.Name, m.Type, m.IntervalSeconds)
	}
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Start a worker (or several):")
	fmt.Println("    go run ./cmd/worker")
	fmt.Println()
	fmt.Println("  Watch live events (needs REDIS_URL):")
	fmt.Println("    go run ./cmd/relay")
	fmt.Printf("    websocat 'ws://localhost:3003/ws?tenant_id=%s&user_id=%s'\n", seedTenant, seedUser)
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    httpbin 200 / example.com / 404 accepted  →  UP")
	fmt.Println("    httpbin 500                               →  PENDING retries, then DOWN")
	fmt.Println("    tor exit canary                           →  DOWN (upside-down, target reachable)")
	fmt.Println("    tls badssl                                →  DOWN (expired certificate)")
	fmt.Println("    push cron job                             →  UP until the seeded push ages out")
}
