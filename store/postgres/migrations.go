package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Beacon store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("beacon")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_beacon_events",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_events (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL DEFAULT '',
    source            TEXT NOT NULL DEFAULT '',
    session_id        TEXT NOT NULL DEFAULT '',
    device_id         TEXT NOT NULL DEFAULT '',
    user_id           TEXT NOT NULL DEFAULT '',
    utm_source        TEXT NOT NULL DEFAULT '',
    utm_medium        TEXT NOT NULL DEFAULT '',
    utm_campaign      TEXT NOT NULL DEFAULT '',
    utm_term          TEXT NOT NULL DEFAULT '',
    utm_content       TEXT NOT NULL DEFAULT '',
    referrer          TEXT NOT NULL DEFAULT '',
    landing_url       TEXT NOT NULL DEFAULT '',
    gclid             TEXT NOT NULL DEFAULT '',
    gbraid            TEXT NOT NULL DEFAULT '',
    wbraid            TEXT NOT NULL DEFAULT '',
    msclkid           TEXT NOT NULL DEFAULT '',
    fbclid            TEXT NOT NULL DEFAULT '',
    ttclid            TEXT NOT NULL DEFAULT '',
    external_event_id TEXT NOT NULL DEFAULT '',
    consent           JSONB,
    payload           JSONB,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacon_events_name ON beacon_events (name);
CREATE INDEX IF NOT EXISTS idx_beacon_events_created ON beacon_events (created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_beacon_events_external ON beacon_events (external_event_id) WHERE external_event_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_beacon_conversions",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_conversions (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL DEFAULT '',
    value_cents  BIGINT,
    currency     TEXT NOT NULL DEFAULT '',
    lead_id      TEXT NOT NULL DEFAULT '',
    job_id       TEXT NOT NULL DEFAULT '',
    invoice_id   TEXT NOT NULL DEFAULT '',
    session_id   TEXT NOT NULL DEFAULT '',
    device_id    TEXT NOT NULL DEFAULT '',
    user_id      TEXT NOT NULL DEFAULT '',
    utm_source   TEXT NOT NULL DEFAULT '',
    utm_medium   TEXT NOT NULL DEFAULT '',
    utm_campaign TEXT NOT NULL DEFAULT '',
    gclid        TEXT NOT NULL DEFAULT '',
    msclkid      TEXT NOT NULL DEFAULT '',
    payload      JSONB,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacon_conversions_status ON beacon_conversions (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_conversions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_beacon_destinations",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_destinations (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL DEFAULT '',
    name           TEXT NOT NULL DEFAULT '',
    enabled        BOOLEAN NOT NULL DEFAULT TRUE,
    config_enc     TEXT NOT NULL DEFAULT '',
    include_events TEXT[] NOT NULL DEFAULT '{}',
    exclude_events TEXT[] NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (type, name)
);

CREATE INDEX IF NOT EXISTS idx_beacon_destinations_type ON beacon_destinations (type) WHERE enabled;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_destinations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_beacon_jobs",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_jobs (
    id               TEXT PRIMARY KEY,
    event_id         TEXT NOT NULL DEFAULT '',
    state            TEXT NOT NULL DEFAULT 'queued',
    intended         TEXT[] NOT NULL DEFAULT '{}',
    pending          TEXT[] NOT NULL DEFAULT '{}',
    has_pending      BOOLEAN NOT NULL DEFAULT FALSE,
    attempt_count    INT NOT NULL DEFAULT 0,
    max_attempts     INT NOT NULL DEFAULT 0,
    next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error       TEXT NOT NULL DEFAULT '',
    last_status_code INT NOT NULL DEFAULT 0,
    completed_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacon_jobs_queued ON beacon_jobs (next_attempt_at) WHERE state = 'queued';
CREATE INDEX IF NOT EXISTS idx_beacon_jobs_event ON beacon_jobs (event_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_beacon_dlq",
			Version: "20240601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS beacon_dlq (
    id               TEXT PRIMARY KEY,
    job_id           TEXT NOT NULL DEFAULT '',
    event_id         TEXT NOT NULL DEFAULT '',
    destination_id   TEXT NOT NULL DEFAULT '',
    destination_type TEXT NOT NULL DEFAULT '',
    event_name       TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    last_status_code INT NOT NULL DEFAULT 0,
    response         TEXT NOT NULL DEFAULT '',
    attempt_count    INT NOT NULL DEFAULT 0,
    replayed_at      TIMESTAMPTZ,
    failed_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_beacon_dlq_destination ON beacon_dlq (destination_id);
CREATE INDEX IF NOT EXISTS idx_beacon_dlq_failed ON beacon_dlq (failed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS beacon_dlq`)
				return err
			},
		},
	)
}
