package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tenancy store.
var Migrations = migrate.NewGroup("tenancy")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tenancy_tenants",
			Version: "20240301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_tenants (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    slug            TEXT,
    plan_id         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'active',
    settings        JSONB NOT NULL DEFAULT '{}',
    usage_users     BIGINT NOT NULL DEFAULT 0 CHECK (usage_users >= 0),
    usage_events    BIGINT NOT NULL DEFAULT 0 CHECK (usage_events >= 0),
    usage_storage   BIGINT NOT NULL DEFAULT 0 CHECK (usage_storage >= 0),
    usage_api_calls BIGINT NOT NULL DEFAULT 0 CHECK (usage_api_calls >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenancy_tenants_slug ON tenancy_tenants (slug) WHERE slug IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tenancy_tenants_status ON tenancy_tenants (status, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenancy_tenants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenancy_memberships",
			Version: "20240301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_memberships (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL REFERENCES tenancy_tenants (id) ON DELETE CASCADE,
    user_id             TEXT NOT NULL DEFAULT '',
    role                TEXT NOT NULL DEFAULT 'member',
    feature_permissions JSONB NOT NULL DEFAULT '[]',
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenancy_memberships_active ON tenancy_memberships (tenant_id, user_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_tenancy_memberships_user ON tenancy_memberships (user_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenancy_memberships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenancy_usage_records",
			Version: "20240301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_usage_records (
    id        TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL DEFAULT '',
    metric    TEXT NOT NULL DEFAULT '',
    value     BIGINT NOT NULL DEFAULT 0,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    source    TEXT NOT NULL DEFAULT '',
    metadata  JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_tenancy_usage_records_tenant ON tenancy_usage_records (tenant_id, metric, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tenancy_usage_records_timestamp ON tenancy_usage_records (timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenancy_usage_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenancy_alerts",
			Version: "20240301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_alerts (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL DEFAULT '',
    metric           TEXT NOT NULL DEFAULT '',
    current_value    BIGINT NOT NULL DEFAULT 0,
    limit_value      BIGINT NOT NULL DEFAULT 0,
    percentage       DOUBLE PRECISION NOT NULL DEFAULT 0,
    type             TEXT NOT NULL DEFAULT 'warning',
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    resolved_at      TIMESTAMPTZ,
    last_notified_at TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tenancy_alerts_active ON tenancy_alerts (tenant_id, metric) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_tenancy_alerts_notify ON tenancy_alerts (type, last_notified_at) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_tenancy_alerts_tenant ON tenancy_alerts (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tenancy_alerts_resolved ON tenancy_alerts (resolved_at) WHERE NOT is_active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenancy_alerts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenancy_sources",
			Version: "20240301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenancy_events (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tenancy_files (
    id         TEXT PRIMARY KEY,
    tenant_id  TEXT NOT NULL DEFAULT '',
    size_bytes BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tenancy_api_calls (
    id        TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tenancy_events_tenant ON tenancy_events (tenant_id);
CREATE INDEX IF NOT EXISTS idx_tenancy_files_tenant ON tenancy_files (tenant_id);
CREATE INDEX IF NOT EXISTS idx_tenancy_api_calls_tenant ON tenancy_api_calls (tenant_id, timestamp);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS tenancy_api_calls;
DROP TABLE IF EXISTS tenancy_files;
DROP TABLE IF EXISTS tenancy_events;
`)
				return err
			},
		},
	)
}
