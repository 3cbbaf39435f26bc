package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlGuildSettings = `
CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id         TEXT        PRIMARY KEY,
    api_key          TEXT        NOT NULL DEFAULT '',
    analysis_mode    TEXT        NOT NULL DEFAULT 'debate',
    interval_seconds BIGINT      NOT NULL DEFAULT 300,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates all required tables. Every statement is idempotent, so it
// is safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlGuildSettings); err != nil {
		return fmt.Errorf("create guild_settings: %w", err)
	}
	return nil
}
