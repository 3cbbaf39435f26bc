// Package postgres provides a PostgreSQL-backed implementation of the
// settings [settings.Store].
//
// All guilds share one table; rows are created lazily by the first setter
// call for a guild. [Migrate] runs automatically on construction and is
// idempotent, so no external migration tooling is required.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/discursa/discursa/internal/settings"
)

// Compile-time interface check.
var _ settings.Store = (*Store)(nil)

// Store persists per-guild settings in PostgreSQL. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// database at dsn, and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("settings store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("settings store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("settings store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("settings store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Get implements [settings.Store.Get].
func (s *Store) Get(ctx context.Context, guildID string) (settings.Settings, error) {
	const q = `
SELECT analysis_mode, interval_seconds, api_key
FROM guild_settings
WHERE guild_id = $1`

	var (
		mode    string
		seconds int64
		apiKey  string
	)
	err := s.pool.QueryRow(ctx, q, guildID).Scan(&mode, &seconds, &apiKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings.Defaults(), nil
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("settings store: get guild %s: %w", guildID, err)
	}

	out := settings.Settings{
		Mode:       settings.Mode(mode),
		Interval:   time.Duration(seconds) * time.Second,
		Credential: apiKey,
	}
	// Rows written by older schema versions or by hand may carry values the
	// current code no longer accepts; fall back rather than fail.
	if !out.Mode.IsValid() {
		out.Mode = settings.DefaultMode
	}
	if out.Interval < settings.MinInterval || out.Interval > settings.MaxInterval {
		out.Interval = settings.DefaultInterval
	}
	return out, nil
}

// SetMode implements [settings.Store.SetMode].
func (s *Store) SetMode(ctx context.Context, guildID string, mode settings.Mode) error {
	if !mode.IsValid() {
		return settings.ErrInvalidMode
	}

	const q = `
INSERT INTO guild_settings (guild_id, analysis_mode)
VALUES ($1, $2)
ON CONFLICT (guild_id) DO UPDATE
    SET analysis_mode = EXCLUDED.analysis_mode,
        updated_at    = now()`

	if _, err := s.pool.Exec(ctx, q, guildID, string(mode)); err != nil {
		return fmt.Errorf("settings store: set mode for guild %s: %w", guildID, err)
	}
	return nil
}

// SetInterval implements [settings.Store.SetInterval].
func (s *Store) SetInterval(ctx context.Context, guildID string, interval time.Duration) error {
	if interval < settings.MinInterval || interval > settings.MaxInterval {
		return settings.ErrIntervalOutOfRange
	}

	const q = `
INSERT INTO guild_settings (guild_id, interval_seconds)
VALUES ($1, $2)
ON CONFLICT (guild_id) DO UPDATE
    SET interval_seconds = EXCLUDED.interval_seconds,
        updated_at       = now()`

	if _, err := s.pool.Exec(ctx, q, guildID, int64(interval/time.Second)); err != nil {
		return fmt.Errorf("settings store: set interval for guild %s: %w", guildID, err)
	}
	return nil
}

// SetCredential implements [settings.Store.SetCredential].
func (s *Store) SetCredential(ctx context.Context, guildID, credential string) error {
	const q = `
INSERT INTO guild_settings (guild_id, api_key)
VALUES ($1, $2)
ON CONFLICT (guild_id) DO UPDATE
    SET api_key    = EXCLUDED.api_key,
        updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, guildID, credential); err != nil {
		return fmt.Errorf("settings store: set credential for guild %s: %w", guildID, err)
	}
	return nil
}
