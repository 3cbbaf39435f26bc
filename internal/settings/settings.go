// Package settings stores per-guild analysis preferences.
package settings

import (
	"context"
	"errors"
	"time"
)

// Mode selects the analysis style for a guild.
type Mode string

const (
	// ModeDebate produces a structured debate analysis with per-speaker
	// positions and argument quality.
	ModeDebate Mode = "debate"

	// ModeSummary produces a concise summary of the discussion.
	ModeSummary Mode = "summary"
)

// IsValid reports whether m is a known analysis mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeDebate, ModeSummary:
		return true
	}
	return false
}

// DefaultMode applies to guilds that never configured a mode.
const DefaultMode = ModeDebate

// Interval bounds and default for scheduled analysis cycles.
const (
	// DefaultInterval applies to guilds that never configured an interval.
	DefaultInterval = 5 * time.Minute

	// MinInterval is the shortest interval stores accept.
	MinInterval = time.Minute

	// MaxInterval is the longest interval stores accept.
	MaxInterval = time.Hour
)

var (
	// ErrInvalidMode is returned by SetMode for unknown modes.
	ErrInvalidMode = errors.New("settings: unknown analysis mode")

	// ErrIntervalOutOfRange is returned by SetInterval for intervals outside
	// [MinInterval, MaxInterval].
	ErrIntervalOutOfRange = errors.New("settings: interval out of range")
)

// Settings holds one guild's analysis preferences.
type Settings struct {
	// Mode selects the analysis style.
	Mode Mode

	// Interval is the pause between scheduled analysis cycles.
	Interval time.Duration

	// Credential is the API key used for analysis calls. Empty means the
	// guild has not configured one.
	Credential string
}

// Defaults returns the settings applied to unconfigured guilds.
func Defaults() Settings {
	return Settings{Mode: DefaultMode, Interval: DefaultInterval}
}

// Store persists per-guild settings.
//
// Get never fails for unknown guilds; it returns [Defaults]. Setters create
// the guild's record as needed and validate their input, so a running
// session can trust what it reads back. All implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the guild's settings, or defaults when none are stored.
	Get(ctx context.Context, guildID string) (Settings, error)

	// SetMode updates the guild's analysis mode.
	// Returns [ErrInvalidMode] for unknown modes.
	SetMode(ctx context.Context, guildID string, mode Mode) error

	// SetInterval updates the pause between scheduled analysis cycles.
	// Returns [ErrIntervalOutOfRange] for intervals outside
	// [MinInterval, MaxInterval].
	SetInterval(ctx context.Context, guildID string, interval time.Duration) error

	// SetCredential updates the guild's analysis API key. An empty
	// credential clears it.
	SetCredential(ctx context.Context, guildID, credential string) error
}
