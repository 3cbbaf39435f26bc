package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Registry owns at most one [Session] per guild. Sessions are created
// lazily on first access and removed after their stop sequence ran. The
// registry lock is never held across a session's Stop, so slow teardowns
// in one guild do not block the others.
//
// All methods are safe for concurrent use.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. cfg supplies the shared session
// dependencies; its GuildID field is ignored and set per session.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the guild's session, creating an idle one on first
// access. Exactly one session exists per guild at any time.
func (r *Registry) GetOrCreate(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	cfg := r.cfg
	cfg.GuildID = guildID
	s := NewSession(cfg)
	r.sessions[guildID] = s
	return s
}

// Get returns the guild's session without creating one.
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Remove stops the guild's session and deletes it from the registry. The
// entry is deleted even when the stop sequence reports an error, so a
// failed teardown never leaves a dangling session behind. Without a
// session for the guild, Remove returns [ErrNotCapturing].
func (r *Registry) Remove(ctx context.Context, guildID string, skipFinal bool) error {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	r.mu.Unlock()
	if !ok {
		return ErrNotCapturing
	}

	err := s.Stop(ctx, skipFinal)

	r.mu.Lock()
	delete(r.sessions, guildID)
	r.mu.Unlock()
	return err
}

// ForceAnalysis triggers an immediate cycle on the guild's session.
func (r *Registry) ForceAnalysis(ctx context.Context, guildID string) error {
	s, ok := r.Get(guildID)
	if !ok {
		return ErrNotCapturing
	}
	return s.ForceAnalysis(ctx)
}

// NextAnalysisAt returns the time of the guild's next scheduled cycle.
func (r *Registry) NextAnalysisAt(guildID string) (time.Time, bool) {
	s, ok := r.Get(guildID)
	if !ok {
		return time.Time{}, false
	}
	return s.NextAt()
}

// Shutdown stops every session without final analyses and empties the
// registry. Used on process teardown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		if err := s.Stop(ctx, true); err != nil && !errors.Is(err, ErrNotCapturing) {
			slog.Warn("session: shutdown stop failed", "guild_id", s.GuildID(), "error", err)
		}
	}
}
