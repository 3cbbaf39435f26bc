package settings

import (
	"context"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Settings
// do not survive a restart; it is suitable for testing and for running
// without a database.
type MemStore struct {
	mu     sync.RWMutex
	guilds map[string]Settings
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{guilds: make(map[string]Settings)}
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, guildID string) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stored, ok := s.guilds[guildID]; ok {
		return stored, nil
	}
	return Defaults(), nil
}

// SetMode implements [Store.SetMode].
func (s *MemStore) SetMode(ctx context.Context, guildID string, mode Mode) error {
	if !mode.IsValid() {
		return ErrInvalidMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.load(guildID)
	stored.Mode = mode
	s.guilds[guildID] = stored
	return nil
}

// SetInterval implements [Store.SetInterval].
func (s *MemStore) SetInterval(ctx context.Context, guildID string, interval time.Duration) error {
	if interval < MinInterval || interval > MaxInterval {
		return ErrIntervalOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.load(guildID)
	stored.Interval = interval
	s.guilds[guildID] = stored
	return nil
}

// SetCredential implements [Store.SetCredential].
func (s *MemStore) SetCredential(ctx context.Context, guildID, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.load(guildID)
	stored.Credential = credential
	s.guilds[guildID] = stored
	return nil
}

// load returns the stored settings or defaults. Callers must hold mu.
func (s *MemStore) load(guildID string) Settings {
	if stored, ok := s.guilds[guildID]; ok {
		return stored
	}
	return Defaults()
}
