package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/discursa/discursa/internal/analysis"
)

// ErrProviderNotRegistered is returned by [Registry.CreateInvoker] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps analysis provider names to their constructor functions.
// The application registers the real backends at startup; tests register
// fakes. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	invokers map[Provider]func(AnalysisConfig) (analysis.Invoker, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[Provider]func(AnalysisConfig) (analysis.Invoker, error)),
	}
}

// RegisterInvoker registers an invoker factory under provider.
// Subsequent calls with the same provider overwrite the previous
// registration.
func (r *Registry) RegisterInvoker(provider Provider, factory func(AnalysisConfig) (analysis.Invoker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[provider] = factory
}

// CreateInvoker instantiates the invoker selected by cfg.Provider,
// falling back to [DefaultProvider] when none is set. Returns
// [ErrProviderNotRegistered] if no factory has been registered for that
// provider.
func (r *Registry) CreateInvoker(cfg AnalysisConfig) (analysis.Invoker, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = DefaultProvider
	}

	r.mu.RLock()
	factory, ok := r.invokers[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, provider)
	}
	return factory(cfg)
}
