// Package app wires all Discursa subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context ends, and Shutdown tears
// everything down in reverse initialisation order.
//
// For testing, inject doubles via functional options (WithStore,
// WithInvoker, WithMetrics). When an option is not provided, New creates
// the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/discursa/discursa/internal/analysis"
	"github.com/discursa/discursa/internal/analysis/gemini"
	"github.com/discursa/discursa/internal/analysis/openai"
	"github.com/discursa/discursa/internal/artifact"
	"github.com/discursa/discursa/internal/config"
	"github.com/discursa/discursa/internal/discord"
	"github.com/discursa/discursa/internal/discord/commands"
	"github.com/discursa/discursa/internal/health"
	"github.com/discursa/discursa/internal/observe"
	"github.com/discursa/discursa/internal/session"
	"github.com/discursa/discursa/internal/settings"
	settingspg "github.com/discursa/discursa/internal/settings/postgres"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	metrics  *observe.Metrics
	store    settings.Store
	pipeline *artifact.Pipeline
	invoker  analysis.Invoker
	bot      *discord.Bot
	registry *session.Registry
	health   *health.Server

	analyzeCmds  *commands.AnalyzeCommands
	settingsCmds *commands.SettingsCommands

	// closers run in reverse append order during Shutdown, so the
	// subsystems built last are torn down first.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option customises App construction, mainly to inject test doubles.
type Option func(*App)

// WithStore injects a settings store, bypassing the config-driven choice
// between Postgres and the in-memory store.
func WithStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithInvoker injects an analysis invoker, bypassing the provider registry.
func WithInvoker(inv analysis.Invoker) Option {
	return func(a *App) { a.invoker = inv }
}

// WithMetrics injects a metrics instance, skipping OTel provider setup.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates all subsystems from cfg. ctx covers construction-time work
// only (the Discord gateway handshake, the Postgres pool check); the
// lifetime of the running application is governed by the context passed
// to [App.Run].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Observability ──────────────────────────────────────────────────────
	if a.metrics == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "discursa"})
		if err != nil {
			return nil, fmt.Errorf("init observability: %w", err)
		}
		a.closers = append(a.closers, shutdown)

		a.metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
	}

	// ── 2. Settings store ─────────────────────────────────────────────────────
	if a.store == nil {
		if dsn := cfg.Settings.PostgresDSN; dsn != "" {
			pg, err := settingspg.NewStore(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("connect settings store: %w", err)
			}
			a.store = pg
			a.closers = append(a.closers, func(context.Context) error {
				pg.Close()
				return nil
			})
			slog.Info("settings store ready", "backend", "postgres")
		} else {
			a.store = settings.NewMemStore()
			slog.Info("settings store ready", "backend", "memory")
		}
	}

	// ── 3. Artifact pipeline ──────────────────────────────────────────────────
	pipeline, err := artifact.New(cfg.Capture.Dir(),
		artifact.WithMono(cfg.Capture.MonoEnabled()),
		artifact.WithTargetRate(cfg.Capture.Rate()),
	)
	if err != nil {
		return nil, fmt.Errorf("create artifact pipeline: %w", err)
	}
	a.pipeline = pipeline

	// ── 4. Analysis invoker ───────────────────────────────────────────────────
	if a.invoker == nil {
		a.invoker, err = buildInvoker(cfg.Analysis)
		if err != nil {
			return nil, fmt.Errorf("create analysis invoker: %w", err)
		}
	}

	// ── 5. Discord bot ────────────────────────────────────────────────────────
	var resolver session.NameResolver
	if cfg.Discord.Token != "" {
		bot, err := discord.New(ctx, cfg.Discord)
		if err != nil {
			return nil, fmt.Errorf("connect discord: %w", err)
		}
		a.bot = bot
		a.closers = append(a.closers, func(context.Context) error { return bot.Close() })
		resolver = discord.NewNameResolver(bot.Session())
	} else {
		slog.Warn("no discord token configured, running without the bot")
	}

	// ── 6. Session registry ───────────────────────────────────────────────────
	provider := cfg.Analysis.Provider
	if provider == "" {
		provider = config.DefaultProvider
	}
	a.registry = session.NewRegistry(session.Config{
		Store:     a.store,
		Converter: a.pipeline,
		Invoker:   a.invoker,
		Resolver:  resolver,
		Metrics:   a.metrics,
		Provider:  string(provider),
	})
	a.closers = append(a.closers, func(ctx context.Context) error {
		a.registry.Shutdown(ctx)
		return nil
	})

	// ── 7. Health server ──────────────────────────────────────────────────────
	a.health = health.NewServer(health.ServerConfig{
		Addr:     cfg.Server.Addr(),
		Metrics:  a.metrics,
		Checkers: a.healthCheckers(),
	})

	return a, nil
}

// buildInvoker constructs the configured analysis backend through the
// provider registry and layers the global API key fallback on top.
func buildInvoker(cfg config.AnalysisConfig) (analysis.Invoker, error) {
	reg := config.NewRegistry()

	reg.RegisterInvoker(config.ProviderGemini, func(ac config.AnalysisConfig) (analysis.Invoker, error) {
		var opts []gemini.Option
		if ac.Model != "" {
			opts = append(opts, gemini.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(ac.BaseURL))
		}
		return gemini.New(opts...), nil
	})

	reg.RegisterInvoker(config.ProviderOpenAI, func(ac config.AnalysisConfig) (analysis.Invoker, error) {
		var opts []openai.Option
		if ac.Model != "" {
			opts = append(opts, openai.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(ac.BaseURL))
		}
		return openai.New(opts...), nil
	})

	inv, err := reg.CreateInvoker(cfg)
	if err != nil {
		return nil, err
	}

	provider := cfg.Provider
	if provider == "" {
		provider = config.DefaultProvider
	}
	slog.Info("analysis backend ready", "provider", provider, "model", cfg.Model)

	return withFallbackCredential(inv, cfg.APIKey), nil
}

// fallbackInvoker fills the server-wide API key into requests from guilds
// that have not stored a credential of their own.
type fallbackInvoker struct {
	inner analysis.Invoker
	key   string
}

func withFallbackCredential(inner analysis.Invoker, key string) analysis.Invoker {
	if key == "" {
		return inner
	}
	return &fallbackInvoker{inner: inner, key: key}
}

func (f *fallbackInvoker) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	if req.Credential == "" {
		req.Credential = f.key
	}
	return f.inner.Analyze(ctx, req)
}

// healthCheckers assembles the /readyz checks for the dependencies that
// can actually fail at runtime.
func (a *App) healthCheckers() []health.Checker {
	var checks []health.Checker

	if a.bot != nil {
		s := a.bot.Session()
		checks = append(checks, health.Checker{
			Name: "gateway",
			Check: func(context.Context) error {
				if !s.DataReady {
					return errors.New("gateway not ready")
				}
				return nil
			},
		})
	}

	if pg, ok := a.store.(*settingspg.Store); ok {
		checks = append(checks, health.Checker{
			Name:  "settings",
			Check: pg.Ping,
		})
	}

	return checks
}

// Run registers the slash commands, starts the bot loop and the health
// listener, then blocks until ctx is cancelled. ctx also bounds every
// capture session started from slash commands, so it must span the whole
// process lifetime.
func (a *App) Run(ctx context.Context) error {
	if a.bot != nil {
		a.analyzeCmds = commands.NewAnalyzeCommands(ctx, a.bot, a.registry)
		a.settingsCmds = commands.NewSettingsCommands(a.bot, a.store)
	}

	var wg sync.WaitGroup
	if a.bot != nil {
		wg.Go(func() {
			if err := a.bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("discord bot stopped", "error", err)
			}
		})
	}
	wg.Go(func() {
		if err := a.health.ListenAndServe(); err != nil {
			slog.Error("health server failed", "error", err)
		}
	})

	slog.Info("discursa running", "health_addr", a.cfg.Server.Addr())
	<-ctx.Done()

	// Unblock the health goroutine; the bot goroutine exits on ctx.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.health.Shutdown(stopCtx); err != nil {
		slog.Warn("health server shutdown", "error", err)
	}

	wg.Wait()
	return ctx.Err()
}

// Shutdown tears all subsystems down in reverse initialisation order:
// capture sessions stop before the Discord connection closes, the
// settings store and telemetry go last. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var retErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				retErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("closer failed during shutdown", "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return retErr
}

// Registry exposes the session registry, mainly for tests.
func (a *App) Registry() *session.Registry { return a.registry }

// Store exposes the settings store, mainly for tests.
func (a *App) Store() settings.Store { return a.store }

// Bot returns the Discord bot, or nil when no token is configured.
func (a *App) Bot() *discord.Bot { return a.bot }
