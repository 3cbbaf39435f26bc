// Command discursa is the main entry point for the Discursa voice analysis
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/discursa/discursa/internal/app"
	"github.com/discursa/discursa/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "discursa.yml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "discursa: config file %q not found, copy configs/example.yml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "discursa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("discursa starting",
		"config", *configPath,
		"health_addr", cfg.Server.Addr(),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	provider := string(cfg.Analysis.Provider)
	if provider == "" {
		provider = string(config.DefaultProvider)
	}
	if cfg.Analysis.Model != "" {
		provider += " / " + cfg.Analysis.Model
	}

	store := "in-memory"
	if cfg.Settings.PostgresDSN != "" {
		store = "postgres"
	}

	channels := "mono"
	if !cfg.Capture.MonoEnabled() {
		channels = "stereo"
	}

	discordState := "(disabled)"
	if cfg.Discord.Token != "" {
		discordState = "connected"
	}

	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║         Discursa startup summary       ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printRow("Provider", provider)
	printRow("Settings", store)
	printRow("Capture dir", cfg.Capture.Dir())
	printRow("Audio", fmt.Sprintf("%d Hz %s", cfg.Capture.Rate(), channels))
	printRow("Discord", discordState)
	printRow("Health addr", cfg.Server.Addr())
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 22 {
		value = value[:21] + "…"
	}
	fmt.Printf("║  %-12s : %-22s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Level()}))
}
