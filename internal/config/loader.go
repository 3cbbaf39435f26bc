package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Conditions that only degrade the service produce warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Analysis.Provider != "" && !cfg.Analysis.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("analysis.provider %q is invalid; valid values: gemini, openai", cfg.Analysis.Provider))
	}

	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative", cfg.Capture.SampleRate))
	}
	if cfg.Capture.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d exceeds the 48000 Hz capture rate", cfg.Capture.SampleRate))
	}

	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the bot cannot connect until one is configured")
	}
	if cfg.Analysis.APIKey == "" {
		slog.Warn("analysis.api_key is empty; guilds must store their own key via /settings set_key before analyses run")
	}
	if cfg.Settings.PostgresDSN == "" {
		slog.Warn("settings.postgres_dsn is empty; using the in-memory store, guild settings will not survive restarts")
	}

	return errors.Join(errs...)
}
