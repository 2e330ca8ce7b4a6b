package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the backend names the binary knows how to build.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{"openai-realtime"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, fills defaults for omitted
// fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields the YAML set to zero values.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = def.Provider.Name
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.FrameSamples == 0 {
		cfg.Audio.FrameSamples = def.Audio.FrameSamples
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider
	if cfg.Provider.APIKey == "" {
		errs = append(errs, fmt.Errorf("provider.api_key is required"))
	}
	if cfg.Provider.Name != "" && !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name, may be a typo",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must be positive", cfg.Audio.FrameSamples))
	}

	return errors.Join(errs...)
}
