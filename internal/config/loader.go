package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissing is returned by [Load] when no configuration source is available.
// Creating a recognition engine without configuration is fatal, so callers
// should treat this as unrecoverable rather than fall back to hardcoded
// values silently.
var ErrMissing = errors.New("config: no configuration source available")

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrMissing, path)
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills omitted fields with the shipped defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Defaults.Language == "" {
		cfg.Defaults.Language = DefaultLanguage
	}
	if cfg.Defaults.EngineID == "" {
		cfg.Defaults.EngineID = DefaultEngineID
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}

	// Disabled policies are valid configuration, but a session with every
	// deadline disabled never completes on silence; flag it.
	if cfg.Defaults.InitSilence() < 0 && cfg.Defaults.MaxSilence() < 0 && cfg.Defaults.AbsTimeout() <= 0 {
		slog.Warn("all recognition deadlines are disabled; sessions will only complete when the caller stops feeding audio")
	}

	if cfg.Defaults.Verbose < 0 {
		errs = append(errs, fmt.Errorf("defaults.verbose %d must not be negative", cfg.Defaults.Verbose))
	}

	return errors.Join(errs...)
}
