// Package config provides the configuration schema and loader for the Voise
// speech connector.
package config

import "time"

// LogLevel controls log verbosity for the connector.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied when the configuration file omits a field. They
// match the recognizer product's shipped defaults.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8100
	DefaultLanguage      = "pt-BR"
	DefaultEngineID      = "me"
	DefaultInitSilenceMs = 5000
	DefaultMaxSilenceMs  = 1000
	DefaultAbsTimeoutS   = 15
)

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ServerConfig holds the recognizer address and logging settings.
type ServerConfig struct {
	// Host is the Voise server address, without port.
	Host string `yaml:"host"`

	// Port is the Voise server port.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DefaultsConfig holds the per-session defaults. Every field can be
// overridden on a live session through its attribute-change interface; these
// are only the values a fresh session starts with.
//
// The silence and timeout fields are pointers so that an explicit zero or
// negative value (which carries meaning: negative disables a silence policy,
// zero disables the absolute timeout) can be told apart from an omitted one.
type DefaultsConfig struct {
	// Language is the default recognition/synthesis language tag.
	Language string `yaml:"language"`

	// EngineID selects the server-side ASR engine.
	EngineID string `yaml:"asr_engine"`

	// InitSilenceMs is the maximum duration of initial silence in
	// milliseconds. Negative disables the policy.
	InitSilenceMs *int `yaml:"init_silence_ms"`

	// MaxSilenceMs is the maximum duration of trailing silence in
	// milliseconds. Negative disables the policy.
	MaxSilenceMs *int `yaml:"max_silence_ms"`

	// AbsTimeoutS is the absolute recognition timeout in seconds. Zero or
	// negative disables the policy.
	AbsTimeoutS *int `yaml:"abs_timeout_s"`

	// Verbose enables chatty per-chunk logging when greater than zero.
	Verbose int `yaml:"verbose"`
}

// InitSilence returns the initial-silence threshold as a duration.
func (d DefaultsConfig) InitSilence() time.Duration {
	return msPtrDuration(d.InitSilenceMs, DefaultInitSilenceMs)
}

// MaxSilence returns the trailing-silence threshold as a duration.
func (d DefaultsConfig) MaxSilence() time.Duration {
	return msPtrDuration(d.MaxSilenceMs, DefaultMaxSilenceMs)
}

// AbsTimeout returns the absolute timeout as a duration.
func (d DefaultsConfig) AbsTimeout() time.Duration {
	v := DefaultAbsTimeoutS
	if d.AbsTimeoutS != nil {
		v = *d.AbsTimeoutS
	}
	return time.Duration(v) * time.Second
}

func msPtrDuration(p *int, def int) time.Duration {
	v := def
	if p != nil {
		v = *p
	}
	return time.Duration(v) * time.Millisecond
}
