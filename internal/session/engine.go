package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tomferreira/voise-asterisk-module/internal/config"
	"github.com/tomferreira/voise-asterisk-module/internal/observe"
	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
	"github.com/tomferreira/voise-asterisk-module/pkg/vad"
	"github.com/tomferreira/voise-asterisk-module/pkg/vad/energy"
)

// DefaultSampleRate is the telephony sample rate assumed when none is
// configured.
const DefaultSampleRate = 8000

// EngineConfig configures an [Engine].
type EngineConfig struct {
	// Dialer connects new sessions to the recognizer. Required.
	Dialer asr.Dialer

	// Defaults seeds the attribute values every fresh session starts with.
	Defaults config.DefaultsConfig

	// NewDetector builds the silence classifier given to each session.
	// Defaults to the energy classifier at its standard threshold.
	NewDetector func() vad.Detector

	// SampleRate of the audio the host delivers, in Hz. Defaults to
	// DefaultSampleRate.
	SampleRate int

	// Logger for the engine and its sessions. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics instruments for all sessions. Defaults to
	// observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Engine is the stateless session factory. It holds the configured defaults
// and the recognizer dialer; every session it produces is independent and
// owns its own connection, there is no shared mutable state between them.
type Engine struct {
	dialer      asr.Dialer
	defaults    settings
	newDetector func() vad.Detector
	sampleRate  int
	log         *slog.Logger
	metrics     *observe.Metrics

	nextID atomic.Int64
}

// NewEngine creates an [Engine] from the given configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("session: engine requires a dialer")
	}
	newDetector := cfg.NewDetector
	if newDetector == nil {
		newDetector = func() vad.Detector { return energy.New(energy.DefaultThreshold) }
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Engine{
		dialer: cfg.Dialer,
		defaults: settings{
			Verbose:     cfg.Defaults.Verbose,
			Language:    cfg.Defaults.Language,
			EngineID:    cfg.Defaults.EngineID,
			InitSilence: cfg.Defaults.InitSilence(),
			MaxSilence:  cfg.Defaults.MaxSilence(),
			AbsTimeout:  cfg.Defaults.AbsTimeout(),
		},
		newDetector: newDetector,
		sampleRate:  sampleRate,
		log:         logger,
		metrics:     metrics,
	}, nil
}

// NewSession dials the recognizer and returns a fresh not-ready session
// seeded with the engine defaults. The channel name only labels the
// session's logs.
func (e *Engine) NewSession(ctx context.Context, channel string) (*Session, error) {
	client, err := e.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: connect to recognizer: %w", err)
	}
	id := e.nextID.Add(1)
	return &Session{
		client:     client,
		tracker:    vad.NewTracker(e.newDetector(), e.sampleRate),
		log:        e.log.With("session_id", id, "channel", channel),
		metrics:    e.metrics,
		sampleRate: e.sampleRate,
		pending:    e.defaults,
		state:      StateNotReady,
		now:        time.Now,
	}, nil
}
