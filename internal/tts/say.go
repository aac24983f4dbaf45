// Package tts drives remote speech synthesis onto a telephony channel.
//
// The pump is paced by the channel itself: for every inbound frame read from
// the caller, one synthesized frame of the same duration is written back.
// That keeps playback real-time without any timer bookkeeping, and makes a
// hangup (inbound read failure) abort playback immediately.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomferreira/voise-asterisk-module/internal/observe"
	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
	"github.com/tomferreira/voise-asterisk-module/pkg/telephony"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

const (
	// Synthesis format: A-law telephony audio, one byte per sample.
	synthEncoding   = "ALAW"
	synthSampleRate = 8000

	// frameSize is one 20ms A-law frame.
	frameSize = 160

	// defaultSettle is how long playback waits after the synthesis request
	// is accepted, giving the server a head start on audio generation.
	defaultSettle = 300 * time.Millisecond
)

// SpeakerConfig configures a [Speaker].
type SpeakerConfig struct {
	// Dialer connects to the synthesizer. Required.
	Dialer asr.Dialer

	// Language is the default synthesis language tag.
	Language string

	// SettleDelay overrides the pause between the accepted synthesis
	// request and the first played frame. Defaults to 300ms.
	SettleDelay time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Speaker synthesizes text and plays it onto telephony channels. Each Say
// call dials its own connection, so a Speaker can serve many channels.
type Speaker struct {
	dialer   asr.Dialer
	language string
	settle   time.Duration
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewSpeaker creates a [Speaker] from the given configuration.
func NewSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("tts: speaker requires a dialer")
	}
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = defaultSettle
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Speaker{
		dialer:   cfg.Dialer,
		language: cfg.Language,
		settle:   settle,
		log:      logger,
		metrics:  metrics,
	}, nil
}

// Options adjusts a single Say call.
type Options struct {
	// Beep plays a prompt tone before the synthesized audio.
	Beep bool

	// Language overrides the speaker's default language when non-empty.
	Language string

	// Verbose enables chatty per-frame logging when greater than zero.
	Verbose int
}

// Say synthesizes text and plays it to the channel. It blocks until the
// synthesized audio has been played in full, the caller hangs up, or ctx
// is cancelled. A hangup or transport failure aborts playback and is
// returned to the caller.
func (sp *Speaker) Say(ctx context.Context, ch telephony.Channel, text string, opts Options) error {
	lang := opts.Language
	if lang == "" {
		lang = sp.language
	}
	log := sp.log.With("channel", ch.Name())

	client, err := sp.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("tts: connect to synthesizer: %w", err)
	}
	defer client.Close(context.WithoutCancel(ctx))

	resp, err := client.StartSynth(ctx, asr.SynthParams{
		Text:       text,
		Encoding:   synthEncoding,
		SampleRate: synthSampleRate,
		Language:   lang,
	})
	if err != nil {
		sp.metrics.RecordProtocolError(ctx, "start_synth")
		return fmt.Errorf("tts: start synthesis: %w", err)
	}
	if !resp.Accepted() {
		sp.metrics.RecordProtocolError(ctx, "start_synth")
		return fmt.Errorf("tts: start synthesis: status %d (%s): %w",
			resp.Status, resp.Message, asr.ErrRejected)
	}

	if opts.Beep {
		if err := ch.PlayBeep(ctx); err != nil {
			return fmt.Errorf("tts: play beep: %w", err)
		}
	}

	// Give the server a moment to produce audio before the pump starts.
	select {
	case <-time.After(sp.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	started := time.Now()
	log.Info("playback started", "text_len", len(text), "language", lang)

	if err := sp.pump(ctx, ch, client, opts.Verbose > 0); err != nil {
		ch.StopPlayback()
		return err
	}

	elapsed := time.Since(started)
	sp.metrics.SynthDuration.Record(ctx, elapsed.Seconds())
	log.Info("playback finished", "duration_ms", elapsed.Milliseconds())
	return nil
}

// pump runs the paired read/write loop: one goroutine reads inbound frames
// for pacing and hangup detection, the other fetches synthesized audio and
// plays it. The pump ends on the synthesizer's first short read.
func (sp *Speaker) pump(ctx context.Context, ch telephony.Channel, client asr.Client, verbose bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	ticks := make(chan struct{})

	g.Go(func() error {
		for {
			if _, err := ch.ReadFrame(ctx); err != nil {
				if ctx.Err() != nil {
					// Pump finished; the read was cut short on purpose.
					return nil
				}
				return fmt.Errorf("tts: channel read: %w", err)
			}
			select {
			case ticks <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		buf := make([]byte, frameSize)
		for {
			select {
			case <-ticks:
			case <-ctx.Done():
				return ctx.Err()
			}

			n, err := client.ReadSynth(ctx, buf)
			if err != nil {
				sp.metrics.RecordProtocolError(ctx, "read_synth")
				return fmt.Errorf("tts: read synthesized audio: %w", err)
			}
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				if err := ch.WriteFrame(ctx, types.AudioChunk{
					Data:       frame,
					SampleRate: synthSampleRate,
				}); err != nil {
					return fmt.Errorf("tts: channel write: %w", err)
				}
				if verbose {
					sp.log.Debug("frame played", "bytes", n)
				}
			}
			if n < frameSize {
				return nil
			}
		}
	})

	return g.Wait()
}
