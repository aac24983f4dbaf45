// Package session implements the recognition session state machine: the
// controller that fuses voice-activity detection, the three deadline
// policies and the recognizer protocol into one per-chunk decision ladder.
//
// A [Session] is single-threaded by contract. The caller that owns the
// telephony channel drives it one audio chunk at a time and serializes all
// calls; Feed never returns before a chunk is fully processed. Timeouts are
// cooperative: they are evaluated when a chunk arrives, so a host that stops
// delivering audio also stops the clock.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tomferreira/voise-asterisk-module/internal/deadline"
	"github.com/tomferreira/voise-asterisk-module/internal/observe"
	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
	"github.com/tomferreira/voise-asterisk-module/pkg/vad"
)

// noiseFrameThreshold is the number of extra consecutive non-silent chunks
// required before speech is considered detected: the counter must exceed
// this value, so detection fires on the second chunk.
const noiseFrameThreshold = 1

// ErrInvalidAttribute is returned by Change for an unknown attribute name.
var ErrInvalidAttribute = errors.New("unknown session attribute")

// ErrInvalidState is returned when an operation is called from a state that
// does not permit it, such as feeding audio before Start.
var ErrInvalidState = errors.New("operation not valid in current session state")

// State is the engine state of a recognition session.
type State int

const (
	// StateNotReady means nothing is streaming: the session was just
	// created, or the previous attempt finished with an unrecoverable
	// error. A fresh Start can always be issued from here.
	StateNotReady State = iota

	// StateReady means streaming-start was acknowledged and audio chunks
	// are being accepted.
	StateReady

	// StateWait means a stop was issued and the terminal response is being
	// assembled.
	StateWait

	// StateDone means results are available.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateReady:
		return "ready"
	case StateWait:
		return "wait"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is the side-effect signal Feed hands back to the host.
type Event int

const (
	// EventNone means the chunk was processed with nothing to report.
	EventNone Event = iota

	// EventSpeechDetected means the caller started talking; the host should
	// quiet any prompt still playing.
	EventSpeechDetected

	// EventComplete means a deadline tripped, the stream was stopped and
	// results are available via Results.
	EventComplete
)

// Completion reasons, recorded as the "reason" metric attribute.
const (
	reasonInitialSilence  = "initial_silence"
	reasonTrailingSilence = "trailing_silence"
	reasonAbsoluteTimeout = "absolute_timeout"
)

// settings is the mutable per-session attribute bag. A session keeps two
// copies: pending, mutated by Change at any time, and active, the snapshot
// taken by Start that an in-flight attempt reads. Changing an attribute
// mid-stream therefore never alters a running attempt's deadlines.
type settings struct {
	Verbose     int
	Language    string
	EngineID    string
	ModelName   string
	InitSilence time.Duration
	MaxSilence  time.Duration
	AbsTimeout  time.Duration
}

// Session is one recognition attempt driver bound to one exclusive
// recognizer connection. Create sessions through [Engine.NewSession].
//
// Not safe for concurrent use; the caller serializes all methods.
type Session struct {
	client  asr.Client
	tracker *vad.Tracker
	log     *slog.Logger
	metrics *observe.Metrics

	sampleRate int
	pending    settings
	active     settings
	nbest      bool
	closed     bool

	state       State
	heardSpeech bool
	noiseFrames int
	startedAt   time.Time
	results     []types.Hypothesis

	now func() time.Time // stubbed in tests
}

// State returns the session's current engine state.
func (s *Session) State() State { return s.state }

// Start begins a recognition attempt. It is only valid from the not-ready
// state. Start resets all voice-activity state, snapshots the pending
// attribute values and issues the streaming-start exchange; on success the
// acknowledgment time becomes the absolute-timeout reference instant.
//
// On a transport failure or a rejected status the session stays not-ready
// and the error wraps the cause (asr.ErrRejected for rejections).
func (s *Session) Start(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("session: start: %w", asr.ErrClosed)
	}
	if s.state != StateNotReady {
		return fmt.Errorf("session: start from %s: %w", s.state, ErrInvalidState)
	}

	s.tracker.Reset()
	s.heardSpeech = false
	s.noiseFrames = 0
	s.results = nil
	s.active = s.pending

	resp, err := s.client.StartStreaming(ctx, asr.StreamParams{
		Encoding:   "LINEAR16",
		SampleRate: s.sampleRate,
		Language:   s.active.Language,
		ModelName:  s.active.ModelName,
		EngineID:   s.active.EngineID,
	})
	if err != nil {
		s.metrics.RecordProtocolError(ctx, "start_streaming")
		return fmt.Errorf("session: start streaming: %w", err)
	}
	if !resp.Accepted() {
		s.metrics.RecordProtocolError(ctx, "start_streaming")
		return fmt.Errorf("session: start streaming: status %d (%s): %w",
			resp.Status, resp.Message, asr.ErrRejected)
	}

	s.startedAt = s.now()
	s.state = StateReady
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("recognition started",
		"language", s.active.Language,
		"engine", s.active.EngineID,
		"model", s.active.ModelName)
	return nil
}

// Feed processes one audio chunk. Only valid while the session is ready.
//
// The decision ladder runs in fixed order and the first matching rule wins:
// speech-start detection, initial-silence deadline, trailing-silence
// deadline, absolute timeout, silent-chunk counter reset, and finally
// forwarding the chunk to the recognizer. Any protocol failure moves the
// session to not-ready and the attempt is over; the caller must not feed
// further chunks.
func (s *Session) Feed(ctx context.Context, chunk types.AudioChunk) (Event, error) {
	if s.state != StateReady {
		return EventNone, fmt.Errorf("session: feed in %s: %w", s.state, ErrInvalidState)
	}

	silent, silence := s.tracker.Observe(chunk.Data)
	elapsed := s.now().Sub(s.startedAt)

	if s.active.Verbose > 0 {
		s.log.Debug("chunk observed",
			"bytes", len(chunk.Data),
			"silent", silent,
			"silence_ms", silence.Milliseconds(),
			"elapsed_ms", elapsed.Milliseconds())
	}

	if !s.heardSpeech && !silent {
		s.noiseFrames++
		if s.noiseFrames > noiseFrameThreshold {
			s.heardSpeech = true
			s.noiseFrames = 0
			s.metrics.SpeechDetectLatency.Record(ctx, elapsed.Seconds())
			s.log.Info("speech detected", "after_ms", elapsed.Milliseconds())
			return EventSpeechDetected, nil
		}
		return EventNone, nil
	}
	if silent && deadline.InitialSilenceExceeded(s.active.InitSilence, silence, s.heardSpeech) {
		return s.complete(ctx, reasonInitialSilence)
	}
	if silent && deadline.TrailingSilenceExceeded(s.active.MaxSilence, silence, s.heardSpeech) {
		return s.complete(ctx, reasonTrailingSilence)
	}
	if deadline.AbsoluteTimeoutExceeded(s.active.AbsTimeout, elapsed) {
		return s.complete(ctx, reasonAbsoluteTimeout)
	}
	if silent {
		s.noiseFrames = 0
		return EventNone, nil
	}

	if err := s.client.SendAudio(ctx, chunk.Data); err != nil {
		return EventNone, s.fail(ctx, "send_audio", err)
	}
	s.metrics.ChunksStreamed.Add(ctx, 1)
	return EventNone, nil
}

// complete stops the stream, assembles the hypothesis list and moves the
// session to done. Called when a deadline policy trips.
func (s *Session) complete(ctx context.Context, reason string) (Event, error) {
	s.state = StateWait

	resp, err := s.client.StopStreaming(ctx)
	if err != nil {
		return EventNone, s.fail(ctx, "stop_streaming", err)
	}
	if !resp.Accepted() {
		return EventNone, s.fail(ctx, "stop_streaming",
			fmt.Errorf("status %d (%s): %w", resp.Status, resp.Message, asr.ErrRejected))
	}

	s.results = assembleHypotheses(resp, s.maxHypotheses())
	s.state = StateDone

	elapsed := s.now().Sub(s.startedAt)
	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.RecognitionDuration.Record(ctx, elapsed.Seconds())
	s.metrics.RecordCompletion(ctx, reason)
	s.log.Info("recognition complete",
		"reason", reason,
		"duration_ms", elapsed.Milliseconds(),
		"hypotheses", len(s.results))
	return EventComplete, nil
}

// fail moves the session to the terminal error state and wraps the cause.
// A fresh Start can be issued afterwards.
func (s *Session) fail(ctx context.Context, op string, err error) error {
	s.state = StateNotReady
	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.RecordProtocolError(ctx, op)
	s.log.Error("recognition aborted", "op", op, "error", err)
	return fmt.Errorf("session: %s: %w", op, err)
}

// DTMF records a received DTMF digit. Digits are accepted and logged but
// produce no state change; the capability is reserved for future use.
func (s *Session) DTMF(digit byte) {
	s.log.Debug("dtmf digit ignored", "digit", string(digit))
}

// Session attribute names accepted by Change. They match the recognizer
// product's documented attribute surface; "lang" is an alias for "language".
const (
	AttrVerbose    = "verbose"
	AttrLanguage   = "language"
	AttrLang       = "lang"
	AttrEngine     = "asr_engine"
	AttrInitSil    = "initsil"
	AttrMaxSil     = "maxsil"
	AttrAbsTimeout = "abs_timeout"
)

// Change sets one pending session attribute. Valid in any state; the new
// value is read by the next Start and never alters an in-flight attempt.
// Unknown names return ErrInvalidAttribute without any state change.
func (s *Session) Change(name, value string) error {
	switch name {
	case AttrVerbose:
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("session: attribute %q: %w", name, err)
		}
		s.pending.Verbose = v
	case AttrLanguage, AttrLang:
		s.pending.Language = value
	case AttrEngine:
		s.pending.EngineID = value
	case AttrInitSil:
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("session: attribute %q: %w", name, err)
		}
		s.pending.InitSilence = time.Duration(ms) * time.Millisecond
	case AttrMaxSil:
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("session: attribute %q: %w", name, err)
		}
		s.pending.MaxSilence = time.Duration(ms) * time.Millisecond
	case AttrAbsTimeout:
		sec, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("session: attribute %q: %w", name, err)
		}
		s.pending.AbsTimeout = time.Duration(sec) * time.Second
	default:
		return fmt.Errorf("session: attribute %q: %w", name, ErrInvalidAttribute)
	}
	s.log.Debug("attribute changed", "name", name, "value", value)
	return nil
}

// ActivateGrammar selects the grammar/model the next Start will request.
func (s *Session) ActivateGrammar(name string) {
	s.pending.ModelName = name
}

// DeactivateGrammar clears the active grammar/model. The model name becomes
// the empty string, which the protocol client omits from the start request.
func (s *Session) DeactivateGrammar() {
	s.pending.ModelName = ""
}

// SetNBest switches N-best result assembly on or off for subsequent
// completions.
func (s *Session) SetNBest(enabled bool) {
	s.nbest = enabled
}

// maxHypotheses returns how many hypotheses the assembler should produce for
// the current N-best setting.
func (s *Session) maxHypotheses() int {
	if s.nbest {
		return maxNBest
	}
	return 1
}

// Results returns the hypothesis list of the completed attempt, ordered
// best-first. Before the session reaches done it returns nil, never a
// partial list. The returned slice stays valid until the next Start.
func (s *Session) Results() []types.Hypothesis {
	if s.state != StateDone {
		return nil
	}
	return s.results
}

// Close releases the session's recognizer connection. If a stream is still
// open it is stopped first so no server-side session leaks. Safe to call
// more than once; after Close the session cannot be restarted.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.state == StateReady || s.state == StateWait {
		if _, err := s.client.StopStreaming(ctx); err != nil {
			s.metrics.RecordProtocolError(ctx, "stop_streaming")
			errs = append(errs, fmt.Errorf("stop streaming: %w", err))
		}
		s.metrics.ActiveSessions.Add(ctx, -1)
	}
	s.state = StateNotReady

	if err := s.client.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	s.log.Debug("session closed")
	return nil
}
