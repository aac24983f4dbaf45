package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tomferreira/voise-asterisk-module/internal/config"
	"github.com/tomferreira/voise-asterisk-module/internal/observe"
	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
	asrmock "github.com/tomferreira/voise-asterisk-module/pkg/asr/mock"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
	"github.com/tomferreira/voise-asterisk-module/pkg/vad"
	vadmock "github.com/tomferreira/voise-asterisk-module/pkg/vad/mock"
)

// fakeClock lets tests advance session time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestSession builds a session wired to the given mocks with a stubbed
// clock. A nil client or detector gets a permissive default.
func newTestSession(t *testing.T, cl *asrmock.Client, det *vadmock.Detector) (*Session, *fakeClock) {
	t.Helper()
	if cl == nil {
		cl = &asrmock.Client{}
	}
	if det == nil {
		det = &vadmock.Detector{Default: true}
	}
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	eng, err := NewEngine(EngineConfig{
		Dialer:      &asrmock.Dialer{Client: cl},
		Defaults:    config.DefaultsConfig{Language: "pt-BR", EngineID: "me"},
		NewDetector: func() vad.Detector { return det },
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     metrics,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	s, err := eng.NewSession(context.Background(), "SIP/test-0001")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	clock := &fakeClock{t: time.Now()}
	s.now = clock.Now
	return s, clock
}

// pcmChunk returns a zeroed 16-bit PCM chunk of the given duration at the
// default sample rate.
func pcmChunk(ms int) types.AudioChunk {
	return types.AudioChunk{
		Data:       make([]byte, ms*2*DefaultSampleRate/1000),
		SampleRate: DefaultSampleRate,
	}
}

// mustStart starts the session or fails the test.
func mustStart(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// feed feeds one 20ms chunk or fails the test.
func feed(t *testing.T, s *Session) Event {
	t.Helper()
	ev, err := s.Feed(context.Background(), pcmChunk(20))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	return ev
}

func TestNewEngine_RequiresDialer(t *testing.T) {
	t.Parallel()
	if _, err := NewEngine(EngineConfig{}); err == nil {
		t.Fatal("NewEngine without dialer should fail")
	}
}

func TestNewSession_DialFailure(t *testing.T) {
	t.Parallel()
	eng, err := NewEngine(EngineConfig{
		Dialer: &asrmock.Dialer{DialErr: errors.New("connection refused")},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := eng.NewSession(context.Background(), "SIP/test-0001"); err == nil {
		t.Fatal("NewSession should surface the dial error")
	}
}

func TestStart_SendsSnapshotOfAttributes(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	s, _ := newTestSession(t, cl, nil)

	if err := s.Change(AttrLanguage, "en-US"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if err := s.Change(AttrEngine, "asr1"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	s.ActivateGrammar("pizza-order")
	mustStart(t, s)

	if len(cl.StartCalls) != 1 {
		t.Fatalf("StartStreaming calls = %d, want 1", len(cl.StartCalls))
	}
	p := cl.StartCalls[0].Params
	want := asr.StreamParams{
		Encoding:   "LINEAR16",
		SampleRate: DefaultSampleRate,
		Language:   "en-US",
		ModelName:  "pizza-order",
		EngineID:   "asr1",
	}
	if p != want {
		t.Errorf("StreamParams = %+v, want %+v", p, want)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want %s", s.State(), StateReady)
	}
}

func TestStart_RejectedStaysNotReady(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{
		StartResponse: &asr.Response{Status: 500, Message: "engine unavailable"},
	}
	s, _ := newTestSession(t, cl, nil)

	err := s.Start(context.Background())
	if !errors.Is(err, asr.ErrRejected) {
		t.Fatalf("Start error = %v, want ErrRejected", err)
	}
	if s.State() != StateNotReady {
		t.Errorf("state = %s, want %s", s.State(), StateNotReady)
	}

	// A fresh Start must be possible after the failure.
	cl.StartResponse = nil
	mustStart(t, s)
}

func TestStart_OnlyValidFromNotReady(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	mustStart(t, s)
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start error = %v, want ErrInvalidState", err)
	}
}

func TestFeed_BeforeStart(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	if _, err := s.Feed(context.Background(), pcmChunk(20)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Feed error = %v, want ErrInvalidState", err)
	}
}

func TestSpeechDetection_FiresOnSecondNoisyChunk(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	det := &vadmock.Detector{Verdicts: []bool{false, false}, Default: true}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	if ev := feed(t, s); ev != EventNone {
		t.Fatalf("first noisy chunk event = %v, want EventNone", ev)
	}
	if s.heardSpeech {
		t.Fatal("heardSpeech set after one noisy chunk")
	}
	if ev := feed(t, s); ev != EventSpeechDetected {
		t.Fatalf("second noisy chunk event = %v, want EventSpeechDetected", ev)
	}
	if !s.heardSpeech {
		t.Fatal("heardSpeech not set after detection")
	}
	// Pre-detection chunks are consumed by the detector, not streamed.
	if len(cl.SendCalls) != 0 {
		t.Errorf("SendAudio calls = %d, want 0", len(cl.SendCalls))
	}
}

func TestSpeechDetection_AtMostOncePerAttempt(t *testing.T) {
	t.Parallel()
	det := &vadmock.Detector{Default: false} // everything is speech
	s, _ := newTestSession(t, nil, det)
	mustStart(t, s)

	detections := 0
	for i := 0; i < 20; i++ {
		if feed(t, s) == EventSpeechDetected {
			detections++
		}
	}
	if detections != 1 {
		t.Errorf("speech detected %d times, want exactly 1", detections)
	}
}

func TestSilentChunk_ResetsNoiseCounterNotSilence(t *testing.T) {
	t.Parallel()
	// noisy, silent, noisy, noisy: the lone silent chunk must restart the
	// consecutive-noise count, so detection fires on the fourth chunk.
	det := &vadmock.Detector{Verdicts: []bool{false, true, false, false}}
	s, _ := newTestSession(t, nil, det)
	mustStart(t, s)

	events := []Event{feed(t, s), feed(t, s), feed(t, s), feed(t, s)}
	want := []Event{EventNone, EventNone, EventNone, EventSpeechDetected}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("chunk %d event = %v, want %v", i+1, events[i], want[i])
		}
	}
}

func TestSilentChunks_AccumulateWhileCounterResets(t *testing.T) {
	t.Parallel()
	det := &vadmock.Detector{Verdicts: []bool{false}, Default: true}
	s, _ := newTestSession(t, nil, det)
	mustStart(t, s)

	feed(t, s) // noisy: counter goes to 1
	feed(t, s) // silent: counter resets, silence starts accumulating
	feed(t, s)
	if s.noiseFrames != 0 {
		t.Errorf("noiseFrames = %d, want 0", s.noiseFrames)
	}
	if got := s.tracker.Silence(); got != 40*time.Millisecond {
		t.Errorf("cumulative silence = %v, want 40ms", got)
	}
}

func TestInitialSilence_CompletesAtThreshold(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{
		StopResponse: &asr.Response{Status: asr.StatusAccepted},
	}
	det := &vadmock.Detector{Default: true}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	// Default initial-silence threshold is 5000ms; 20ms chunks trip it on
	// the 250th. The first two chunks notably must not transition anything.
	for i := 1; i < 250; i++ {
		if ev := feed(t, s); ev != EventNone {
			t.Fatalf("chunk %d event = %v, want EventNone", i, ev)
		}
	}
	if ev := feed(t, s); ev != EventComplete {
		t.Fatalf("chunk 250 event = %v, want EventComplete", ev)
	}
	if s.State() != StateDone {
		t.Errorf("state = %s, want %s", s.State(), StateDone)
	}
	if cl.StopCallCount != 1 {
		t.Errorf("StopStreaming calls = %d, want 1", cl.StopCallCount)
	}
	// An empty utterance from the server is still a valid single result.
	res := s.Results()
	if len(res) != 1 {
		t.Fatalf("results = %d, want 1", len(res))
	}
	if res[0].Text != "" {
		t.Errorf("result text = %q, want empty", res[0].Text)
	}
}

func TestTrailingSilence_CompletesAfterSpeech(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{
		StopResponse: &asr.Response{
			Status:      asr.StatusAccepted,
			Utterance:   "uma pizza grande",
			Intent:      "pizza-order",
			Confidence:  0.8,
			Probability: 0.9,
		},
	}
	det := &vadmock.Detector{Verdicts: []bool{false, false}, Default: true}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	feed(t, s)
	if ev := feed(t, s); ev != EventSpeechDetected {
		t.Fatal("expected speech detection on second chunk")
	}

	// Default trailing-silence threshold is 1000ms: 50 silent chunks.
	for i := 1; i < 50; i++ {
		if ev := feed(t, s); ev != EventNone {
			t.Fatalf("silent chunk %d event = %v, want EventNone", i, ev)
		}
	}
	if ev := feed(t, s); ev != EventComplete {
		t.Fatal("expected completion after 1000ms of trailing silence")
	}

	res := s.Results()
	if len(res) != 1 {
		t.Fatalf("results = %d, want 1", len(res))
	}
	if res[0].Text != "uma pizza grande" || res[0].Grammar != "pizza-order" {
		t.Errorf("result = %+v", res[0])
	}
	if res[0].Score != 72 {
		t.Errorf("score = %d, want 72", res[0].Score)
	}
}

func TestInitialSilence_NegativeThresholdNeverTrips(t *testing.T) {
	t.Parallel()
	det := &vadmock.Detector{Default: true}
	s, _ := newTestSession(t, nil, det)
	if err := s.Change(AttrInitSil, "-1"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	mustStart(t, s)

	// Far beyond the usual 5000ms threshold.
	for i := 0; i < 1000; i++ {
		if ev := feed(t, s); ev != EventNone {
			t.Fatalf("chunk %d event = %v, want EventNone", i+1, ev)
		}
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want %s", s.State(), StateReady)
	}
}

func TestAbsoluteTimeout_TripsOnWallClock(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	// Non-silent audio throughout: the silence policies can never trip.
	det := &vadmock.Detector{Default: false}
	s, clock := newTestSession(t, cl, det)
	mustStart(t, s)

	feed(t, s)
	feed(t, s) // speech detected

	clock.Advance(14 * time.Second)
	if ev := feed(t, s); ev != EventNone {
		t.Fatalf("event before timeout = %v, want EventNone", ev)
	}
	clock.Advance(2 * time.Second)
	if ev := feed(t, s); ev != EventComplete {
		t.Fatal("expected completion once session age exceeds 15s")
	}
}

func TestAbsoluteTimeout_TripsRegardlessOfSilenceState(t *testing.T) {
	t.Parallel()
	det := &vadmock.Detector{Verdicts: []bool{false, false}, Default: true}
	s, clock := newTestSession(t, nil, det)
	// Disable both silence policies; only the absolute timeout remains.
	if err := s.Change(AttrInitSil, "-1"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if err := s.Change(AttrMaxSil, "-1"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	mustStart(t, s)

	feed(t, s)
	feed(t, s) // speech detected
	clock.Advance(16 * time.Second)
	if ev := feed(t, s); ev != EventComplete {
		t.Fatal("expected absolute timeout on a silent chunk")
	}
}

func TestAbsoluteTimeout_ZeroDisables(t *testing.T) {
	t.Parallel()
	det := &vadmock.Detector{Default: false}
	s, clock := newTestSession(t, nil, det)
	if err := s.Change(AttrAbsTimeout, "0"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	mustStart(t, s)

	feed(t, s)
	feed(t, s)
	clock.Advance(time.Hour)
	if ev := feed(t, s); ev != EventNone {
		t.Fatalf("event = %v, want EventNone with timeout disabled", ev)
	}
}

func TestFeed_StreamsSpeechAfterDetection(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	det := &vadmock.Detector{Default: false}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	feed(t, s)
	feed(t, s) // detection, not streamed
	feed(t, s)
	feed(t, s)

	if len(cl.SendCalls) != 2 {
		t.Errorf("SendAudio calls = %d, want 2", len(cl.SendCalls))
	}
}

func TestFeed_TransportFailureIsFatal(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{SendErr: errors.New("broken pipe")}
	det := &vadmock.Detector{Default: false}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	feed(t, s)
	feed(t, s) // detection
	if _, err := s.Feed(context.Background(), pcmChunk(20)); err == nil {
		t.Fatal("Feed should surface the transport failure")
	}
	if s.State() != StateNotReady {
		t.Errorf("state = %s, want %s", s.State(), StateNotReady)
	}
	if _, err := s.Feed(context.Background(), pcmChunk(20)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Feed after failure error = %v, want ErrInvalidState", err)
	}

	// The session must accept a fresh Start.
	cl.SendErr = nil
	mustStart(t, s)
}

func TestStopRejected_FailsAttempt(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{
		StopResponse: &asr.Response{Status: 500, Message: "internal error"},
	}
	det := &vadmock.Detector{Default: true}
	s, _ := newTestSession(t, cl, det)
	mustStart(t, s)

	var ferr error
	for i := 0; i < 250; i++ {
		if _, ferr = s.Feed(context.Background(), pcmChunk(20)); ferr != nil {
			break
		}
	}
	if !errors.Is(ferr, asr.ErrRejected) {
		t.Fatalf("Feed error = %v, want ErrRejected", ferr)
	}
	if s.State() != StateNotReady {
		t.Errorf("state = %s, want %s", s.State(), StateNotReady)
	}
	if s.Results() != nil {
		t.Error("Results should be nil after a failed attempt")
	}
}

func TestChange_UnknownAttribute(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	if err := s.Change("nonsense", "1"); !errors.Is(err, ErrInvalidAttribute) {
		t.Errorf("Change error = %v, want ErrInvalidAttribute", err)
	}
}

func TestChange_BadNumericValue(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	for _, name := range []string{AttrVerbose, AttrInitSil, AttrMaxSil, AttrAbsTimeout} {
		if err := s.Change(name, "abc"); err == nil {
			t.Errorf("Change(%q, \"abc\") should fail", name)
		}
	}
}

func TestChange_LangAlias(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	if err := s.Change(AttrLang, "es-ES"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if s.pending.Language != "es-ES" {
		t.Errorf("pending language = %q, want es-ES", s.pending.Language)
	}
}

func TestChange_MidStreamAppliesOnNextStart(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	mustStart(t, s)

	if err := s.Change(AttrInitSil, "100"); err != nil {
		t.Fatalf("Change: %v", err)
	}
	if s.active.InitSilence != 5000*time.Millisecond {
		t.Errorf("in-flight threshold = %v, want 5s", s.active.InitSilence)
	}
	if s.pending.InitSilence != 100*time.Millisecond {
		t.Errorf("pending threshold = %v, want 100ms", s.pending.InitSilence)
	}
}

func TestDeactivateGrammar_SetsEmptyString(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	s, _ := newTestSession(t, cl, nil)
	s.ActivateGrammar("pizza-order")
	s.DeactivateGrammar()
	mustStart(t, s)
	if got := cl.StartCalls[0].Params.ModelName; got != "" {
		t.Errorf("model name = %q, want empty", got)
	}
}

func TestDTMF_NoStateChange(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	mustStart(t, s)
	s.DTMF('5')
	if s.State() != StateReady {
		t.Errorf("state = %s, want %s", s.State(), StateReady)
	}
}

func TestResults_NilBeforeDone(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, nil, nil)
	if s.Results() != nil {
		t.Error("Results before Start should be nil")
	}
	mustStart(t, s)
	if s.Results() != nil {
		t.Error("Results while streaming should be nil")
	}
}

func TestClose_FromReadyStopsStream(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	s, _ := newTestSession(t, cl, nil)
	mustStart(t, s)

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cl.StopCallCount != 1 {
		t.Errorf("StopStreaming calls = %d, want 1", cl.StopCallCount)
	}
	if cl.CloseCallCount != 1 {
		t.Errorf("Close calls = %d, want 1", cl.CloseCallCount)
	}

	// Idempotent.
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if cl.StopCallCount != 1 || cl.CloseCallCount != 1 {
		t.Error("second Close must not touch the connection again")
	}
}

func TestClose_FromNotReadySkipsStop(t *testing.T) {
	t.Parallel()
	cl := &asrmock.Client{}
	s, _ := newTestSession(t, cl, nil)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if cl.StopCallCount != 0 {
		t.Errorf("StopStreaming calls = %d, want 0", cl.StopCallCount)
	}
	if err := s.Start(context.Background()); !errors.Is(err, asr.ErrClosed) {
		t.Errorf("Start after Close error = %v, want ErrClosed", err)
	}
}
