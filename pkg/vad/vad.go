// Package vad defines the silence-detection contract used to gate streaming
// recognition.
//
// A Detector wraps a frame-level energy classifier and surfaces it as a
// stateful, per-stream object: each recognition session owns its own Detector
// so that concurrent calls never share detection state. The Tracker in this
// package turns the per-chunk verdicts into the running silence duration that
// the session's deadline policies consume.
//
// Detection is synchronous by design: Classify returns immediately with a
// verdict, making it suitable for the per-chunk real-time loop that feeds the
// recognizer (one call every ~20 ms of audio).
package vad

import "time"

// Detector classifies audio chunks as silence or speech. A Detector is
// stateful (smoothing history, hangover counters are implementation details)
// and must not be shared across streams. It is not safe for concurrent use.
type Detector interface {
	// Classify reports whether the chunk is silence. The chunk is raw 16-bit
	// little-endian linear PCM of any length the host delivers; implementations
	// must always return a verdict and never fail.
	Classify(chunk []byte) bool

	// Reset clears accumulated detection state without discarding the
	// detector. Call it when the stream restarts so stale history from the
	// previous attempt cannot affect the next one.
	Reset()
}

// Tracker couples a Detector with the running silence clock. It accumulates
// the duration of consecutive silent chunks and resets the total to zero the
// moment a non-silent chunk is observed. The total is what the deadline
// policies consume; callers must not reset it on their own.
type Tracker struct {
	det        Detector
	sampleRate int
	silence    time.Duration
}

// NewTracker returns a Tracker over det for a stream at the given sample rate
// in Hz. Chunk durations are derived from chunk byte length assuming 16-bit
// mono samples.
func NewTracker(det Detector, sampleRate int) *Tracker {
	return &Tracker{det: det, sampleRate: sampleRate}
}

// Observe classifies one chunk and returns the verdict together with the
// cumulative duration of the current silence run. A non-silent chunk resets
// the cumulative duration to zero before it is returned.
func (t *Tracker) Observe(chunk []byte) (silent bool, total time.Duration) {
	silent = t.det.Classify(chunk)
	if !silent {
		t.silence = 0
		return false, 0
	}
	t.silence += chunkDuration(len(chunk), t.sampleRate)
	return true, t.silence
}

// Silence returns the cumulative duration of the current silence run without
// observing a new chunk.
func (t *Tracker) Silence() time.Duration { return t.silence }

// Reset clears both the detector state and the silence clock. The session
// calls this every time it (re)starts listening.
func (t *Tracker) Reset() {
	t.silence = 0
	t.det.Reset()
}

func chunkDuration(nbytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := nbytes / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
