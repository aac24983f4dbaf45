// Package types defines the shared types used across the Voise connector
// packages.
//
// They form the lingua franca between the host telephony channel, the VAD
// gate, the recognition session, and the protocol client. Each package defines
// its own domain types; cross-cutting data structures live here to avoid
// circular imports.
package types

import "time"

// AudioChunk is a single slice of audio delivered by the host channel.
// Chunks are the atomic unit of audio transport: the host reads them from the
// call leg, the VAD gate classifies them, and the session forwards them to the
// recognizer. A chunk nominally covers ~20 ms of audio but the connector never
// assumes a fixed size.
type AudioChunk struct {
	// Data is the raw audio payload. For recognition input this is 16-bit
	// little-endian linear PCM; for synthesis output the encoding follows the
	// stream parameters (typically ALAW).
	Data []byte

	// SampleRate in Hz. Telephony legs are typically 8000.
	SampleRate int

	// Timestamp marks when this chunk was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the audio duration covered by the chunk, assuming 16-bit
// mono samples. Returns zero when the sample rate is unknown.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Hypothesis is one recognized alternative produced at the end of a
// recognition attempt. The session owns the hypothesis list; it is replaced
// wholesale on the next completed attempt.
type Hypothesis struct {
	// Score is the normalized confidence x intent-probability, scaled to an
	// integer in [0, 100].
	Score int

	// Text is the recognized utterance. Empty is a valid result (the
	// recognizer heard nothing usable), not an error.
	Text string

	// Grammar is the intent tag associated with the utterance, as reported by
	// the recognizer. May be empty.
	Grammar string
}
