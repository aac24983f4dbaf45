// Package asr defines the protocol client contract for the remote Voise
// recognizer and synthesizer.
//
// The protocol is strictly request/response: every control operation blocks
// the calling goroutine until the server answers or the transport fails.
// Audio flows as fire-and-forget binary writes between the start and stop
// exchanges. A client owns exactly one server-side session at a time and is
// not safe for concurrent use; the recognition session serializes all calls.
package asr

import (
	"context"
	"errors"
)

// StatusAccepted is the status code the server returns when a streaming or
// synthesis request has been accepted. Any other code is a rejection.
const StatusAccepted = 201

// ErrRejected is returned (wrapped) when the server answers a control request
// with a non-accepted status code. A rejection always aborts the in-progress
// attempt; it is never retried automatically.
var ErrRejected = errors.New("request rejected by recognizer")

// ErrTransport is wrapped into errors caused by the network connection
// itself, as opposed to a server-side rejection. Like rejections, transport
// failures abort the attempt and are never retried.
var ErrTransport = errors.New("recognizer transport failure")

// ErrClosed is returned by operations on a client whose connection has been
// released.
var ErrClosed = errors.New("client is closed")

// StreamParams carries the per-attempt recognition parameters sent with a
// streaming-start request.
type StreamParams struct {
	// Encoding names the audio encoding, e.g. "LINEAR16".
	Encoding string

	// SampleRate in Hz of the audio that will be streamed.
	SampleRate int

	// Language is the recognition language tag, e.g. "pt-BR".
	Language string

	// ModelName selects the active grammar/model. Empty means no model.
	ModelName string

	// EngineID selects the server-side ASR engine.
	EngineID string
}

// SynthParams carries the parameters sent with a synthesis-start request.
type SynthParams struct {
	// Text is the text to synthesize.
	Text string

	// Encoding names the audio encoding the server should produce, e.g. "ALAW".
	Encoding string

	// SampleRate in Hz of the synthesized audio.
	SampleRate int

	// Language is the synthesis language tag.
	Language string
}

// Response is the server's structured answer to a control request. The
// recognition fields (Utterance, Intent, Confidence, Probability) are only
// meaningful on the terminal stop-streaming response; control acknowledgments
// carry just the status.
type Response struct {
	// Status is the server result code. StatusAccepted means success.
	Status int

	// Message is the human-readable server message accompanying the status.
	Message string

	// Utterance is the recognized text. Empty is valid.
	Utterance string

	// Intent is the grammar/intent tag attached to the utterance.
	Intent string

	// Confidence is the recognizer's confidence in [0, 1].
	Confidence float64

	// Probability is the intent probability in [0, 1].
	Probability float64
}

// Accepted reports whether the response carries the accepted status code.
func (r *Response) Accepted() bool { return r.Status == StatusAccepted }

// Client is the façade over one connection to the recognizer.
//
// The call order for recognition is StartStreaming, any number of SendAudio,
// StopStreaming. StopStreaming is terminal: after it returns, no further
// SendAudio calls are valid until a new StartStreaming. For synthesis the
// order is StartSynth followed by ReadSynth until a short read.
type Client interface {
	// StartStreaming opens a streaming-recognition session on the server.
	// A nil error means the exchange completed; callers must still check
	// Response.Accepted, a rejection is not a transport failure.
	StartStreaming(ctx context.Context, p StreamParams) (*Response, error)

	// SendAudio forwards one audio chunk to the in-progress stream. Transport
	// failures surface synchronously.
	SendAudio(ctx context.Context, chunk []byte) error

	// StopStreaming ends the stream and returns the terminal recognition
	// response.
	StopStreaming(ctx context.Context) (*Response, error)

	// StartSynth asks the server to synthesize text. Audio is then fetched
	// with ReadSynth.
	StartSynth(ctx context.Context, p SynthParams) (*Response, error)

	// ReadSynth fills buf with the next slice of synthesized audio and
	// returns the byte count. A count smaller than len(buf) — including 0 —
	// means the synthesis stream has ended.
	ReadSynth(ctx context.Context, buf []byte) (int, error)

	// Close releases the connection. Safe to call more than once.
	Close(ctx context.Context) error
}

// Dialer creates connected clients. The session factory holds a Dialer so
// each recognition session gets its own exclusive connection.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}
