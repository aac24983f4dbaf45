// Package telephony defines the interface between the connector and the
// telephony layer that owns the call leg.
//
// The connector never touches sockets or media drivers directly: it reads
// caller audio from a [Channel] frame by frame and writes synthesized audio
// back the same way. This keeps the recognition and synthesis logic testable
// against recorded or scripted channels.
package telephony

import (
	"context"

	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

// Channel is one leg of a telephone call.
//
// Implementations are expected to pace reads at the telephony frame rate
// (typically one 20 ms frame per ReadFrame call), which is what makes write
// pumps that alternate read and write naturally real-time.
type Channel interface {
	// ReadFrame blocks until the next audio frame arrives from the caller.
	// Returns io.EOF when the caller hangs up.
	ReadFrame(ctx context.Context) (types.AudioChunk, error)

	// WriteFrame plays one audio frame to the caller.
	WriteFrame(ctx context.Context, chunk types.AudioChunk) error

	// PlayBeep plays a short prompt tone and returns once it finished.
	PlayBeep(ctx context.Context) error

	// StopPlayback interrupts any audio currently being played to the
	// caller. Safe to call when nothing is playing.
	StopPlayback()

	// Name identifies the channel for logging, e.g. "SIP/1234-00000001".
	Name() string
}
