// Package mock provides a scriptable test double for telephony.Channel.
//
// Script inbound audio through Frames and inspect what was played back
// through WriteCalls:
//
//	ch := &mock.Channel{
//	    ChannelName: "SIP/1234-00000001",
//	    Frames:      []types.AudioChunk{{Data: pcm, SampleRate: 8000}},
//	}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/tomferreira/voise-asterisk-module/pkg/telephony"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

// Channel is a mock implementation of telephony.Channel.
type Channel struct {
	mu sync.Mutex

	// ChannelName is returned by Name. Defaults to "mock/0".
	ChannelName string

	// Frames is the scripted inbound audio, consumed one chunk per
	// ReadFrame call. When exhausted, ReadFrame returns ReadErr if set,
	// io.EOF otherwise.
	Frames []types.AudioChunk

	// ReadErr, if non-nil, is returned by ReadFrame once Frames is
	// exhausted.
	ReadErr error

	// WriteErr, if non-nil, is returned by every WriteFrame call.
	WriteErr error

	// BeepErr, if non-nil, is returned by PlayBeep.
	BeepErr error

	// --- Call records ---

	// ReadCallCount is the number of times ReadFrame was called.
	ReadCallCount int

	// WriteCalls records every chunk passed to WriteFrame in order.
	WriteCalls []types.AudioChunk

	// BeepCallCount is the number of times PlayBeep was called.
	BeepCallCount int

	// StopCallCount is the number of times StopPlayback was called.
	StopCallCount int

	readOffset int
}

// ReadFrame returns the next scripted frame, or ReadErr/io.EOF once the
// script runs out.
func (c *Channel) ReadFrame(ctx context.Context) (types.AudioChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCallCount++
	if err := ctx.Err(); err != nil {
		return types.AudioChunk{}, err
	}
	if c.readOffset >= len(c.Frames) {
		if c.ReadErr != nil {
			return types.AudioChunk{}, c.ReadErr
		}
		return types.AudioChunk{}, io.EOF
	}
	chunk := c.Frames[c.readOffset]
	c.readOffset++
	return chunk, nil
}

// WriteFrame records the chunk and returns WriteErr.
func (c *Channel) WriteFrame(ctx context.Context, chunk types.AudioChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(chunk.Data))
	copy(cp, chunk.Data)
	chunk.Data = cp
	c.WriteCalls = append(c.WriteCalls, chunk)
	return c.WriteErr
}

// PlayBeep records the call and returns BeepErr.
func (c *Channel) PlayBeep(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BeepCallCount++
	return c.BeepErr
}

// StopPlayback records the call.
func (c *Channel) StopPlayback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCallCount++
}

// Name returns ChannelName, or "mock/0" when unset.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ChannelName == "" {
		return "mock/0"
	}
	return c.ChannelName
}

// ResetCalls clears all recorded call history and rewinds the frame script.
// Thread-safe.
func (c *Channel) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCallCount = 0
	c.WriteCalls = nil
	c.BeepCallCount = 0
	c.StopCallCount = 0
	c.readOffset = 0
}

// Ensure Channel implements telephony.Channel at compile time.
var _ telephony.Channel = (*Channel)(nil)
