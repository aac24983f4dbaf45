// Package mock provides test doubles for the asr package interfaces.
//
// Use Dialer to verify connection handling and Client to script server
// responses and inspect the audio that was streamed.
//
// Example:
//
//	cl := &mock.Client{
//	    StartResponse: &asr.Response{Status: asr.StatusAccepted},
//	    StopResponse:  &asr.Response{Status: asr.StatusAccepted, Utterance: "ok"},
//	}
//	d := &mock.Dialer{Client: cl}
package mock

import (
	"context"
	"sync"

	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
)

// Dialer is a mock implementation of asr.Dialer.
type Dialer struct {
	mu sync.Mutex

	// Client is returned by Dial. If nil, Dial returns a new default Client.
	Client asr.Client

	// DialErr, if non-nil, is returned as the error from Dial.
	DialErr error

	// DialCallCount is the number of times Dial was called.
	DialCallCount int
}

// Dial records the call and returns Client, DialErr.
func (d *Dialer) Dial(ctx context.Context) (asr.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCallCount++
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.Client != nil {
		return d.Client, nil
	}
	return &Client{}, nil
}

// Ensure Dialer implements asr.Dialer at compile time.
var _ asr.Dialer = (*Dialer)(nil)

// StartCall records a single invocation of Client.StartStreaming.
type StartCall struct {
	// Params is the StreamParams passed to StartStreaming.
	Params asr.StreamParams
}

// SendCall records a single invocation of Client.SendAudio.
type SendCall struct {
	// Chunk is a copy of the bytes passed to SendAudio.
	Chunk []byte
}

// SynthCall records a single invocation of Client.StartSynth.
type SynthCall struct {
	// Params is the SynthParams passed to StartSynth.
	Params asr.SynthParams
}

// Client is a mock implementation of asr.Client.
type Client struct {
	mu sync.Mutex

	// StartResponse is returned by StartStreaming. If nil, an accepted
	// response is returned.
	StartResponse *asr.Response

	// StartErr, if non-nil, is returned as the error from StartStreaming.
	StartErr error

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error

	// StopResponse is returned by StopStreaming. If nil, an accepted empty
	// response is returned.
	StopResponse *asr.Response

	// StopErr, if non-nil, is returned as the error from StopStreaming.
	StopErr error

	// SynthResponse is returned by StartSynth. If nil, an accepted response
	// is returned.
	SynthResponse *asr.Response

	// SynthErr, if non-nil, is returned as the error from StartSynth.
	SynthErr error

	// SynthAudio is consumed by ReadSynth in buf-sized slices until empty.
	SynthAudio []byte

	// ReadSynthErr, if non-nil, is returned by every ReadSynth call.
	ReadSynthErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// StartCalls records every call to StartStreaming in order.
	StartCalls []StartCall

	// SendCalls records every call to SendAudio in order.
	SendCalls []SendCall

	// StopCallCount is the number of times StopStreaming was called.
	StopCallCount int

	// SynthCalls records every call to StartSynth in order.
	SynthCalls []SynthCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	synthOffset int
}

// StartStreaming records the call and returns StartResponse, StartErr.
func (c *Client) StartStreaming(ctx context.Context, p asr.StreamParams) (*asr.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls = append(c.StartCalls, StartCall{Params: p})
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	if c.StartResponse != nil {
		return c.StartResponse, nil
	}
	return &asr.Response{Status: asr.StatusAccepted, Message: "accepted"}, nil
}

// SendAudio records the chunk and returns SendErr.
func (c *Client) SendAudio(ctx context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	c.SendCalls = append(c.SendCalls, SendCall{Chunk: cp})
	return c.SendErr
}

// StopStreaming records the call and returns StopResponse, StopErr.
func (c *Client) StopStreaming(ctx context.Context) (*asr.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCallCount++
	if c.StopErr != nil {
		return nil, c.StopErr
	}
	if c.StopResponse != nil {
		return c.StopResponse, nil
	}
	return &asr.Response{Status: asr.StatusAccepted, Message: "accepted"}, nil
}

// StartSynth records the call and returns SynthResponse, SynthErr.
func (c *Client) StartSynth(ctx context.Context, p asr.SynthParams) (*asr.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SynthCalls = append(c.SynthCalls, SynthCall{Params: p})
	if c.SynthErr != nil {
		return nil, c.SynthErr
	}
	if c.SynthResponse != nil {
		return c.SynthResponse, nil
	}
	return &asr.Response{Status: asr.StatusAccepted, Message: "accepted"}, nil
}

// ReadSynth copies the next slice of SynthAudio into buf.
func (c *Client) ReadSynth(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadSynthErr != nil {
		return 0, c.ReadSynthErr
	}
	n := copy(buf, c.SynthAudio[c.synthOffset:])
	c.synthOffset += n
	return n, nil
}

// Close records the call and returns CloseErr.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// ResetCalls clears all recorded call history and rewinds the synth audio.
// Thread-safe.
func (c *Client) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls = nil
	c.SendCalls = nil
	c.StopCallCount = 0
	c.SynthCalls = nil
	c.CloseCallCount = 0
	c.synthOffset = 0
}

// Ensure Client implements asr.Client at compile time.
var _ asr.Client = (*Client)(nil)
