// Package voise implements the asr.Client façade over the Voise server's
// WebSocket API. Control messages are JSON text frames, audio is binary
// frames, and every control request is answered by exactly one JSON response
// on the same socket.
package voise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/tomferreira/voise-asterisk-module/pkg/asr"
)

const (
	// DefaultPort is the Voise server's listening port.
	DefaultPort = 8100

	actionStartRecognize = "start_streaming_recognize"
	actionStopRecognize  = "stop_streaming_recognize"
	actionStartSynth     = "start_synth"
)

// Dialer connects asr clients to a Voise server. It implements asr.Dialer.
type Dialer struct {
	// Host is the server address, without port.
	Host string

	// Port is the server port. Zero selects DefaultPort.
	Port int
}

// Dial opens a connection to the configured server.
func (d Dialer) Dial(ctx context.Context) (asr.Client, error) {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	u := url.URL{Scheme: "ws", Host: d.Host + ":" + strconv.Itoa(port)}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("voise: dial %s: %w", u.Host, err)
	}
	// The server paces itself; let single frames carry full responses.
	conn.SetReadLimit(1 << 20)
	return &Client{conn: conn}, nil
}

// Client is a live connection to the Voise server. It is not safe for
// concurrent use; callers serialize all operations.
type Client struct {
	conn   *websocket.Conn
	closed bool
}

// request carries a JSON control message. Zero-valued fields are omitted so
// each action only sends its own parameters.
type request struct {
	Action     string `json:"action"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	Engine     string `json:"engine,omitempty"`
	Text       string `json:"text,omitempty"`
}

// response is the wire shape of a server answer.
type response struct {
	Result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	Utterance   string  `json:"utterance"`
	Intent      string  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	Probability float64 `json:"probability"`
}

// StartStreaming opens a streaming-recognition session.
func (c *Client) StartStreaming(ctx context.Context, p asr.StreamParams) (*asr.Response, error) {
	return c.exchange(ctx, request{
		Action:     actionStartRecognize,
		Encoding:   p.Encoding,
		SampleRate: p.SampleRate,
		Language:   p.Language,
		Model:      p.ModelName,
		Engine:     p.EngineID,
	})
}

// SendAudio forwards one chunk as a binary frame.
func (c *Client) SendAudio(ctx context.Context, chunk []byte) error {
	if c.closed {
		return fmt.Errorf("voise: send audio: %w", asr.ErrClosed)
	}
	if err := c.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("voise: send audio: %w: %w", asr.ErrTransport, err)
	}
	return nil
}

// StopStreaming ends the stream and returns the terminal recognition result.
func (c *Client) StopStreaming(ctx context.Context) (*asr.Response, error) {
	return c.exchange(ctx, request{Action: actionStopRecognize})
}

// StartSynth asks the server to synthesize text.
func (c *Client) StartSynth(ctx context.Context, p asr.SynthParams) (*asr.Response, error) {
	return c.exchange(ctx, request{
		Action:     actionStartSynth,
		Text:       p.Text,
		Encoding:   p.Encoding,
		SampleRate: p.SampleRate,
		Language:   p.Language,
	})
}

// ReadSynth reads the next binary frame of synthesized audio into buf. A
// frame shorter than buf — or a normal close from the server — signals the
// end of the synthesis stream.
func (c *Client) ReadSynth(ctx context.Context, buf []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("voise: read synth: %w", asr.ErrClosed)
	}
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return 0, nil
		}
		return 0, fmt.Errorf("voise: read synth: %w: %w", asr.ErrTransport, err)
	}
	if typ != websocket.MessageBinary {
		return 0, fmt.Errorf("voise: read synth: unexpected %v frame", typ)
	}
	return copy(buf, data), nil
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// exchange sends one control request and blocks for its JSON response.
func (c *Client) exchange(ctx context.Context, req request) (*asr.Response, error) {
	if c.closed {
		return nil, fmt.Errorf("voise: %s: %w", req.Action, asr.ErrClosed)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("voise: %s: encode: %w", req.Action, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("voise: %s: write: %w: %w", req.Action, asr.ErrTransport, err)
	}
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("voise: %s: read: %w: %w", req.Action, asr.ErrTransport, err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("voise: %s: unexpected %v frame", req.Action, typ)
	}
	resp, err := parseResponse(data)
	if err != nil {
		return nil, fmt.Errorf("voise: %s: %w", req.Action, err)
	}
	return resp, nil
}

// parseResponse decodes a server answer into an asr.Response.
func parseResponse(data []byte) (*asr.Response, error) {
	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if r.Result.Code == 0 {
		return nil, errors.New("response is missing a result code")
	}
	return &asr.Response{
		Status:      r.Result.Code,
		Message:     r.Result.Message,
		Utterance:   r.Utterance,
		Intent:      r.Intent,
		Confidence:  r.Confidence,
		Probability: r.Probability,
	}, nil
}

// Ensure the implementation satisfies the façade at compile time.
var (
	_ asr.Client = (*Client)(nil)
	_ asr.Dialer = Dialer{}
)
