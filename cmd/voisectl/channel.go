package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tomferreira/voise-asterisk-module/internal/session"
	"github.com/tomferreira/voise-asterisk-module/pkg/telephony"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

// fileChannel stands in for a real call leg when voisectl drives synthesis:
// inbound frames are silent and paced by a wall-clock ticker, outbound frames
// go to a file or are discarded. It never hangs up.
type fileChannel struct {
	out      io.WriteCloser
	ticker   *time.Ticker
	frames   int
	streamed time.Duration
}

func newFileChannel(path string) (*fileChannel, error) {
	var out io.WriteCloser
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		out = f
	}
	return &fileChannel{
		out:    out,
		ticker: time.NewTicker(20 * time.Millisecond),
	}, nil
}

func (c *fileChannel) ReadFrame(ctx context.Context) (types.AudioChunk, error) {
	select {
	case <-c.ticker.C:
	case <-ctx.Done():
		return types.AudioChunk{}, ctx.Err()
	}
	chunk := types.AudioChunk{
		Data:       make([]byte, chunkBytes),
		SampleRate: session.DefaultSampleRate,
		Timestamp:  c.streamed,
	}
	c.streamed += chunk.Duration()
	return chunk, nil
}

func (c *fileChannel) WriteFrame(ctx context.Context, chunk types.AudioChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.frames++
	if c.out == nil {
		return nil
	}
	_, err := c.out.Write(chunk.Data)
	return err
}

func (c *fileChannel) PlayBeep(ctx context.Context) error {
	slog.Info("beep")
	return nil
}

func (c *fileChannel) StopPlayback() {}

func (c *fileChannel) Name() string { return "voisectl/0" }

// FramesWritten reports how many synthesized frames were played.
func (c *fileChannel) FramesWritten() int { return c.frames }

// CloseFile stops the pacing ticker and closes the output file, if any.
func (c *fileChannel) CloseFile() {
	c.ticker.Stop()
	if c.out != nil {
		_ = c.out.Close()
	}
}

var _ telephony.Channel = (*fileChannel)(nil)
