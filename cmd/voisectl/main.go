// Command voisectl exercises a Voise server from the command line: it runs a
// file through streaming recognition or plays synthesized speech into a file,
// using the same session machinery the telephony integration uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomferreira/voise-asterisk-module/internal/config"
	"github.com/tomferreira/voise-asterisk-module/internal/observe"
	"github.com/tomferreira/voise-asterisk-module/internal/session"
	"github.com/tomferreira/voise-asterisk-module/internal/tts"
	"github.com/tomferreira/voise-asterisk-module/pkg/asr/voise"
	"github.com/tomferreira/voise-asterisk-module/pkg/types"
)

// chunkBytes is one 20ms frame of 16-bit PCM at 8000 Hz.
const chunkBytes = 320

// maxTrailingPadding caps how much synthetic silence is appended after the
// input file ends, so a session with all deadlines disabled still terminates.
const maxTrailingPadding = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "recognize":
		return runRecognize(ctx, os.Args[2:])
	case "say":
		return runSay(ctx, os.Args[2:])
	default:
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: voisectl recognize|say [flags]")
	fmt.Fprintln(os.Stderr, "run 'voisectl recognize -h' or 'voisectl say -h' for flags")
}

// setup loads the config, installs the logger and initialises telemetry.
// The returned shutdown func flushes telemetry; call it before exiting.
func setup(ctx context.Context, configPath string) (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrMissing) {
			return nil, nil, fmt.Errorf("config file %q not found", configPath)
		}
		return nil, nil, err
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voisectl",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}
	shutdown := func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}
	return cfg, shutdown, nil
}

func runRecognize(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("recognize", flag.ExitOnError)
	configPath := fs.String("config", "voise.yaml", "path to the YAML configuration file")
	audioPath := fs.String("audio", "", "raw 16-bit 8kHz PCM file to recognize (required)")
	language := fs.String("language", "", "override the configured language")
	engineID := fs.String("engine", "", "override the configured ASR engine")
	grammar := fs.String("grammar", "", "grammar/model to activate")
	nbest := fs.Bool("nbest", false, "request N-best result assembly")
	fs.Parse(args)

	if *audioPath == "" {
		fmt.Fprintln(os.Stderr, "voisectl: -audio is required")
		return 2
	}

	cfg, shutdown, err := setup(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voisectl: %v\n", err)
		return 1
	}
	defer shutdown()

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		slog.Error("cannot read audio file", "err", err)
		return 1
	}

	eng, err := session.NewEngine(session.EngineConfig{
		Dialer:   voise.Dialer{Host: cfg.Server.Host, Port: cfg.Server.Port},
		Defaults: cfg.Defaults,
	})
	if err != nil {
		slog.Error("cannot build engine", "err", err)
		return 1
	}

	sess, err := eng.NewSession(ctx, "file:"+*audioPath)
	if err != nil {
		slog.Error("cannot open session", "err", err)
		return 1
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("session close error", "err", err)
		}
	}()

	if *language != "" {
		if err := sess.Change(session.AttrLanguage, *language); err != nil {
			slog.Error("bad language", "err", err)
			return 2
		}
	}
	if *engineID != "" {
		if err := sess.Change(session.AttrEngine, *engineID); err != nil {
			slog.Error("bad engine", "err", err)
			return 2
		}
	}
	if *grammar != "" {
		sess.ActivateGrammar(*grammar)
	}
	sess.SetNBest(*nbest)

	if err := sess.Start(ctx); err != nil {
		slog.Error("cannot start recognition", "err", err)
		return 1
	}

	if err := feedFile(ctx, sess, audio); err != nil {
		slog.Error("recognition failed", "err", err)
		return 1
	}

	results := sess.Results()
	if len(results) == 0 {
		fmt.Println("no result")
		return 0
	}
	for i, h := range results {
		fmt.Printf("%d: score=%d text=%q grammar=%q\n", i+1, h.Score, h.Text, h.Grammar)
	}
	return 0
}

// feedFile drives the session with the file's audio in 20ms chunks, then
// pads with silence so a trailing-silence deadline can close the utterance.
func feedFile(ctx context.Context, sess *session.Session, audio []byte) error {
	var streamed time.Duration
	feedChunk := func(data []byte) (session.Event, error) {
		chunk := types.AudioChunk{
			Data:       data,
			SampleRate: session.DefaultSampleRate,
			Timestamp:  streamed,
		}
		streamed += chunk.Duration()
		return sess.Feed(ctx, chunk)
	}

	for off := 0; off < len(audio); off += chunkBytes {
		end := min(off+chunkBytes, len(audio))
		ev, err := feedChunk(audio[off:end])
		if err != nil {
			return err
		}
		switch ev {
		case session.EventSpeechDetected:
			slog.Info("speech detected", "offset_bytes", off)
		case session.EventComplete:
			return nil
		}
	}

	// End of file: keep the deadline clocks running on silence.
	padding := make([]byte, chunkBytes)
	for fed := time.Duration(0); fed < maxTrailingPadding; fed += 20 * time.Millisecond {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := feedChunk(padding)
		if err != nil {
			return err
		}
		if ev == session.EventComplete {
			return nil
		}
	}
	return errors.New("no deadline tripped within the padding window")
}

func runSay(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	configPath := fs.String("config", "voise.yaml", "path to the YAML configuration file")
	text := fs.String("text", "", "text to synthesize (required)")
	out := fs.String("out", "", "write the A-law audio to this file instead of discarding it")
	language := fs.String("language", "", "override the configured language")
	beep := fs.Bool("beep", false, "play a beep before the speech")
	fs.Parse(args)

	if *text == "" {
		fmt.Fprintln(os.Stderr, "voisectl: -text is required")
		return 2
	}

	cfg, shutdown, err := setup(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voisectl: %v\n", err)
		return 1
	}
	defer shutdown()

	speaker, err := tts.NewSpeaker(tts.SpeakerConfig{
		Dialer:   voise.Dialer{Host: cfg.Server.Host, Port: cfg.Server.Port},
		Language: cfg.Defaults.Language,
	})
	if err != nil {
		slog.Error("cannot build speaker", "err", err)
		return 1
	}

	ch, err := newFileChannel(*out)
	if err != nil {
		slog.Error("cannot open output", "err", err)
		return 1
	}
	defer ch.CloseFile()

	opts := tts.Options{
		Beep:     *beep,
		Language: *language,
		Verbose:  cfg.Defaults.Verbose,
	}
	if err := speaker.Say(ctx, ch, *text, opts); err != nil {
		slog.Error("synthesis failed", "err", err)
		return 1
	}
	slog.Info("synthesis complete", "frames", ch.FramesWritten())
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
