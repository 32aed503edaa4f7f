// Package voice serves audio satellites over the framed TCP protocol. Each
// connection runs a small state machine: the channel opens on OPEN or WAKE,
// audio frames are gated and segmented by voice activity, utterances are
// transcribed and fed to the conversation engine, and the streamed response
// is spoken back sentence by sentence with barge-in support.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxhollow/sibyl/internal/engine"
	"github.com/voxhollow/sibyl/internal/observe"
	"github.com/voxhollow/sibyl/internal/transcript"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
)

// WireSampleRate is the PCM rate on both directions of the satellite link.
const WireSampleRate = 16000

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":10400"

// VADTimeout is the default silence span that ends an utterance.
const VADTimeout = 700 * time.Millisecond

// DefaultGreeting is spoken when the channel opens.
const DefaultGreeting = "I'm here"

// ttsChunkSamples is the sample count per TTS0/BEEP frame. Roughly half a
// second at the wire rate; it bounds how long a barge-in waits for the
// current chunk.
const ttsChunkSamples = 8192

// Server accepts satellite connections and serves each on its own
// goroutine.
type Server struct {
	addr    string
	eng     *engine.Engine
	sttp    stt.Provider
	ttsp    tts.Provider
	vade    vad.Engine
	voiceID string

	vadThreshold float64
	vadTimeout   time.Duration
	greeting     string
	closeMatcher *transcript.CloseMatcher
	logger       *slog.Logger
	metrics      *observe.Metrics
}

// Config assembles a Server.
type Config struct {
	// Addr is the TCP listen address. Empty selects DefaultAddr.
	Addr string

	// Engine runs the conversation loop for transcribed utterances.
	Engine *engine.Engine

	// STT transcribes complete utterances.
	STT stt.Provider

	// TTS synthesizes response sentences.
	TTS tts.Provider

	// VAD supplies per-connection speech detectors.
	VAD vad.Engine

	// VADThreshold is the detector speech threshold, on the backend's own
	// scale (normalized RMS for the energy detector). Zero selects the
	// backend default.
	VADThreshold float64

	// VADTimeout is the silence span that ends an utterance. Zero selects
	// VADTimeout.
	VADTimeout time.Duration

	// Greeting is spoken when the channel opens. Empty selects
	// DefaultGreeting.
	Greeting string

	// Voice selects the TTS voice; empty uses the provider default.
	Voice string

	// ClosePhrase short-circuits the engine and closes the channel when it
	// appears in a transcription. Empty disables the check.
	ClosePhrase string

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.STT == nil || cfg.TTS == nil || cfg.VAD == nil {
		return nil, errors.New("voice: engine, stt, tts and vad are all required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.VADTimeout <= 0 {
		cfg.VADTimeout = VADTimeout
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		addr:         cfg.Addr,
		eng:          cfg.Engine,
		sttp:         cfg.STT,
		ttsp:         cfg.TTS,
		vade:         cfg.VAD,
		voiceID:      cfg.Voice,
		vadThreshold: cfg.VADThreshold,
		vadTimeout:   cfg.VADTimeout,
		greeting:     cfg.Greeting,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
	if cfg.ClosePhrase != "" {
		s.closeMatcher = transcript.NewCloseMatcher(cfg.ClosePhrase)
	}
	return s, nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("voice: listen %s: %w", s.addr, err)
	}
	s.logger.Info("voice: listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled. Every accepted
// satellite gets its own goroutine with panic isolation; a crashed handler
// takes down its connection, never the server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("voice: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("voice: connection handler panicked",
						"remote", nc.RemoteAddr().String(), "panic", rec, "stack", string(debug.Stack()))
					nc.Close()
				}
			}()
			s.handle(ctx, nc)
		}()
	}
}

// handle serves one satellite connection to completion.
func (s *Server) handle(ctx context.Context, nc net.Conn) {
	logger := s.logger.With("remote", nc.RemoteAddr().String())
	if s.metrics != nil {
		s.metrics.ActiveVoiceConns.Add(ctx, 1)
		defer s.metrics.ActiveVoiceConns.Add(ctx, -1)
	}

	c, err := newConn(s, nc, logger)
	if err != nil {
		logger.Error("voice: connection setup failed", "err", err)
		nc.Close()
		return
	}
	c.run(ctx)
}

// countFrame records a read frame by tag.
func (s *Server) countFrame(ctx context.Context, tag string) {
	if s.metrics == nil {
		return
	}
	s.metrics.FramesRead.Add(ctx, 1, metric.WithAttributes(attribute.String("tag", tag)))
}
