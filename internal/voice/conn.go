package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
	"github.com/voxhollow/sibyl/pkg/wire"
)

// connState tracks where a satellite connection is in its lifecycle.
type connState int

const (
	stateIdle connState = iota
	stateOpen
	stateListening
	stateResponding
	stateClosing
)

// workingCue is spoken while the very first utterance of a connection is
// processed, so the user knows the channel is live before the model
// responds.
const workingCue = "Working"

// conn is one satellite connection. The read loop owns the ingest state
// under mu; the worker goroutine owns transcription and response egress.
// Writes from both sides are serialized by writeMu.
type conn struct {
	srv    *Server
	nc     net.Conn
	reader *wire.Reader
	logger *slog.Logger

	writeMu sync.Mutex

	sess     *session.Session
	detector vad.Detector

	mu        sync.Mutex
	state     connState
	gateOpen  bool
	recording bool
	lastVoice time.Time
	buffer    []float32
	firstTurn bool

	// interrupted latches on barge-in and holds for the rest of the
	// in-flight turn, even after the session cancel event is cleared by
	// the next utterance. Reset when the next turn starts speaking.
	interrupted atomic.Bool

	// utterances hands complete utterances to the worker. Capacity one:
	// the gate closes at end-of-utterance, so a second utterance cannot
	// form before the worker reopens it.
	utterances chan []float32
}

func newConn(s *Server, nc net.Conn, logger *slog.Logger) (*conn, error) {
	detector, err := s.vade.NewDetector(vad.Config{
		SampleRate: WireSampleRate,
		Threshold:  s.vadThreshold,
	})
	if err != nil {
		return nil, err
	}
	return &conn{
		srv:        s,
		nc:         nc,
		reader:     wire.NewReader(nc, 0),
		logger:     logger,
		detector:   detector,
		firstTurn:  true,
		utterances: make(chan []float32, 1),
	}, nil
}

// run drives the connection until disconnect or close. It owns the frame
// read loop; a worker goroutine serves utterances as they complete.
func (c *conn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	// Unblock the read loop when the server shuts down.
	go func() {
		<-ctx.Done()
		c.nc.Close()
	}()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case samples, ok := <-c.utterances:
				if !ok {
					return
				}
				c.respond(ctx, samples)
			}
		}
	}()

	c.logger.Info("voice: satellite connected")
	c.readLoop(ctx)

	// Cancel before waiting so a worker blocked on the response queue
	// unblocks; the read loop is the only sender, so the channel can
	// close here.
	cancel()
	close(c.utterances)
	workers.Wait()
	c.teardown()
}

// readLoop decodes frames until disconnect or a protocol violation.
func (c *conn) readLoop(ctx context.Context) {
	for {
		tag, payload, err := c.reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				c.logger.Info("voice: satellite disconnected")
			case errors.Is(err, net.ErrClosed):
			case errors.Is(err, wire.ErrProtocol):
				c.logger.Warn("voice: protocol violation, dropping connection", "err", err)
			default:
				c.logger.Warn("voice: read failed", "err", err)
			}
			return
		}
		c.srv.countFrame(ctx, tag)

		switch tag {
		case wire.TagOpen, wire.TagWake:
			c.openChannel(ctx)
		case wire.TagAudio:
			c.onAudio(payload)
		case wire.TagInterrupt:
			c.onInterrupt(ctx)
		case wire.TagStop:
			c.onStop()
		default:
			// Unknown tags are skipped for forward compatibility.
		}
	}
}

// openChannel greets the user, creates the session and opens the RX gate.
func (c *conn) openChannel(ctx context.Context) {
	if c.sess == nil {
		c.sess = c.srv.eng.Sessions().GetOrCreate(session.NewID())
		c.logger = c.logger.With("session", c.sess.ID)
	}

	c.speak(ctx, c.srv.greeting)
	if err := c.writeFrame(wire.TagReady, nil); err != nil {
		c.logger.Warn("voice: ready frame failed", "err", err)
		return
	}

	c.mu.Lock()
	c.state = stateOpen
	c.gateOpen = true
	c.recording = false
	c.buffer = nil
	c.mu.Unlock()
	c.logger.Info("voice: channel open")
}

// onAudio feeds one PCM frame through the gate and the voice activity
// detector, segmenting utterances on the silence timeout.
func (c *conn) onAudio(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.gateOpen {
		return
	}

	frame := audio.BytesToFloat32(payload)
	if c.detector.IsSpeech(frame) {
		if !c.recording {
			c.recording = true
			c.state = stateListening
			// First speech after a barge-in re-arms playback.
			if c.sess != nil {
				c.sess.Cancel.Clear()
			}
		}
		c.lastVoice = time.Now()
		c.buffer = append(c.buffer, frame...)
		return
	}

	if c.recording {
		if !c.lastVoice.IsZero() && time.Since(c.lastVoice) > c.srv.vadTimeout {
			c.endUtteranceLocked()
		}
	}
}

// onStop forces end-of-utterance on whatever is buffered.
func (c *conn) onStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		c.endUtteranceLocked()
	}
}

// endUtteranceLocked closes the gate and hands the buffered utterance to
// the worker. Caller holds mu.
func (c *conn) endUtteranceLocked() {
	samples := c.buffer
	c.buffer = nil
	c.recording = false
	c.lastVoice = time.Time{}
	c.gateOpen = false
	c.state = stateResponding

	select {
	case c.utterances <- samples:
	default:
		// Gate discipline makes this unreachable; dropping beats blocking
		// the read loop.
		c.logger.Warn("voice: utterance dropped, worker busy")
	}
}

// onInterrupt handles barge-in: cancel the in-flight response, drop any
// partial capture and listen again.
func (c *conn) onInterrupt(ctx context.Context) {
	c.logger.Info("voice: barge-in")
	c.interrupted.Store(true)
	if c.sess != nil {
		c.sess.Cancel.Set()
	}
	if m := c.srv.metrics; m != nil {
		m.BargeIns.Add(ctx, 1)
	}

	c.mu.Lock()
	c.buffer = nil
	c.recording = false
	c.lastVoice = time.Time{}
	c.detector.Reset()
	c.gateOpen = true
	c.state = stateListening
	c.mu.Unlock()
}

// reopenListening re-arms capture after a turn and tells the satellite.
func (c *conn) reopenListening() {
	c.mu.Lock()
	c.gateOpen = true
	c.state = stateOpen
	c.mu.Unlock()

	if err := c.writeFrame(wire.TagReady, nil); err != nil {
		c.logger.Warn("voice: ready frame failed", "err", err)
	}
}

// teardown drops the session on disconnect.
func (c *conn) teardown() {
	if c.sess != nil {
		c.sess.Cancel.Set()
		c.srv.eng.Sessions().Delete(c.sess.ID)
	}
	c.nc.Close()
}

// writeFrame sends one frame, serialized against concurrent writers.
func (c *conn) writeFrame(tag string, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.Write(c.nc, tag, payload)
}
