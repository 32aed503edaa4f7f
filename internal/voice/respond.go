package voice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/voxhollow/sibyl/internal/observe"
	"github.com/voxhollow/sibyl/internal/transcript"
	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/wire"
)

// Closing cue: three short beeps before the CLOS frame.
const (
	beepFreq   = 300
	beepDur    = 200 * time.Millisecond
	beepVolume = 0.6
	beepGap    = 150 * time.Millisecond
	beepCount  = 3
)

// Loudness shaping applied to every synthesized sentence before it goes on
// the wire.
const (
	targetRMS  = 0.2
	speechGain = 1.2
)

// respond transcribes one utterance, runs the conversation loop and speaks
// the streamed response. It owns the session response queue for the
// duration of the turn and always leaves the connection either listening
// again or closed.
func (c *conn) respond(ctx context.Context, samples []float32) {
	c.interrupted.Store(false)

	text, ok := c.transcribe(ctx, samples)
	if !ok {
		c.reopenListening()
		return
	}
	c.logger.Info("voice: utterance", "text", text)

	if c.srv.closeMatcher != nil && c.srv.closeMatcher.Matches(text) {
		c.closeChannel(ctx)
		return
	}

	if c.firstTurn {
		c.firstTurn = false
		c.speak(ctx, workingCue)
	}
	if m := c.srv.metrics; m != nil {
		m.Utterances.Add(ctx, 1)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.srv.eng.ProcessInput(ctx, text, c.sess.ID, true)
	}()

	c.playResponses(ctx)

	if err := <-done; err != nil {
		c.logger.Warn("voice: turn failed", "err", err)
	}

	switch {
	case c.interrupted.Load():
		// Barge-in already reopened the gate; stay quiet.
	case c.sess.CloseVoice.IsSet():
		c.sess.CloseVoice.Clear()
		c.closeChannel(ctx)
	default:
		c.reopenListening()
	}
}

// transcribe runs STT over the utterance. ok is false when nothing usable
// came back.
func (c *conn) transcribe(ctx context.Context, samples []float32) (string, bool) {
	start := time.Now()
	segments, err := c.srv.sttp.Transcribe(ctx, samples, WireSampleRate)
	if m := c.srv.metrics; m != nil {
		m.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		c.logger.Warn("voice: transcription failed", "err", err)
		return "", false
	}
	text := transcript.Clean(stt.Text(segments))
	if text == "" {
		c.logger.Debug("voice: empty transcription, listening again")
		return "", false
	}
	return text, true
}

// playResponses consumes the session response queue until the turn
// sentinel, splitting the stream at sentence boundaries and speaking each
// sentence. After a barge-in it keeps draining to the sentinel without
// speaking, so the next turn starts on an empty queue.
func (c *conn) playResponses(ctx context.Context) {
	var splitter Splitter
	cancelled := false

	for {
		text, ok, err := c.sess.Responses.Next(ctx)
		if err != nil {
			return
		}
		if !ok {
			break
		}
		if cancelled {
			continue
		}
		if c.interrupted.Load() {
			cancelled = true
			splitter.Reset()
			continue
		}
		for _, sentence := range splitter.Push(text) {
			c.speak(ctx, sentence)
		}
	}

	if !cancelled && !c.interrupted.Load() {
		if tail := splitter.Flush(); tail != "" {
			c.speak(ctx, tail)
		}
	}
}

// speak synthesizes one sentence, shapes its loudness and streams it to the
// satellite in fixed-size chunks, checking for barge-in between chunks. A
// synthesis failure skips the sentence rather than killing the turn.
func (c *conn) speak(ctx context.Context, text string) {
	start := time.Now()
	samples, rate, err := c.srv.ttsp.Synthesize(ctx, text, c.srv.voiceID)
	if m := c.srv.metrics; m != nil {
		m.TTSDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("provider", "tts")))
	}
	if err != nil {
		c.logger.Warn("voice: synthesis failed", "err", err, "text", text)
		return
	}
	if len(samples) == 0 {
		return
	}

	if rate != WireSampleRate {
		samples = audio.Resample(samples, rate, WireSampleRate)
	}
	samples = audio.Gain(audio.NormalizeRMS(samples, targetRMS), speechGain)
	c.sendPCM(ctx, wire.TagSpeech, samples)
}

// sendPCM writes PCM as frames of at most ttsChunkSamples samples, stopping
// early on barge-in.
func (c *conn) sendPCM(ctx context.Context, tag string, samples []float32) {
	for off := 0; off < len(samples); off += ttsChunkSamples {
		if c.interrupted.Load() {
			return
		}
		end := off + ttsChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		if err := c.writeFrame(tag, audio.Float32ToBytes(samples[off:end])); err != nil {
			c.logger.Warn("voice: audio frame failed", "err", err)
			return
		}
		if m := c.srv.metrics; m != nil && tag == wire.TagSpeech {
			m.TTSChunks.Add(ctx, 1)
		}
	}
}

// closeChannel plays the closing cue, announces teardown and drops the
// connection.
func (c *conn) closeChannel(ctx context.Context) {
	c.logger.Info("voice: closing channel")
	c.mu.Lock()
	c.gateOpen = false
	c.state = stateClosing
	c.mu.Unlock()

	beep := audio.Sine(beepFreq, beepDur, beepVolume, WireSampleRate)
	for i := 0; i < beepCount; i++ {
		if i > 0 {
			time.Sleep(beepGap)
		}
		c.sendPCM(ctx, wire.TagBeep, beep)
	}
	if err := c.writeFrame(wire.TagClose, nil); err != nil {
		c.logger.Warn("voice: close frame failed", "err", err)
	}
	c.nc.Close()
}
