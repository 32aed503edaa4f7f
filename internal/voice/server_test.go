package voice_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/voxhollow/sibyl/internal/engine"
	"github.com/voxhollow/sibyl/internal/prompt"
	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/internal/voice"
	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	llmmock "github.com/voxhollow/sibyl/pkg/provider/llm/mock"
	sttmock "github.com/voxhollow/sibyl/pkg/provider/stt/mock"
	ttsmock "github.com/voxhollow/sibyl/pkg/provider/tts/mock"
	"github.com/voxhollow/sibyl/pkg/provider/vad/energy"
	vadmock "github.com/voxhollow/sibyl/pkg/provider/vad/mock"
	"github.com/voxhollow/sibyl/pkg/types"
	"github.com/voxhollow/sibyl/pkg/wire"
)

// joinTemplate renders prompts as plain concatenation; the chat template is
// irrelevant to connection behavior.
type joinTemplate struct{}

func (joinTemplate) Name() string { return "join" }

func (joinTemplate) Render(p prompt.Prompt) string {
	var sb strings.Builder
	sb.WriteString(p.Preamble)
	for _, turn := range p.Turns {
		fmt.Fprintf(&sb, "\n[%s] %s", turn.Role, turn.Content)
	}
	return sb.String()
}

type staticKnowledge struct{}

func (staticKnowledge) PromptText() string { return "Assist briefly." }

type staticBehaviors struct{}

func (staticBehaviors) Rules() ([]string, error) { return nil, nil }

// closingHost is a minimal tool host: close_voice_channel latches the
// session close event, everything else answers "ok".
type closingHost struct{}

func (closingHost) Definitions(forVoice bool) []types.ToolDefinition {
	defs := []types.ToolDefinition{{Name: "get_current_time", Description: "Tells the time."}}
	if forVoice {
		defs = append([]types.ToolDefinition{{Name: "close_voice_channel", Description: "Ends the call."}}, defs...)
	}
	return defs
}

func (closingHost) Dispatch(_ context.Context, call types.ToolCall, sess *session.Session) types.ToolEnvelope {
	content := map[string]any{"text": "ok"}
	if call.Name == "close_voice_channel" {
		sess.CloseVoice.Set()
		content = map[string]any{"text": "Voice channel closed."}
	}
	return types.ToolEnvelope{ToolResult: types.ToolResult{Name: call.Name, Content: content}}
}

// env wires a full voice server over a loopback listener with scripted
// providers and a dialed client connection.
type env struct {
	llm      *llmmock.Provider
	stt      *sttmock.Provider
	tts      *ttsmock.Provider
	detector *vadmock.Detector
	sessions *session.Store

	client net.Conn
	reader *wire.Reader
}

func startEnv(t *testing.T, mutate func(*voice.Config)) *env {
	t.Helper()

	e := &env{
		llm:      &llmmock.Provider{},
		stt:      &sttmock.Provider{},
		tts:      &ttsmock.Provider{SampleRate: voice.WireSampleRate},
		detector: &vadmock.Detector{Default: true},
		sessions: session.NewStore(),
	}

	assembler := prompt.New(joinTemplate{}, staticKnowledge{}, staticBehaviors{})
	eng := engine.New(e.sessions, assembler, e.llm, closingHost{})

	cfg := voice.Config{
		Engine: eng,
		STT:    e.stt,
		TTS:    e.tts,
		VAD:    &vadmock.Engine{Detector: e.detector},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := voice.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	e.client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { e.client.Close() })
	e.reader = wire.NewReader(e.client, 0)
	return e
}

func (e *env) send(t *testing.T, tag string, payload []byte) {
	t.Helper()
	if err := wire.Write(e.client, tag, payload); err != nil {
		t.Fatalf("send %s: %v", tag, err)
	}
}

func (e *env) readFrame(t *testing.T) (string, []byte) {
	t.Helper()
	e.client.SetReadDeadline(time.Now().Add(5 * time.Second))
	tag, payload, err := e.reader.Next()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return tag, payload
}

// drainUntil reads frames until stop appears, returning per-tag counts of
// the frames seen before it.
func (e *env) drainUntil(t *testing.T, stop string) map[string]int {
	t.Helper()
	counts := map[string]int{}
	for {
		tag, _ := e.readFrame(t)
		if tag == stop {
			return counts
		}
		counts[tag]++
	}
}

// speechFrame is an AUD0 payload of non-silent PCM.
func speechFrame() []byte {
	samples := make([]float32, 320)
	for i := range samples {
		samples[i] = 0.3
	}
	return audio.Float32ToBytes(samples)
}

// script builds one model turn from chunk texts plus a stop chunk.
func script(texts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(texts)+1)
	for _, text := range texts {
		chunks = append(chunks, llm.Chunk{Text: text})
	}
	return append(chunks, llm.Chunk{FinishReason: "stop"})
}

func TestOpen_GreetsAndSignalsReady(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.send(t, wire.TagOpen, nil)

	counts := e.drainUntil(t, wire.TagReady)
	if counts[wire.TagSpeech] == 0 {
		t.Error("no greeting audio before RDY0")
	}
	texts := e.tts.Texts()
	if len(texts) == 0 || texts[0] != "I'm here" {
		t.Errorf("greeting = %q, want %q first", texts, "I'm here")
	}
}

func TestUtterance_SpeaksResponseAndReopens(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.stt.Results = [][]types.Segment{{{Text: "what time is it"}}}
	e.llm.Scripts = [][]llm.Chunk{script("It is three o'clock.")}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)

	counts := e.drainUntil(t, wire.TagReady)
	if counts[wire.TagSpeech] == 0 {
		t.Error("no response audio before RDY0")
	}

	calls := e.stt.TranscribeCalls
	if len(calls) != 1 {
		t.Fatalf("got %d transcriptions, want 1", len(calls))
	}
	if calls[0].SampleRate != voice.WireSampleRate {
		t.Errorf("transcribed at %d Hz, want %d", calls[0].SampleRate, voice.WireSampleRate)
	}

	texts := e.tts.Texts()
	var sawWorking, sawAnswer bool
	for _, text := range texts {
		if text == "Working" {
			sawWorking = true
		}
		if text == "It is three o'clock." {
			sawAnswer = true
		}
	}
	if !sawWorking {
		t.Errorf("first turn did not speak the working cue: %q", texts)
	}
	if !sawAnswer {
		t.Errorf("response sentence not synthesized: %q", texts)
	}
}

func TestDefaultVADConfig_HearsSpeechFrames(t *testing.T) {
	t.Parallel()

	// Real energy detector, threshold left zero so the backend default
	// applies. A 0.3-amplitude frame is ordinary speech level and must
	// start a recording.
	e := startEnv(t, func(cfg *voice.Config) {
		cfg.VAD = energy.New()
	})
	e.stt.Results = [][]types.Segment{{{Text: "hello"}}}
	e.llm.Scripts = [][]llm.Chunk{script("Hi.")}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)
	e.drainUntil(t, wire.TagReady)

	if len(e.stt.TranscribeCalls) != 1 {
		t.Fatalf("got %d transcriptions, want 1: default detector config missed speech", len(e.stt.TranscribeCalls))
	}
}

func TestSilenceTimeout_EndsUtterance(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.detector.Verdicts = []bool{true}
	e.detector.Default = false
	e.stt.Results = [][]types.Segment{{{Text: "hello"}}}
	e.llm.Scripts = [][]llm.Chunk{script("Hi there.")}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	time.Sleep(voice.VADTimeout + 100*time.Millisecond)
	e.send(t, wire.TagAudio, speechFrame())

	counts := e.drainUntil(t, wire.TagReady)
	if counts[wire.TagSpeech] == 0 {
		t.Error("no response audio after silence timeout")
	}
	if len(e.stt.TranscribeCalls) != 1 {
		t.Errorf("got %d transcriptions, want 1", len(e.stt.TranscribeCalls))
	}
}

func TestUnknownTag_Ignored(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.send(t, "ZZZZ", []byte("mystery"))
	e.send(t, wire.TagStop, nil)
	e.send(t, wire.TagOpen, nil)

	e.drainUntil(t, wire.TagReady)
	if texts := e.tts.Texts(); len(texts) == 0 || texts[0] != "I'm here" {
		t.Errorf("channel did not open after unknown tag: %q", texts)
	}
}

func TestAudioBeforeOpen_Dropped(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)
	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	if len(e.stt.TranscribeCalls) != 0 {
		t.Errorf("audio before OPEN reached the transcriber: %d calls", len(e.stt.TranscribeCalls))
	}
}

func TestClosePhrase_BeepsAndCloses(t *testing.T) {
	t.Parallel()

	e := startEnv(t, func(cfg *voice.Config) {
		cfg.ClosePhrase = "deactivate"
	})
	e.stt.Results = [][]types.Segment{{{Text: "Deactivate."}}}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)

	counts := e.drainUntil(t, wire.TagClose)
	if counts[wire.TagBeep] != 3 {
		t.Errorf("got %d beeps before CLOS, want 3", counts[wire.TagBeep])
	}
	if len(e.llm.GenerateCalls) != 0 {
		t.Errorf("close phrase reached the model: %d calls", len(e.llm.GenerateCalls))
	}

	// The connection closes after CLOS.
	e.client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := e.reader.Next(); err == nil {
		t.Error("connection still open after CLOS")
	}
}

func TestCloseVoiceTool_BeepsAndCloses(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.stt.Results = [][]types.Segment{{{Text: "goodbye"}}}
	e.llm.Scripts = [][]llm.Chunk{script(`{"name": "close_voice_channel", "parameters": {}}`)}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)

	counts := e.drainUntil(t, wire.TagClose)
	if counts[wire.TagBeep] != 3 {
		t.Errorf("got %d beeps before CLOS, want 3", counts[wire.TagBeep])
	}

	// Teardown runs after the CLOS frame is on the wire.
	deadline := time.Now().Add(5 * time.Second)
	for e.sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still live after close: %d", e.sessions.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInterrupt_StopsPlaybackAndListensAgain(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.stt.Results = [][]types.Segment{
		{{Text: "tell me a story"}},
		{{Text: "actually stop"}},
	}

	// A response long enough that playback must outlast the client's
	// barge-in even with fast mocks: the client stops reading after the
	// first frame, so the sender blocks once the socket buffers fill.
	// SamplesPerChar is cranked up so the total far exceeds any kernel
	// buffer autotuning.
	e.tts.SamplesPerChar = 800
	long := make([]string, 100)
	for i := range long {
		long[i] = fmt.Sprintf("Chapter %d of the story goes on and on with many words to fill the buffer completely. ", i)
	}
	e.llm.Scripts = [][]llm.Chunk{
		script(long...),
		script("Okay, stopping."),
	}

	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)

	// First response frame arrives, then barge in without reading more.
	e.readFrame(t)
	e.send(t, wire.TagInterrupt, nil)
	time.Sleep(100 * time.Millisecond)

	e.send(t, wire.TagAudio, speechFrame())
	e.send(t, wire.TagStop, nil)

	// Buffered stale frames drain first; the RDY0 after the second
	// response ends the turn.
	e.drainUntil(t, wire.TagReady)

	if len(e.stt.TranscribeCalls) != 2 {
		t.Fatalf("got %d transcriptions, want 2", len(e.stt.TranscribeCalls))
	}
	texts := e.tts.Texts()
	var sawSecond bool
	for _, text := range texts {
		if text == "Okay, stopping." {
			sawSecond = true
		}
	}
	if !sawSecond {
		t.Errorf("second response not synthesized after barge-in: %q", texts)
	}
	if len(texts) >= 2+len(long) {
		t.Errorf("interrupted response was synthesized in full: %d sentences", len(texts))
	}
	if e.detector.ResetCallCount == 0 {
		t.Error("barge-in did not reset the voice activity detector")
	}
}

func TestNewServer_RequiresProviders(t *testing.T) {
	t.Parallel()

	if _, err := voice.NewServer(voice.Config{}); err == nil {
		t.Fatal("NewServer accepted an empty config")
	}
}

func TestDisconnect_DropsSession(t *testing.T) {
	t.Parallel()

	e := startEnv(t, nil)
	e.send(t, wire.TagOpen, nil)
	e.drainUntil(t, wire.TagReady)

	if e.sessions.Len() != 1 {
		t.Fatalf("sessions after open = %d, want 1", e.sessions.Len())
	}
	e.client.Close()

	deadline := time.Now().Add(5 * time.Second)
	for e.sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still live after disconnect: %d", e.sessions.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
