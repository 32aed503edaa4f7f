// Package whisper provides whisper.cpp-backed STT providers in two
// flavours: [Native], which links the whisper.cpp library directly through
// its CGO bindings, and [Server], an HTTP client for a running
// whisper-server binary.
//
// Native needs libwhisper.a and whisper.h available at link time via
// LIBRARY_PATH and C_INCLUDE_PATH. Server only needs the binary running
// somewhere reachable and is the easier deployment when the inference host
// is not the server host.
package whisper

import (
	"context"
	"fmt"
	"io"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/types"
)

// defaultLanguage is used when no language option is given.
const defaultLanguage = "en"

// Native implements stt.Provider with the whisper.cpp CGO bindings. The
// model is loaded once and shared; inference contexts are not reentrant, so
// a mutex serializes Transcribe calls. Utterances are short (bounded by the
// silence timeout), which keeps the queueing delay acceptable.
type Native struct {
	model    whisperlib.Model
	language string

	mu sync.Mutex
}

// NativeOption is a functional option for [NewNative].
type NativeOption func(*Native)

// WithNativeLanguage sets the transcription language code ("en", "de", ...).
func WithNativeLanguage(lang string) NativeOption {
	return func(p *Native) { p.language = lang }
}

// NewNative loads the whisper model from modelPath. The caller must Close
// the provider to release the model.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *Native) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. sampleRate must be 16000, the only
// rate whisper.cpp accepts; other rates are the caller's resampling bug.
func (p *Native) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]types.Segment, error) {
	if sampleRate != whisperlib.SampleRate {
		return nil, fmt.Errorf("whisper: sample rate %d not supported, need %d", sampleRate, whisperlib.SampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		return nil, fmt.Errorf("whisper: set language %q: %w", p.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []types.Segment
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		segments = append(segments, types.Segment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
	}
	return segments, nil
}

// Ensure Native implements stt.Provider at compile time.
var _ stt.Provider = (*Native)(nil)
