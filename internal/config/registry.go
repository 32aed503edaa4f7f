package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxhollow/sibyl/pkg/provider/llm"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by the Create methods when no
// factory has been registered under the requested kind.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider kinds to their constructor functions. The
// composition root registers the backends it links in; keeping the factory
// table out of this package means cgo-heavy backends are only pulled in by
// binaries that want them. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	model       map[ModelKind]func(ModelConfig) (llm.Provider, error)
	transcriber map[TranscriberKind]func(TranscriberConfig) (stt.Provider, error)
	synthesizer map[SynthesizerKind]func(SynthesizerConfig) (tts.Provider, error)
	vad         map[VADKind]func(VADConfig) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		model:       make(map[ModelKind]func(ModelConfig) (llm.Provider, error)),
		transcriber: make(map[TranscriberKind]func(TranscriberConfig) (stt.Provider, error)),
		synthesizer: make(map[SynthesizerKind]func(SynthesizerConfig) (tts.Provider, error)),
		vad:         make(map[VADKind]func(VADConfig) (vad.Engine, error)),
	}
}

// RegisterModel registers a language model factory under kind. Subsequent
// calls with the same kind overwrite the previous registration.
func (r *Registry) RegisterModel(kind ModelKind, factory func(ModelConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model[kind] = factory
}

// RegisterTranscriber registers an STT factory under kind.
func (r *Registry) RegisterTranscriber(kind TranscriberKind, factory func(TranscriberConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[kind] = factory
}

// RegisterSynthesizer registers a TTS factory under kind.
func (r *Registry) RegisterSynthesizer(kind SynthesizerKind, factory func(SynthesizerConfig) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesizer[kind] = factory
}

// RegisterVAD registers a voice-activity detection factory under kind.
func (r *Registry) RegisterVAD(kind VADKind, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[kind] = factory
}

// CreateModel builds the language model backend selected by cfg.
func (r *Registry) CreateModel(cfg ModelConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.model[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

// CreateTranscriber builds the STT backend selected by cfg.
func (r *Registry) CreateTranscriber(cfg TranscriberConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber %q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

// CreateSynthesizer builds the TTS backend selected by cfg.
func (r *Registry) CreateSynthesizer(cfg SynthesizerConfig) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.synthesizer[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesizer %q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}

// CreateVAD builds the voice-activity detection backend selected by cfg.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad %q", ErrProviderNotRegistered, cfg.Kind)
	}
	return factory(cfg)
}
