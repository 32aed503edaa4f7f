package app

import (
	"fmt"

	"github.com/voxhollow/sibyl/internal/config"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	llmmock "github.com/voxhollow/sibyl/pkg/provider/llm/mock"
	"github.com/voxhollow/sibyl/pkg/provider/llm/ollama"
	"github.com/voxhollow/sibyl/pkg/provider/llm/openai"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/provider/stt/deepgram"
	sttmock "github.com/voxhollow/sibyl/pkg/provider/stt/mock"
	"github.com/voxhollow/sibyl/pkg/provider/stt/whisper"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
	"github.com/voxhollow/sibyl/pkg/provider/tts/coqui"
	"github.com/voxhollow/sibyl/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/voxhollow/sibyl/pkg/provider/tts/mock"
	"github.com/voxhollow/sibyl/pkg/provider/vad"
	"github.com/voxhollow/sibyl/pkg/provider/vad/energy"
	vadmock "github.com/voxhollow/sibyl/pkg/provider/vad/mock"
)

// DefaultRegistry returns a registry with every backend this binary links:
// the real providers plus the mock kinds used for wiring smoke tests.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()

	r.RegisterModel(config.ModelOllama, func(cfg config.ModelConfig) (llm.Provider, error) {
		return ollama.New(cfg.BaseURL, cfg.Name)
	})
	r.RegisterModel(config.ModelOpenAI, func(cfg config.ModelConfig) (llm.Provider, error) {
		key, err := config.ReadSecret(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(key, cfg.Name, opts...)
	})
	r.RegisterModel(config.ModelMock, func(config.ModelConfig) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	r.RegisterTranscriber(config.TranscriberWhisper, func(cfg config.TranscriberConfig) (stt.Provider, error) {
		return whisper.NewNative(cfg.ModelPath, whisper.WithNativeLanguage(cfg.Language))
	})
	r.RegisterTranscriber(config.TranscriberWhisperServer, func(cfg config.TranscriberConfig) (stt.Provider, error) {
		return whisper.NewServer(cfg.ServerURL, whisper.WithServerLanguage(cfg.Language))
	})
	r.RegisterTranscriber(config.TranscriberDeepgram, func(cfg config.TranscriberConfig) (stt.Provider, error) {
		key, err := config.ReadSecret(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		var opts []deepgram.Option
		if cfg.Language != "" {
			opts = append(opts, deepgram.WithLanguage(cfg.Language))
		}
		return deepgram.New(key, opts...)
	})
	r.RegisterTranscriber(config.TranscriberMock, func(config.TranscriberConfig) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	r.RegisterSynthesizer(config.SynthesizerCoqui, func(cfg config.SynthesizerConfig) (tts.Provider, error) {
		return coqui.New(cfg.ServerURL)
	})
	r.RegisterSynthesizer(config.SynthesizerElevenLabs, func(cfg config.SynthesizerConfig) (tts.Provider, error) {
		key, err := config.ReadSecret(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		return elevenlabs.New(key)
	})
	r.RegisterSynthesizer(config.SynthesizerMock, func(config.SynthesizerConfig) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	r.RegisterVAD(config.VADEnergy, func(config.VADConfig) (vad.Engine, error) {
		return energy.New(), nil
	})
	r.RegisterVAD(config.VADMock, func(config.VADConfig) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})

	return r
}

// BuildProviders instantiates the four pipeline backends selected by cfg.
func BuildProviders(reg *config.Registry, cfg *config.Config) (*Providers, error) {
	model, err := reg.CreateModel(cfg.Providers.Model)
	if err != nil {
		return nil, fmt.Errorf("app: create model: %w", err)
	}
	transcriber, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("app: create transcriber: %w", err)
	}
	synthesizer, err := reg.CreateSynthesizer(cfg.Providers.Synthesizer)
	if err != nil {
		return nil, fmt.Errorf("app: create synthesizer: %w", err)
	}
	vadEngine, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: create vad: %w", err)
	}
	return &Providers{
		Model:       model,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		VAD:         vadEngine,
	}, nil
}
