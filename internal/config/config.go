// Package config provides the configuration schema, loader, provider
// registry and file watcher for the sibyl server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// TranscriberKind selects the STT backend.
type TranscriberKind string

const (
	TranscriberWhisper       TranscriberKind = "whisper"
	TranscriberWhisperServer TranscriberKind = "whisperserver"
	TranscriberDeepgram      TranscriberKind = "deepgram"
	TranscriberMock          TranscriberKind = "mock"
)

// IsValid reports whether k is a recognised transcriber kind.
func (k TranscriberKind) IsValid() bool {
	switch k {
	case TranscriberWhisper, TranscriberWhisperServer, TranscriberDeepgram, TranscriberMock:
		return true
	}
	return false
}

// VADKind selects the voice-activity detection backend.
type VADKind string

const (
	VADEnergy VADKind = "energy"
	VADMock   VADKind = "mock"
)

// IsValid reports whether k is a recognised VAD kind.
func (k VADKind) IsValid() bool {
	return k == VADEnergy || k == VADMock
}

// SynthesizerKind selects the TTS backend.
type SynthesizerKind string

const (
	SynthesizerCoqui      SynthesizerKind = "coqui"
	SynthesizerElevenLabs SynthesizerKind = "elevenlabs"
	SynthesizerMock       SynthesizerKind = "mock"
)

// IsValid reports whether k is a recognised synthesizer kind.
func (k SynthesizerKind) IsValid() bool {
	switch k {
	case SynthesizerCoqui, SynthesizerElevenLabs, SynthesizerMock:
		return true
	}
	return false
}

// ModelKind selects the language model backend.
type ModelKind string

const (
	ModelOllama ModelKind = "ollama"
	ModelOpenAI ModelKind = "openai"
	ModelMock   ModelKind = "mock"
)

// IsValid reports whether k is a recognised model kind.
func (k ModelKind) IsValid() bool {
	switch k {
	case ModelOllama, ModelOpenAI, ModelMock:
		return true
	}
	return false
}

// Config is the root configuration, typically loaded from a YAML file via
// [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Tools     ToolsConfig     `yaml:"tools"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds the listen addresses of the three server surfaces.
type ServerConfig struct {
	// VoiceListen is the TCP address of the satellite protocol listener.
	VoiceListen string `yaml:"voice_listen"`

	// ChatListen is the address of the chat HTTP server.
	ChatListen string `yaml:"chat_listen"`

	// AdminListen is the address of the admin HTTP server.
	AdminListen string `yaml:"admin_listen"`

	// AdminTokenFile holds a bearer token gating the admin API. Empty
	// leaves the API open.
	AdminTokenFile string `yaml:"admin_token_file"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// AudioConfig holds the voice channel tunables.
type AudioConfig struct {
	// VADTimeout is the silence span that ends an utterance.
	VADTimeout time.Duration `yaml:"vad_timeout"`

	// ClosePhrase closes the voice channel when spoken. Empty disables the
	// phrase check.
	ClosePhrase string `yaml:"close_phrase"`

	// Greeting is spoken when the channel opens.
	Greeting string `yaml:"greeting"`
}

// ProvidersConfig selects and configures the pipeline backends.
type ProvidersConfig struct {
	Transcriber TranscriberConfig `yaml:"transcriber"`
	VAD         VADConfig         `yaml:"vad"`
	Synthesizer SynthesizerConfig `yaml:"synthesizer"`
	Model       ModelConfig       `yaml:"model"`
}

// TranscriberConfig configures the STT backend.
type TranscriberConfig struct {
	Kind TranscriberKind `yaml:"kind"`

	// ModelPath is the whisper model file for the native backend.
	ModelPath string `yaml:"model_path"`

	// ServerURL is the whisper-server endpoint.
	ServerURL string `yaml:"server_url"`

	// APIKeyFile holds the Deepgram key.
	APIKeyFile string `yaml:"api_key_file"`

	// Language hints the transcription language.
	Language string `yaml:"language"`
}

// VADConfig configures voice-activity detection.
type VADConfig struct {
	Kind VADKind `yaml:"kind"`

	// Threshold is the speech threshold on the backend's own scale. For
	// the energy backend it is a normalized RMS level. Zero selects the
	// backend default.
	Threshold float64 `yaml:"threshold"`
}

// SynthesizerConfig configures the TTS backend.
type SynthesizerConfig struct {
	Kind SynthesizerKind `yaml:"kind"`

	// ServerURL is the Coqui server endpoint.
	ServerURL string `yaml:"server_url"`

	// Voice is the backend-specific voice identifier.
	Voice string `yaml:"voice"`

	// APIKeyFile holds the ElevenLabs key.
	APIKeyFile string `yaml:"api_key_file"`
}

// ModelConfig configures the language model backend.
type ModelConfig struct {
	Kind ModelKind `yaml:"kind"`

	// BaseURL is the backend endpoint (ollama server or any
	// OpenAI-compatible completions server).
	BaseURL string `yaml:"base_url"`

	// Name is the model identifier passed to the backend.
	Name string `yaml:"name"`

	// Template selects the chat template ("llama3" or "mistral").
	Template string `yaml:"template"`

	// APIKeyFile holds the key for OpenAI-compatible backends.
	APIKeyFile string `yaml:"api_key_file"`

	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature"`
}

// PromptConfig holds the file paths behind prompt assembly.
type PromptConfig struct {
	// BaseInstructionsPath overrides the embedded persona instructions.
	BaseInstructionsPath string `yaml:"base_instructions_path"`

	// VoiceInstructionsPath overrides the embedded voice instructions.
	VoiceInstructionsPath string `yaml:"voice_instructions_path"`

	// KnowledgePath is the admin-editable system message file.
	KnowledgePath string `yaml:"knowledge_path"`

	// BehaviorPath is the behavior override rules file.
	BehaviorPath string `yaml:"behavior_path"`
}

// ToolsConfig configures the external tool services.
type ToolsConfig struct {
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Weather       WeatherConfig       `yaml:"weather"`
	Search        SearchConfig        `yaml:"search"`

	// MaxToolIterations caps tool round-trips per input.
	MaxToolIterations int `yaml:"max_tool_iterations"`
}

// HomeAssistantConfig configures the Home Assistant client. An empty
// BaseURL disables the home automation tools and the entity digest.
type HomeAssistantConfig struct {
	BaseURL   string `yaml:"base_url"`
	TokenFile string `yaml:"token_file"`
}

// WeatherConfig configures the OpenWeatherMap client.
type WeatherConfig struct {
	APIKeyFile      string `yaml:"api_key_file"`
	DefaultLocation string `yaml:"default_location"`
}

// SearchConfig configures web search and page fetching.
type SearchConfig struct {
	// UserAgent overrides the browser User-Agent sent to DuckDuckGo and
	// fetched pages.
	UserAgent string `yaml:"user_agent"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when a field is absent from the
// loaded file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			VoiceListen: ":10400",
			ChatListen:  ":8080",
			AdminListen: ":8081",
		},
		Logging: LoggingConfig{
			Level:  LogInfo,
			Format: LogText,
		},
		Audio: AudioConfig{
			VADTimeout: 700 * time.Millisecond,
			Greeting:   "I'm here",
		},
		Providers: ProvidersConfig{
			Transcriber: TranscriberConfig{
				Kind:     TranscriberWhisper,
				Language: "en",
			},
			VAD: VADConfig{
				Kind: VADEnergy,
			},
			Synthesizer: SynthesizerConfig{
				Kind: SynthesizerCoqui,
			},
			Model: ModelConfig{
				Kind:        ModelOllama,
				BaseURL:     "http://127.0.0.1:11434",
				Name:        "llama3.1",
				Template:    "llama3",
				Temperature: 0.7,
			},
		},
		Prompt: PromptConfig{
			KnowledgePath: "knowledge.txt",
			BehaviorPath:  "behaviour.json",
		},
		Tools: ToolsConfig{
			MaxToolIterations: 8,
		},
		Observe: ObserveConfig{
			ServiceName: "sibyl",
		},
	}
}
