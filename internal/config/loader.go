package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxhollow/sibyl/internal/prompt"
)

// Load reads the YAML configuration file at path, applies defaults for
// absent fields and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown fields are rejected; a typo in a key should fail loudly
// instead of silently configuring nothing.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// An empty document is the defaults; anything else must decode.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent. It returns a joined error listing
// every validation failure found, so an operator fixes one round of
// mistakes instead of one mistake per restart.
func Validate(cfg *Config) error {
	var errs []error

	for _, addr := range []struct{ field, value string }{
		{"server.voice_listen", cfg.Server.VoiceListen},
		{"server.chat_listen", cfg.Server.ChatListen},
		{"server.admin_listen", cfg.Server.AdminListen},
	} {
		if _, _, err := net.SplitHostPort(addr.value); err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not a valid listen address: %w", addr.field, addr.value, err))
		}
	}

	if !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if !cfg.Logging.Format.IsValid() {
		errs = append(errs, fmt.Errorf("logging.format %q is invalid; valid values: text, json", cfg.Logging.Format))
	}

	if cfg.Audio.VADTimeout <= 0 {
		errs = append(errs, fmt.Errorf("audio.vad_timeout %v must be positive", cfg.Audio.VADTimeout))
	}

	p := &cfg.Providers
	if !p.Transcriber.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("providers.transcriber.kind %q is invalid; valid values: whisper, whisperserver, deepgram, mock", p.Transcriber.Kind))
	}
	if !p.VAD.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("providers.vad.kind %q is invalid; valid values: energy, mock", p.VAD.Kind))
	}
	if p.VAD.Threshold < 0 || p.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("providers.vad.threshold %.2f is out of range [0, 1]", p.VAD.Threshold))
	}
	if !p.Synthesizer.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("providers.synthesizer.kind %q is invalid; valid values: coqui, elevenlabs, mock", p.Synthesizer.Kind))
	}
	if !p.Model.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("providers.model.kind %q is invalid; valid values: ollama, openai, mock", p.Model.Kind))
	}
	if _, err := prompt.ByName(p.Model.Template); err != nil {
		errs = append(errs, fmt.Errorf("providers.model.template %q is invalid; valid values: llama3, mistral", p.Model.Template))
	}

	// Backend-specific requirements.
	switch p.Transcriber.Kind {
	case TranscriberWhisper:
		if p.Transcriber.ModelPath == "" {
			errs = append(errs, errors.New("providers.transcriber.model_path is required for kind whisper"))
		}
	case TranscriberWhisperServer:
		if p.Transcriber.ServerURL == "" {
			errs = append(errs, errors.New("providers.transcriber.server_url is required for kind whisperserver"))
		}
	case TranscriberDeepgram:
		errs = appendSecretErr(errs, "providers.transcriber.api_key_file", p.Transcriber.APIKeyFile, true)
	}
	switch p.Synthesizer.Kind {
	case SynthesizerCoqui:
		if p.Synthesizer.ServerURL == "" {
			errs = append(errs, errors.New("providers.synthesizer.server_url is required for kind coqui"))
		}
	case SynthesizerElevenLabs:
		errs = appendSecretErr(errs, "providers.synthesizer.api_key_file", p.Synthesizer.APIKeyFile, true)
	}
	if p.Model.Kind == ModelOpenAI {
		errs = appendSecretErr(errs, "providers.model.api_key_file", p.Model.APIKeyFile, true)
	}

	errs = appendSecretErr(errs, "server.admin_token_file", cfg.Server.AdminTokenFile, false)

	// Tool credentials may be missing; the tools then answer with tool
	// errors instead of blocking startup.
	warnUnreadable("tools.homeassistant.token_file", cfg.Tools.HomeAssistant.TokenFile)
	warnUnreadable("tools.weather.api_key_file", cfg.Tools.Weather.APIKeyFile)

	if cfg.Tools.MaxToolIterations <= 0 {
		errs = append(errs, fmt.Errorf("tools.max_tool_iterations %d must be positive", cfg.Tools.MaxToolIterations))
	}

	return errors.Join(errs...)
}

// appendSecretErr verifies a secret file is readable. When required is set,
// an empty path is itself an error.
func appendSecretErr(errs []error, field, path string, required bool) []error {
	if path == "" {
		if required {
			return append(errs, fmt.Errorf("%s is required", field))
		}
		return errs
	}
	if err := readable(path); err != nil {
		return append(errs, fmt.Errorf("%s: %w", field, err))
	}
	return errs
}

func warnUnreadable(field, path string) {
	if path == "" {
		return
	}
	if err := readable(path); err != nil {
		slog.Warn("config: secret file unreadable, dependent tools will fail",
			"field", field, "err", err)
	}
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// ReadSecret reads a credential file and trims surrounding whitespace, so a
// trailing newline from an editor does not end up inside a bearer token. An
// empty path yields an empty secret.
func ReadSecret(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read secret %q: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
