// Package elevenlabs provides a TTS provider backed by the ElevenLabs API.
// Synthesis is one POST per sentence requesting raw PCM output, which skips
// container parsing entirely: the response body is int16 little-endian mono
// at the requested rate.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
)

const (
	// DefaultBaseURL is the public ElevenLabs API.
	DefaultBaseURL = "https://api.elevenlabs.io"

	// defaultModelID is the low-latency model suited to conversational use.
	defaultModelID = "eleven_flash_v2_5"

	// outputFormat requests raw 16 kHz PCM, the wire rate, so playback
	// needs no resampling.
	outputFormat = "pcm_16000"
	outputRate   = 16000

	defaultTimeout = 30 * time.Second
)

// Provider implements tts.Provider against the ElevenLabs API.
type Provider struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithModelID selects the ElevenLabs model.
func WithModelID(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		modelID:    defaultModelID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body of a text-to-speech call.
type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize implements tts.Provider. voice is the ElevenLabs voice id and
// must not be empty.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]float32, int, error) {
	if voice == "" {
		return nil, 0, errors.New("elevenlabs: voice id must not be empty")
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: p.modelID})
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voice, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: POST text-to-speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("elevenlabs: POST text-to-speech returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: read PCM response: %w", err)
	}
	return audio.BytesToFloat32(pcm), outputRate, nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
