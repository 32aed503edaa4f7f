// Package coqui provides a TTS provider backed by a locally running Coqui
// TTS server (ghcr.io/coqui-ai/tts-cpu). Synthesis is one GET /api/tts per
// sentence; the WAV response is parsed for its actual sample rate rather
// than assuming the model default, and returned as float32 PCM.
package coqui

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/tts"
)

// defaultTimeout bounds one synthesis request.
const defaultTimeout = 30 * time.Second

// Provider implements tts.Provider against a standard Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithLanguage sets the language_id sent to multi-lingual models. Empty
// omits the parameter, which single-language models require.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// New creates a Provider targeting the Coqui server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]float32, int, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice != "" {
		params.Set("speaker_id", voice)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + "/api/tts?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: GET /api/tts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("coqui: GET /api/tts returned status %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}
	if info.Channels != 1 {
		return nil, 0, fmt.Errorf("coqui: expected mono WAV, got %d channels", info.Channels)
	}

	return audio.BytesToFloat32(wav[info.DataOffset:]), info.SampleRate, nil
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int
	SampleRate int
	Channels   int
}

// parseWAV walks the RIFF chunks to find the fmt and data sub-chunks. The
// fmt chunk size varies between encoders, so a fixed 44-byte offset is not
// safe.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: response is not a RIFF/WAVE container")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("coqui: WAV data chunk before fmt chunk")
			}
			info.DataOffset = offset + 8
			return info, nil
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
