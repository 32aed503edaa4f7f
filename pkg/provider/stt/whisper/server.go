package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/types"
)

// Server implements stt.Provider against a running whisper-server binary.
// Each utterance becomes one POST /inference with a WAV body; the server
// handles its own concurrency, so no client-side serialization is needed.
type Server struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// ServerOption is a functional option for [NewServer].
type ServerOption func(*Server)

// WithServerLanguage sets the transcription language code.
func WithServerLanguage(lang string) ServerOption {
	return func(p *Server) { p.language = lang }
}

// WithServerTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithServerTimeout(d time.Duration) ServerOption {
	return func(p *Server) { p.httpClient.Timeout = d }
}

// NewServer returns a Server targeting the whisper-server at serverURL
// (e.g. "http://localhost:8080").
func NewServer(serverURL string, opts ...ServerOption) (*Server, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	p := &Server{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the JSON body returned by POST /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements stt.Provider.
func (p *Server) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]types.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(audio.Float32ToBytes(samples), sampleRate, 1)); err != nil {
		return nil, fmt.Errorf("whisper: write form file: %w", err)
	}
	if err := mw.WriteField("language", p.language); err != nil {
		return nil, fmt.Errorf("whisper: write language field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("whisper: write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create inference request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: POST /inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("whisper: POST /inference returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("whisper: decode inference response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("whisper: server error: %s", decoded.Error)
	}
	if decoded.Text == "" {
		return nil, nil
	}
	return []types.Segment{{Text: decoded.Text}}, nil
}

// Ensure Server implements stt.Provider at compile time.
var _ stt.Provider = (*Server)(nil)
