// Package deepgram provides an STT provider backed by Deepgram's streaming
// listen API, adapted to the batch Transcribe contract: each utterance opens
// a short-lived websocket, streams the PCM, closes the stream and collects
// the final results. The connection-per-utterance model trades a little
// latency for the simpler lifecycle the capture pipeline expects.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/voxhollow/sibyl/pkg/audio"
	"github.com/voxhollow/sibyl/pkg/provider/stt"
	"github.com/voxhollow/sibyl/pkg/types"
)

// DefaultEndpoint is Deepgram's streaming transcription endpoint.
const DefaultEndpoint = "wss://api.deepgram.com/v1/listen"

// writeChunkBytes is how much PCM goes into each binary message.
const writeChunkBytes = 8192

// Provider implements stt.Provider against the Deepgram listen API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithModel selects the Deepgram model. Defaults to "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the transcription language code. Defaults to "en".
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: DefaultEndpoint,
		model:    "nova-2",
		language: "en",
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenResponse is the JSON shape of a Results event. Start and Duration
// position the result within the utterance, in seconds.
type listenResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]types.Segment, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	wsURL, err := p.buildURL(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "utterance done")

	pcm := audio.Float32ToBytes(samples)
	for len(pcm) > 0 {
		end := min(writeChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[:end]); err != nil {
			return nil, fmt.Errorf("deepgram: write audio: %w", err)
		}
		pcm = pcm[end:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: close stream: %w", err)
	}

	// Collect final results until the server closes the socket. Websocket
	// close after CloseStream is the end-of-results signal.
	var segments []types.Segment
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return segments, nil
		}
		var resp listenResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type != "Results" || !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		text := resp.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}
		segments = append(segments, types.Segment{
			Text:  text,
			Start: time.Duration(resp.Start * float64(time.Second)),
			End:   time.Duration((resp.Start + resp.Duration) * float64(time.Second)),
		})
	}
}

// buildURL constructs the listen endpoint URL for one utterance.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
