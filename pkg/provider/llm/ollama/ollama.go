// Package ollama provides an LLM provider backed by a local Ollama server.
//
// The provider drives the generate API in raw mode: the conversation engine
// renders the full chat template itself, so Ollama must not apply its own.
// Responses stream through the official client's callback; a 2 hour
// keep-alive holds the model in memory between turns so a voice exchange
// never pays the load cost twice.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/voxhollow/sibyl/pkg/provider/llm"
)

// DefaultKeepAlive is how long the model stays loaded after a generation.
const DefaultKeepAlive = 2 * time.Hour

// Provider implements llm.Provider against an Ollama server.
type Provider struct {
	client    *api.Client
	model     string
	keepAlive time.Duration
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithKeepAlive overrides the model keep-alive duration.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// New constructs a Provider for the Ollama server at baseURL (e.g.
// "http://127.0.0.1:11434") generating with the named model.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: baseURL must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse baseURL: %w", err)
	}

	p := &Provider{
		client:    api.NewClient(u, http.DefaultClient),
		model:     model,
		keepAlive: DefaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StreamGenerate implements llm.Provider. The prompt passes through with
// Raw set so the server applies no template of its own.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	stream := true
	greq := &api.GenerateRequest{
		Model:     p.model,
		Prompt:    req.Prompt,
		Raw:       true,
		Stream:    &stream,
		KeepAlive: &api.Duration{Duration: p.keepAlive},
		Options:   encodeOptions(req.Options),
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		err := p.client.Generate(ctx, greq, func(resp api.GenerateResponse) error {
			out := llm.Chunk{Text: resp.Response}
			if resp.Done {
				out.FinishReason = finishReason(resp.DoneReason)
			}
			select {
			case ch <- out:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			// The stream broke mid-generation; surface it as a final error
			// chunk per the provider contract.
			select {
			case ch <- llm.Chunk{Text: fmt.Sprintf("ollama: generate: %v", err), FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// encodeOptions maps the generic sampling options onto Ollama's option map,
// skipping zero values so the server defaults apply.
func encodeOptions(o llm.Options) map[string]any {
	opts := map[string]any{}
	if o.Temperature != 0 {
		opts["temperature"] = o.Temperature
	}
	if o.TopP != 0 {
		opts["top_p"] = o.TopP
	}
	if o.TopK != 0 {
		opts["top_k"] = o.TopK
	}
	if o.RepeatPenalty != 0 {
		opts["repeat_penalty"] = o.RepeatPenalty
	}
	if o.MaxTokens != 0 {
		opts["num_predict"] = o.MaxTokens
	}
	return opts
}

// finishReason normalizes Ollama done reasons onto the provider vocabulary.
func finishReason(reason string) string {
	switch reason {
	case "length":
		return "length"
	default:
		return "stop"
	}
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
