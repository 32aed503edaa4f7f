// Package openai provides an LLM provider speaking the OpenAI completions
// API, as served by OpenAI itself or by any compatible inference server
// (llama.cpp server, vLLM, LocalAI).
//
// The legacy completions endpoint is deliberate: the conversation engine
// renders the entire chat template itself and needs the prompt passed to the
// model verbatim, which the chat endpoint does not allow.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxhollow/sibyl/pkg/provider/llm"
)

// Provider implements llm.Provider over the completions endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL points the client at a compatible server instead of the
// default OpenAI API.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Provider. Local compatible servers commonly ignore the
// key but the client requires one; pass any non-empty string for those.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// StreamGenerate implements llm.Provider.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	params := oai.CompletionNewParams{
		Model:  oai.CompletionNewParamsModel(p.model),
		Prompt: oai.CompletionNewParamsPromptUnion{OfString: oai.String(req.Prompt)},
	}
	if req.Options.Temperature != 0 {
		params.Temperature = oai.Float(req.Options.Temperature)
	}
	if req.Options.TopP != 0 {
		params.TopP = oai.Float(req.Options.TopP)
	}
	if req.Options.MaxTokens != 0 {
		params.MaxTokens = oai.Int(int64(req.Options.MaxTokens))
	}

	stream := p.client.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			completion := stream.Current()
			if len(completion.Choices) == 0 {
				continue
			}
			choice := completion.Choices[0]
			out := llm.Chunk{Text: choice.Text}
			switch choice.FinishReason {
			case "length":
				out.FinishReason = "length"
			case "stop":
				out.FinishReason = "stop"
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- llm.Chunk{Text: fmt.Sprintf("openai: stream: %v", err), FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
