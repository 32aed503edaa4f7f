// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the engine renders and to
// feed controlled token streams without a live backend. All fields are safe
// to set before calling any method; mutating them during a concurrent call
// is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Scripts: [][]llm.Chunk{{{Text: "Hello!"}, {FinishReason: "stop"}}},
//	}
//	ch, err := p.StreamGenerate(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxhollow/sibyl/pkg/provider/llm"
)

// GenerateCall records a single invocation of StreamGenerate.
type GenerateCall struct {
	// Ctx is the context passed to StreamGenerate.
	Ctx context.Context
	// Req is the GenerateRequest passed to StreamGenerate.
	Req llm.GenerateRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Each StreamGenerate call consumes the next chunk sequence from Scripts,
// which lets a test script a multi-turn tool exchange: the first call yields
// a tool invocation, the second the final answer. Calls beyond the last
// script replay the final one.
type Provider struct {
	mu sync.Mutex

	// Scripts holds one chunk sequence per expected StreamGenerate call, in
	// order. An empty Scripts yields a channel that closes immediately.
	Scripts [][]llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamGenerate
	// instead of opening a channel.
	StreamErr error

	// GenerateCalls records every invocation of StreamGenerate in order.
	GenerateCalls []GenerateCall
}

// StreamGenerate records the call and returns a channel that emits the next
// script. If StreamErr is set, it returns nil, StreamErr without opening a
// channel.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	var script []llm.Chunk
	if n := len(p.Scripts); n > 0 {
		idx := len(p.GenerateCalls) - 1
		if idx >= n {
			idx = n - 1
		}
		script = make([]llm.Chunk, len(p.Scripts[idx]))
		copy(script, p.Scripts[idx])
	}
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(script))
	go func() {
		defer close(ch)
		for _, c := range script {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Prompts returns the prompt of every recorded call, in order.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.GenerateCalls))
	for i, c := range p.GenerateCalls {
		out[i] = c.Req.Prompt
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
