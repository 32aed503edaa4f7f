// Package llm defines the Provider interface for language model backends.
//
// The conversation engine renders the entire prompt itself: preamble, tool
// protocol, history and synthetic tool-result turns are laid out with the
// model's own chat template before the provider is called. Providers
// therefore receive one opaque prompt string and stream raw tokens back.
// Backends that would normally apply a chat template server-side (Ollama,
// OpenAI-compatible servers) must be driven in raw/completion mode.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamGenerate must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamGenerate sends the rendered prompt to the model and returns a
	// read-only channel emitting Chunk values as tokens arrive. The channel
	// is closed by the implementation when generation finishes or ctx is
	// cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that
	// occur after the stream has started are surfaced as a final Chunk with
	// FinishReason "error" and the message in Text; the initial error
	// return is non-nil only for failures that prevent the stream from
	// starting (unreachable backend, malformed request).
	//
	// The returned channel is never nil when error is nil.
	StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan Chunk, error)
}
