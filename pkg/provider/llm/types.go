package llm

// Options carries the sampling parameters applied to a generation. Zero
// values mean "use the backend default"; backends skip fields they do not
// support.
type Options struct {
	// Temperature controls output randomness. Zero requests the backend
	// default rather than greedy decoding.
	Temperature float64

	// TopP is the nucleus sampling cutoff in (0, 1].
	TopP float64

	// TopK restricts sampling to the K most likely tokens.
	TopK int

	// RepeatPenalty discourages verbatim repetition (Ollama-style scale,
	// 1.0 = off).
	RepeatPenalty float64

	// MaxTokens caps the number of tokens generated in one turn.
	MaxTokens int
}

// GenerateRequest carries everything a backend needs for one model turn.
type GenerateRequest struct {
	// Prompt is the fully rendered prompt, chat template included. Backends
	// must pass it through verbatim.
	Prompt string

	// Options are the sampling parameters for this generation.
	Options Options
}

// Chunk is a fragment emitted by a streaming generation.
type Chunk struct {
	// Text is the incremental text of this chunk. On a FinishReason "error"
	// chunk it carries the error message instead of model output.
	Text string

	// FinishReason is set on the final chunk and indicates why generation
	// stopped: "stop" (natural end), "length" (token cap reached), "error"
	// (stream failed mid-generation), or "" for non-final chunks.
	FinishReason string
}
