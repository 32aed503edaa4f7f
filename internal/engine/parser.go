// Package engine is the conversation runtime: it streams model turns
// through the tool-call parser into the session's response queue, executes
// detected tools and reinjects their results, repeating until the model
// produces a tool-free turn or closes the voice channel.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	"github.com/voxhollow/sibyl/pkg/types"
)

// ErrModelStream reports that the backend stream failed mid-turn. The loop
// turns it into a short spoken error message rather than a crash.
var ErrModelStream = errors.New("engine: model stream failed")

// errCancelled is the internal signal that the session cancel event fired
// mid-stream. Never escapes the engine.
var errCancelled = errors.New("engine: turn cancelled")

// streamResult is what one parsed model turn produced.
type streamResult struct {
	// text is the prose forwarded to the response queue, in order. When a
	// tool call was detected this is the partial text preceding it.
	text string

	// tool is the first complete tool call in the turn, or nil.
	tool *types.ToolCall
}

// streamParser extracts balanced-brace JSON tool calls from a character
// stream while forwarding everything else as prose. One parser serves one
// model turn.
//
// Code-fence tracking exists for models that wrap tool JSON in markdown
// fences; it is off by default because the served prompts forbid fences and
// enabling it costs a misparse when a spoken answer happens to contain
// backticks.
type streamParser struct {
	queue  *session.ResponseQueue
	cancel *session.Event
	fences bool

	depth       int
	accumulator strings.Builder
	collecting  bool
	insideCode  bool
	backticks   int

	prose strings.Builder // everything forwarded, for history
	batch strings.Builder // pending prose of the current chunk
}

// consume runs the incoming chunk stream to completion or to the first tool
// call, whichever comes first. Prose is flushed to the response queue at
// chunk granularity. Returns errCancelled once the session cancel event is
// observed and ErrModelStream on an error chunk.
func (p *streamParser) consume(ctx context.Context, chunks <-chan llm.Chunk) (streamResult, error) {
	for {
		select {
		case <-ctx.Done():
			return streamResult{text: p.prose.String()}, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				// A { that never closed was prose after all; a stray brace
				// must not cost the rest of the sentence.
				p.reclaim()
				if err := p.flush(ctx); err != nil {
					return streamResult{text: p.prose.String()}, err
				}
				return streamResult{text: p.prose.String()}, nil
			}
			if chunk.FinishReason == "error" {
				return streamResult{text: p.prose.String()}, fmt.Errorf("%w: %s", ErrModelStream, chunk.Text)
			}
			if p.cancel.IsSet() {
				return streamResult{text: p.prose.String()}, errCancelled
			}

			for _, r := range chunk.Text {
				if tool := p.feed(r); tool != nil {
					if err := p.flush(ctx); err != nil {
						return streamResult{text: p.prose.String(), tool: tool}, err
					}
					return streamResult{text: p.prose.String(), tool: tool}, nil
				}
			}
			if err := p.flush(ctx); err != nil {
				return streamResult{text: p.prose.String()}, err
			}
		}
	}
}

// feed advances the parser by one character and returns a tool call when
// one just completed.
func (p *streamParser) feed(r rune) *types.ToolCall {
	if p.fences {
		if r == '`' {
			p.backticks++
			if p.backticks == 3 {
				p.insideCode = !p.insideCode
				p.backticks = 0
			}
		} else {
			p.backticks = 0
		}
	}

	if r == '{' && !p.insideCode {
		if !p.collecting {
			p.collecting = true
			p.accumulator.Reset()
		}
		p.depth++
	}

	if p.collecting {
		p.accumulator.WriteRune(r)
	} else {
		p.batch.WriteRune(r)
	}

	if r == '}' && !p.insideCode && p.collecting {
		p.depth--
		if p.depth == 0 {
			candidate := p.accumulator.String()
			p.collecting = false
			p.accumulator.Reset()
			return parseToolCall(candidate)
		}
	}
	return nil
}

// reclaim moves an accumulator that never balanced back onto the prose
// path, so an unclosed { at end of turn reaches the queue and history.
func (p *streamParser) reclaim() {
	if !p.collecting {
		return
	}
	p.batch.WriteString(p.accumulator.String())
	p.accumulator.Reset()
	p.collecting = false
	p.depth = 0
}

// flush forwards the pending prose batch to the response queue unless the
// turn is cancelled. The accumulated prose still feeds history either way.
func (p *streamParser) flush(ctx context.Context) error {
	if p.batch.Len() == 0 {
		return nil
	}
	text := p.batch.String()
	p.batch.Reset()
	p.prose.WriteString(text)
	if p.cancel.IsSet() {
		return nil
	}
	return p.queue.Put(ctx, text)
}

// quoteNormalizer maps typographic quotes to their ASCII equivalents. Some
// models emit curly quotes inside otherwise valid tool JSON.
var quoteNormalizer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", `'`, // left single
	"’", `'`, // right single
)

// parseToolCall attempts to decode a balanced-brace candidate as a tool
// call. Anything that fails to parse, or parses without a string name, is
// dropped silently: the model was producing JSON-shaped prose, not a call.
func parseToolCall(candidate string) *types.ToolCall {
	normalized := quoteNormalizer.Replace(strings.TrimSpace(candidate))

	var decoded struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(normalized), &decoded); err != nil {
		return nil
	}
	if decoded.Name == "" {
		return nil
	}
	return &types.ToolCall{Name: decoded.Name, Parameters: decoded.Parameters}
}
