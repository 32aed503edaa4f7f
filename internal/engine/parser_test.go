package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
)

// newTestParser returns a parser with a fresh queue and cancel event.
func newTestParser() *streamParser {
	return &streamParser{
		queue:  session.NewResponseQueue(64),
		cancel: &session.Event{},
	}
}

// feedChunks runs consume over a scripted chunk stream.
func feedChunks(t *testing.T, p *streamParser, texts ...string) (streamResult, error) {
	t.Helper()
	ch := make(chan llm.Chunk, len(texts))
	for _, s := range texts {
		ch <- llm.Chunk{Text: s}
	}
	close(ch)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.consume(ctx, ch)
}

// drainQueue collects every queued text item currently pending.
func drainQueue(t *testing.T, q *session.ResponseQueue) []string {
	t.Helper()
	var out []string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		text, ok, err := q.Next(ctx)
		cancel()
		if err != nil || !ok {
			return out
		}
		out = append(out, text)
	}
}

func TestConsume_PlainProse(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p, "Hello ", "there.")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool != nil {
		t.Fatalf("unexpected tool call %+v", result.tool)
	}
	if result.text != "Hello there." {
		t.Errorf("text = %q, want %q", result.text, "Hello there.")
	}
	if got := drainQueue(t, p.queue); len(got) != 2 || got[0] != "Hello " || got[1] != "there." {
		t.Errorf("queue items = %q, want [Hello , there.]", got)
	}
}

func TestConsume_ToolCallAfterProse(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p,
		"One moment. ",
		`{"name":"get_current_time",`,
		`"parameters":{}}`,
	)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool == nil {
		t.Fatal("expected a tool call")
	}
	if result.tool.Name != "get_current_time" {
		t.Errorf("tool name = %q, want get_current_time", result.tool.Name)
	}
	if result.text != "One moment. " {
		t.Errorf("text = %q, want the prose preceding the call", result.text)
	}
}

func TestConsume_UnclosedBraceKeptAsProse(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p, "The set is ", "{1, 2, 3")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool != nil {
		t.Fatalf("unexpected tool call %+v", result.tool)
	}
	if result.text != "The set is {1, 2, 3" {
		t.Errorf("text = %q, want the full sentence including the stray brace", result.text)
	}
	got := drainQueue(t, p.queue)
	if len(got) == 0 || strings.Join(got, "") != "The set is {1, 2, 3" {
		t.Errorf("queue items = %q, want the whole sentence forwarded", got)
	}
}

func TestConsume_ReturnsEagerlyOnFirstTool(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	// The second call is never reached: consume returns at the first.
	result, err := feedChunks(t, p,
		`{"name":"perform_search","parameters":{"query":"go"}} and then {"name":"open_website"}`,
	)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool == nil || result.tool.Name != "perform_search" {
		t.Fatalf("tool = %+v, want perform_search", result.tool)
	}
	if q, ok := result.tool.Parameters["query"]; !ok || q != "go" {
		t.Errorf("parameters = %v, want query=go", result.tool.Parameters)
	}
}

func TestConsume_NestedBraces(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p,
		`{"name":"perform_math_operation","parameters":{"operation":"divide","operand_one":10,"operand_two":4}}`,
	)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool == nil || result.tool.Name != "perform_math_operation" {
		t.Fatalf("tool = %+v, want perform_math_operation", result.tool)
	}
	inner, ok := result.tool.Parameters["operation"]
	if !ok || inner != "divide" {
		t.Errorf("parameters = %v, want operation=divide", result.tool.Parameters)
	}
}

func TestConsume_CurlyQuotesNormalized(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p, "{“name”: “check_weather”, “parameters”: {}}")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool == nil || result.tool.Name != "check_weather" {
		t.Fatalf("tool = %+v, want check_weather", result.tool)
	}
}

func TestConsume_JSONShapedProseDropped(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	// Balanced braces without a name field are not a call and not prose.
	result, err := feedChunks(t, p, `The shape is {"sides": 4} roughly.`)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool != nil {
		t.Fatalf("unexpected tool call %+v", result.tool)
	}
	if result.text != "The shape is  roughly." {
		t.Errorf("text = %q, want the braces dropped", result.text)
	}
}

func TestConsume_FencesSuppressParsing(t *testing.T) {
	t.Parallel()
	p := newTestParser()
	p.fences = true

	result, err := feedChunks(t, p, "```\n{\"name\":\"get_current_time\"}\n```")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool != nil {
		t.Fatalf("fenced JSON parsed as tool call: %+v", result.tool)
	}
}

func TestConsume_FencesIgnoredByDefault(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	result, err := feedChunks(t, p, "```\n{\"name\":\"get_current_time\"}\n```")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if result.tool == nil || result.tool.Name != "get_current_time" {
		t.Fatalf("tool = %+v, want get_current_time despite fences", result.tool)
	}
}

func TestConsume_ErrorChunk(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: "Partial "}
	ch <- llm.Chunk{Text: "connection reset", FinishReason: "error"}
	close(ch)

	result, err := p.consume(context.Background(), ch)
	if !errors.Is(err, ErrModelStream) {
		t.Fatalf("err = %v, want ErrModelStream", err)
	}
	if result.text != "Partial " {
		t.Errorf("text = %q, want the prose seen before the failure", result.text)
	}
}

func TestConsume_CancelStopsForwarding(t *testing.T) {
	t.Parallel()
	p := newTestParser()

	p.cancel.Set()
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: "First. "}
	ch <- llm.Chunk{Text: "Second."}
	close(ch)

	_, err := p.consume(context.Background(), ch)
	if !errors.Is(err, errCancelled) {
		t.Fatalf("err = %v, want errCancelled", err)
	}
	if got := drainQueue(t, p.queue); len(got) != 0 {
		t.Errorf("queue items = %q, want none after barge-in", got)
	}
}

func TestParseToolCall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		candidate string
		wantName  string
	}{
		{"canonical", `{"name":"open_website","parameters":{"website_url":"https://example.com"}}`, "open_website"},
		{"no parameters field", `{"name":"close_voice_channel"}`, "close_voice_channel"},
		{"whitespace padded", "  \n {\"name\":\"get_current_time\"} \n", "get_current_time"},
		{"missing name", `{"parameters":{}}`, ""},
		{"invalid json", `{"name": get_current_time}`, ""},
		{"empty name", `{"name":""}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			call := parseToolCall(tc.candidate)
			if tc.wantName == "" {
				if call != nil {
					t.Fatalf("parseToolCall = %+v, want nil", call)
				}
				return
			}
			if call == nil || call.Name != tc.wantName {
				t.Fatalf("parseToolCall = %+v, want name %q", call, tc.wantName)
			}
		})
	}
}
