package openai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxhollow/sibyl/pkg/provider/llm"
	"github.com/voxhollow/sibyl/pkg/provider/llm/openai"
)

// fakeCompletions serves a minimal SSE completions endpoint, emitting one
// event per fragment and recording the decoded request body.
func fakeCompletions(t *testing.T, fragments []string, record *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/completions") {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if record != nil {
			*record = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, frag := range fragments {
			finish := "null"
			if i == len(fragments)-1 {
				finish = `"stop"`
			}
			fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"text_completion\",\"choices\":[{\"index\":0,\"text\":%q,\"finish_reason\":%s}]}\n\n", frag, finish)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestStreamGenerate(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := fakeCompletions(t, []string{"It is ", "4:15PM."}, &got)
	defer srv.Close()

	p, err := openai.New("test-key", "gpt-local", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.StreamGenerate(context.Background(), llm.GenerateRequest{
		Prompt:  "[INST] time? [/INST]",
		Options: llm.Options{Temperature: 0.5, MaxTokens: 128},
	})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}

	var sb strings.Builder
	var finish string
	for chunk := range ch {
		sb.WriteString(chunk.Text)
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if sb.String() != "It is 4:15PM." {
		t.Errorf("text: got %q", sb.String())
	}
	if finish != "stop" {
		t.Errorf("finish reason: got %q", finish)
	}
	if got["prompt"] != "[INST] time? [/INST]" {
		t.Errorf("prompt not passed through verbatim: %v", got["prompt"])
	}
	if got["stream"] != true {
		t.Error("request should stream")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", "m"); err == nil {
		t.Error("empty apiKey should fail")
	}
	if _, err := openai.New("k", ""); err == nil {
		t.Error("empty model should fail")
	}
}
