package prompt_test

import (
	"strings"
	"testing"

	"github.com/voxhollow/sibyl/internal/prompt"
	"github.com/voxhollow/sibyl/pkg/types"
)

func TestByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"llama3", "mistral"} {
		tmpl, err := prompt.ByName(name)
		if err != nil {
			t.Errorf("ByName(%q): %v", name, err)
			continue
		}
		if tmpl.Name() != name {
			t.Errorf("ByName(%q).Name() = %q", name, tmpl.Name())
		}
	}

	if _, err := prompt.ByName("chatml"); err == nil {
		t.Error("ByName(chatml) = nil error, want unknown-template error")
	}
}

func TestLlama3_Render(t *testing.T) {
	t.Parallel()

	out := prompt.Llama3{}.Render(prompt.Prompt{
		Preamble: "Be brief.",
		Tools:    []types.ToolDefinition{{Name: "get_weather", Description: "Weather."}},
		Turns: []types.Turn{
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "Hi."},
		},
	})

	if !strings.HasPrefix(out, "<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\nBe brief.") {
		t.Errorf("prompt does not open with the system slot:\n%q", out)
	}
	if !strings.HasSuffix(out, "<|start_header_id|>assistant<|end_header_id|>\n\n") {
		t.Errorf("prompt does not end with the assistant cue:\n%q", out)
	}
	if !strings.Contains(out, `"name":"get_weather"`) {
		t.Error("tool definition missing from the system slot")
	}
	if !strings.Contains(out, "<|start_header_id|>user<|end_header_id|>\n\nhello<|eot_id|>") {
		t.Error("user turn not rendered under its role header")
	}
	if !strings.Contains(out, "<|start_header_id|>assistant<|end_header_id|>\n\nHi.<|eot_id|>") {
		t.Error("assistant turn not rendered under its role header")
	}
}

func TestLlama3_ToolResultBecomesUserTurn(t *testing.T) {
	t.Parallel()

	out := prompt.Llama3{}.Render(prompt.Prompt{
		Preamble: "Be brief.",
		Turns: []types.Turn{
			{Role: types.RoleTool, Content: `{"temp": 21}`},
		},
	})

	want := "<|start_header_id|>user<|end_header_id|>\n\n<TOOL_RESULT>{\"temp\": 21}</TOOL_RESULT><|eot_id|>"
	if !strings.Contains(out, want) {
		t.Errorf("tool turn rendering:\n%q\nwant it to contain\n%q", out, want)
	}
	if strings.Contains(out, "<|start_header_id|>tool") {
		t.Error("tool turn rendered under a tool role header")
	}
}

func TestMistral_Render(t *testing.T) {
	t.Parallel()

	out := prompt.Mistral{}.Render(prompt.Prompt{
		Preamble: "Be brief.",
		Tools:    []types.ToolDefinition{{Name: "web_search"}},
		Turns: []types.Turn{
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "Hi."},
			{Role: types.RoleUser, Content: "and?"},
		},
	})

	if !strings.HasPrefix(out, "[AVAILABLE_TOOLS]") {
		t.Errorf("prompt does not open with the tools block:\n%q", out)
	}
	if !strings.Contains(out, "[SYSTEM]Be brief.") {
		t.Error("preamble missing from the system block")
	}
	if !strings.Contains(out, "[INST] hello [/INST]\nHi.</s>") {
		t.Error("user/assistant exchange not rendered in instruction form")
	}
	// The open instruction at the end is the generation cue.
	if !strings.HasSuffix(out, "[INST] and? [/INST]") {
		t.Errorf("prompt does not end on the pending instruction:\n%q", out)
	}
}

func TestMistral_ToolResultBecomesUserTurn(t *testing.T) {
	t.Parallel()

	out := prompt.Mistral{}.Render(prompt.Prompt{
		Preamble: "Be brief.",
		Turns: []types.Turn{
			{Role: types.RoleTool, Content: `{"ok":true}`},
		},
	})

	if !strings.Contains(out, "[INST] <TOOL_RESULT>{\"ok\":true}</TOOL_RESULT> [/INST]") {
		t.Errorf("tool turn not wrapped as an instruction:\n%q", out)
	}
}

func TestRender_NoToolsOmitsProtocol(t *testing.T) {
	t.Parallel()

	for _, tmpl := range []prompt.Template{prompt.Llama3{}, prompt.Mistral{}} {
		out := tmpl.Render(prompt.Prompt{Preamble: "Be brief."})
		if strings.Contains(out, "To call a tool") {
			t.Errorf("%s: tool protocol present with no tools on offer", tmpl.Name())
		}
		if strings.Contains(out, "AVAILABLE_TOOLS") || strings.Contains(out, "Available tools") {
			t.Errorf("%s: tools block present with no tools on offer", tmpl.Name())
		}
	}
}
