package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxhollow/sibyl/pkg/types"
)

// Prompt is the logical content handed to a Template: the composed preamble,
// the tools on offer, and the conversation so far. The last turn is the
// pending user input (or tool result) the model must respond to.
type Prompt struct {
	Preamble string
	Tools    []types.ToolDefinition
	Turns    []types.Turn
}

// Template lays a Prompt out as the single string a raw-mode backend
// expects, chat markers included. Rendering is deterministic: the same
// Prompt always yields the same string.
type Template interface {
	// Name is the identifier used in configuration.
	Name() string

	// Render produces the complete prompt, ending with whatever cue makes
	// the model generate the next assistant turn.
	Render(p Prompt) string
}

// ByName returns the template for a configuration identifier.
func ByName(name string) (Template, error) {
	switch name {
	case "llama3":
		return Llama3{}, nil
	case "mistral":
		return Mistral{}, nil
	default:
		return nil, fmt.Errorf("prompt: unknown template %q", name)
	}
}

// toolProtocol tells the model how tool calling works on this server. The
// wording is load-bearing: the stream parser extracts exactly one balanced
// JSON object per turn, and results come back as synthetic turns.
const toolProtocol = `To call a tool, reply with EXACTLY one JSON object of the form {"name": "<tool name>", "parameters": {...}} on a single line. After the tool runs, its result arrives as a synthetic turn wrapped in <TOOL_RESULT>...</TOOL_RESULT>. Only one tool may be called per message.`

// toolsJSON renders the tool definitions one JSON object per line.
// encoding/json sorts map keys, which keeps the output stable.
func toolsJSON(defs []types.ToolDefinition) string {
	var sb strings.Builder
	for i, def := range defs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		data, err := json.Marshal(def)
		if err != nil {
			// A ToolDefinition is plain strings and maps; this cannot
			// happen for registered tools.
			continue
		}
		sb.Write(data)
	}
	return sb.String()
}

// turnText returns the rendered content of a turn and the chat role to
// present it under. Tool results become synthetic user turns because the
// underlying templates have no tool role.
func turnText(t types.Turn) (role, content string) {
	if t.Role == types.RoleTool {
		return "user", "<TOOL_RESULT>" + t.Content + "</TOOL_RESULT>"
	}
	return string(t.Role), t.Content
}

// Llama3 renders the llama3 chat template: header-tagged roles with the
// preamble and tools in the system slot, ending with an open assistant
// header as the generation cue.
type Llama3 struct{}

func (Llama3) Name() string { return "llama3" }

func (Llama3) Render(p Prompt) string {
	var sb strings.Builder
	sb.WriteString("<|begin_of_text|>")

	system := p.Preamble
	if len(p.Tools) > 0 {
		system += "\n\n**Available tools:**\n" + toolsJSON(p.Tools) + "\n\n" + toolProtocol
	}
	sb.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
	sb.WriteString(system)
	sb.WriteString("<|eot_id|>")

	for _, turn := range p.Turns {
		role, content := turnText(turn)
		sb.WriteString("<|start_header_id|>")
		sb.WriteString(role)
		sb.WriteString("<|end_header_id|>\n\n")
		sb.WriteString(content)
		sb.WriteString("<|eot_id|>")
	}

	sb.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return sb.String()
}

// Mistral renders the instruction-tagged template: tools in an
// [AVAILABLE_TOOLS] block, the preamble in [SYSTEM], user input inside
// [INST] markers and assistant turns closed with the end-of-sequence tag.
// The prompt ends right after the last [INST] block, which is the cue.
type Mistral struct{}

func (Mistral) Name() string { return "mistral" }

func (Mistral) Render(p Prompt) string {
	var sb strings.Builder

	if len(p.Tools) > 0 {
		sb.WriteString("[AVAILABLE_TOOLS]")
		sb.WriteString(toolsJSON(p.Tools))
		sb.WriteString("[/AVAILABLE_TOOLS]\n")
	}

	system := p.Preamble
	if len(p.Tools) > 0 {
		system += "\n\n" + toolProtocol
	}
	sb.WriteString("[SYSTEM]")
	sb.WriteString(system)
	sb.WriteString("[/SYSTEM]\n")

	for _, turn := range p.Turns {
		role, content := turnText(turn)
		switch role {
		case "assistant":
			sb.WriteString(content)
			sb.WriteString("</s>\n")
		default:
			sb.WriteString("[INST] ")
			sb.WriteString(content)
			sb.WriteString(" [/INST]\n")
		}
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// Compile-time template checks.
var (
	_ Template = Llama3{}
	_ Template = Mistral{}
)
