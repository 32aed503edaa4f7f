// Package types defines the shared types used across all Sibyl packages.
//
// These types are the lingua franca between the wire protocol, the audio
// pipelines, the conversation engine and the tool host. Each package keeps
// its own domain types; only cross-cutting data structures live here to
// avoid circular imports.
package types

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks turns containing user input (spoken or typed).
	RoleUser Role = "user"

	// RoleAssistant marks turns containing model output.
	RoleAssistant Role = "assistant"

	// RoleTool marks synthetic turns carrying a wrapped tool result.
	RoleTool Role = "tool"
)

// IsValid reports whether r is one of the three known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Turn is a single entry in a session's conversation history.
// Turns are immutable once appended and never reordered.
type Turn struct {
	// Role is the author of this turn.
	Role Role

	// Content is the turn text. For tool turns this is the JSON-encoded
	// result envelope.
	Content string
}

// ToolCall is a tool invocation extracted from the model's token stream.
// It is ephemeral: produced by the stream parser, consumed once by the
// dispatcher, never stored.
type ToolCall struct {
	// Name is the tool's registered name.
	Name string `json:"name"`

	// Parameters holds the decoded arguments object. May be nil when the
	// model omitted the parameters field entirely.
	Parameters map[string]any `json:"parameters"`
}

// ToolResult is the inner payload of the envelope appended to history
// after a tool runs.
type ToolResult struct {
	// Name echoes the tool that produced this result.
	Name string `json:"name"`

	// Content is the tool's payload object. Error results use the shape
	// {"text": "Tool error: ..."}.
	Content map[string]any `json:"content"`
}

// ToolEnvelope is the uniform wrapper for tool results. Its JSON encoding
// is what gets stored in a tool turn and rendered back to the model.
type ToolEnvelope struct {
	ToolResult ToolResult `json:"tool_result"`
}

// Encode returns the envelope's JSON encoding as stored in a tool turn.
// Envelope contents are built from decoded JSON and plain strings, so
// marshaling cannot fail in practice; if it somehow does, an error-shaped
// envelope is returned so the model still sees well-formed JSON.
func (e ToolEnvelope) Encode() string {
	data, err := json.Marshal(e)
	if err != nil {
		return `{"tool_result":{"name":"` + e.ToolResult.Name +
			`","content":{"text":"Tool error: result not serializable"}}}`
	}
	return string(data)
}

// ToolDefinition describes a tool offered to the model. The prompt
// assembler renders these into the tools block of the preamble.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string `json:"name"`

	// Description explains what the tool does (included in prompts).
	Description string `json:"description"`

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any `json:"parameters"`
}

// Segment is a span of transcribed speech returned by a Transcriber.
type Segment struct {
	// Text is the transcribed content of this span.
	Text string

	// Start and End bound the span relative to the start of the utterance.
	// Zero for providers that do not report timings.
	Start time.Duration
	End   time.Duration
}
