// Package tools hosts the assistant's tool set: the registry that describes
// tools to the prompt assembler and the dispatcher that executes them on the
// engine's behalf.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxhollow/sibyl/internal/homeauto"
	"github.com/voxhollow/sibyl/internal/search"
	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/internal/store"
	"github.com/voxhollow/sibyl/internal/weather"
	"github.com/voxhollow/sibyl/internal/webtext"
	"github.com/voxhollow/sibyl/pkg/types"
)

// CloseVoiceChannel is the tool a voice session offers for the model to end
// the conversation.
const CloseVoiceChannel = "close_voice_channel"

// Handler executes one tool call. The returned map becomes the envelope
// content; errors are converted to the uniform error shape by the
// dispatcher. Handlers may enqueue short status strings ("Checking Time")
// to the session's response queue.
type Handler func(ctx context.Context, params map[string]any, sess *session.Session) (map[string]any, error)

// Tool is a registered tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	VoiceOnly   bool
	Handler     Handler
}

// Deps carries the backends the canonical tools run against. Nil fields
// disable the corresponding tools: they are omitted from Definitions and
// dispatching them reports the service as unconfigured.
type Deps struct {
	Search    *search.Client
	Web       *webtext.Fetcher
	Home      *homeauto.Client
	Weather   *weather.Client
	Behaviors *store.BehaviorStore

	// DefaultLocation is used by check_weather when the model names none.
	DefaultLocation string

	// Now supplies the clock for get_current_time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Registry holds the tool set in a fixed offer order.
type Registry struct {
	tools  []Tool
	index  map[string]int
	logger *slog.Logger
}

// NewRegistry builds a registry holding the canonical tool set wired to
// deps.
func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{index: make(map[string]int), logger: deps.Logger}
	for _, t := range canonicalTools(deps) {
		r.Register(t)
	}
	return r
}

// Register adds a tool. A second tool with the same name replaces the
// first's handler but keeps the original offer position.
func (r *Registry) Register(t Tool) {
	if i, ok := r.index[t.Name]; ok {
		r.tools[i] = t
		return
	}
	r.tools = append(r.tools, t)
	r.index[t.Name] = len(r.tools) - 1
}

// Definitions renders the offered tool set for a session kind. Voice-only
// tools lead the list so channel control stays prominent in the prompt.
func (r *Registry) Definitions(voice bool) []types.ToolDefinition {
	var voiceDefs, defs []types.ToolDefinition
	for _, t := range r.tools {
		def := types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
		if t.VoiceOnly {
			if voice {
				voiceDefs = append(voiceDefs, def)
			}
			continue
		}
		defs = append(defs, def)
	}
	return append(voiceDefs, defs...)
}

// Dispatch executes call and always returns a well-formed envelope: handler
// errors and panics become the uniform error content, unknown names report
// "Unknown tool". Nothing a tool does escapes to the conversation loop.
func (r *Registry) Dispatch(ctx context.Context, call types.ToolCall, sess *session.Session) (env types.ToolEnvelope) {
	env = types.ToolEnvelope{ToolResult: types.ToolResult{Name: call.Name}}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tools: handler panicked", "tool", call.Name, "panic", rec)
			env.ToolResult.Content = errorContent(fmt.Sprintf("internal failure in %s", call.Name))
		}
	}()

	i, ok := r.index[call.Name]
	if !ok {
		env.ToolResult.Content = map[string]any{"text": "Unknown tool"}
		return env
	}

	content, err := r.tools[i].Handler(ctx, call.Parameters, sess)
	if err != nil {
		r.logger.Warn("tools: handler failed", "tool", call.Name, "err", err)
		env.ToolResult.Content = errorContent(err.Error())
		return env
	}
	env.ToolResult.Content = content
	return env
}

// errorContent is the uniform error shape handed back to the model.
func errorContent(msg string) map[string]any {
	return map[string]any{"text": "Tool error: " + msg}
}

// say enqueues a short UX status string, spoken while the tool works. A
// cancelled session just drops it.
func say(ctx context.Context, sess *session.Session, text string) {
	if sess == nil || sess.Cancel.IsSet() {
		return
	}
	_ = sess.Responses.Put(ctx, text)
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// optionalString extracts a string parameter, empty when absent.
func optionalString(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

// numberParam extracts a numeric parameter. JSON numbers decode as float64;
// a stringly-typed number from a sloppy model is tolerated.
func numberParam(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, false, fmt.Errorf("parameter %q is not a number", key)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q is not a number", key)
	}
}

// objectSchema builds the JSON Schema for a tool's parameters.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
