package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxhollow/sibyl/internal/observe"
	"github.com/voxhollow/sibyl/internal/prompt"
	"github.com/voxhollow/sibyl/internal/session"
	"github.com/voxhollow/sibyl/pkg/provider/llm"
	"github.com/voxhollow/sibyl/pkg/types"
)

// CloseVoiceTool is the tool name that ends a voice conversation. The loop
// breaks on it instead of requesting another model turn.
const CloseVoiceTool = "close_voice_channel"

// DefaultMaxToolIterations caps tool round-trips per input. A model stuck
// re-calling the same tool finishes the turn instead of spinning forever.
const DefaultMaxToolIterations = 8

// spokenStreamError is what the user hears when the backend breaks.
const spokenStreamError = "Sorry, I lost my connection to the language model."

// ToolHost is the tool surface the loop drives. Implemented by the tools
// registry; tests substitute their own.
type ToolHost interface {
	// Definitions returns the tool set on offer. Voice sessions include
	// the channel-closing tool, chat sessions do not.
	Definitions(voice bool) []types.ToolDefinition

	// Dispatch runs the named tool and returns the uniform result
	// envelope. Dispatch never fails: handler errors become error
	// envelopes.
	Dispatch(ctx context.Context, call types.ToolCall, sess *session.Session) types.ToolEnvelope
}

// Engine runs the conversation loop for all sessions.
type Engine struct {
	sessions  *session.Store
	assembler *prompt.Assembler
	model     llm.Provider
	tools     ToolHost

	options      llm.Options
	maxToolIters int
	logger       *slog.Logger
	metrics      *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithOptions sets the sampling options applied to every generation.
func WithOptions(o llm.Options) Option {
	return func(e *Engine) { e.options = o }
}

// WithMaxToolIterations overrides the tool round-trip cap.
func WithMaxToolIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolIters = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics wires the turn and tool instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New assembles an Engine.
func New(sessions *session.Store, assembler *prompt.Assembler, model llm.Provider, tools ToolHost, opts ...Option) *Engine {
	e := &Engine{
		sessions:     sessions,
		assembler:    assembler,
		model:        model,
		tools:        tools,
		maxToolIters: DefaultMaxToolIterations,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Sessions exposes the session store the engine runs against.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// ProcessInput runs one complete conversation turn: user text in, streamed
// response (and any tool round-trips) out through the session's response
// queue. It always terminates the turn — sentinel enqueued, finished event
// set — regardless of model, tool or cancellation outcomes, so a consumer
// blocked on the queue is never stranded.
//
// Exactly one ProcessInput may run per session at a time; the voice and
// chat surfaces guarantee this by construction (one worker per connection).
func (e *Engine) ProcessInput(ctx context.Context, text, sessionID string, voice bool) error {
	sess := e.sessions.GetOrCreate(sessionID)
	sess.Finished.Clear()
	if voice {
		sess.CloseVoice.Clear()
	}

	logger := e.logger.With("session", sessionID)
	start := time.Now()
	err := e.runTurn(ctx, sess, text, voice, logger)

	// Terminal sentinel and finished event fire on every path. The
	// sentinel uses a background-ish context bound to the caller's: if
	// ctx died the consumer is gone anyway and End may fail, which is
	// fine.
	if endErr := sess.Responses.End(ctx); endErr != nil && err == nil {
		err = endErr
	}
	sess.Finished.Set()

	if e.metrics != nil {
		e.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Bool("voice", voice)))
	}
	return err
}

// runTurn is the model/tool loop proper.
func (e *Engine) runTurn(ctx context.Context, sess *session.Session, text string, voice bool, logger *slog.Logger) error {
	sess.Append(types.Turn{Role: types.RoleUser, Content: text})
	defs := e.tools.Definitions(voice)

	for iteration := 0; ; iteration++ {
		rendered, err := e.assembler.Assemble(ctx, prompt.Request{
			Turns: sess.History(),
			Voice: voice,
			Tools: defs,
		})
		if err != nil {
			return err
		}

		chunks, err := e.model.StreamGenerate(ctx, llm.GenerateRequest{Prompt: rendered, Options: e.options})
		if err != nil {
			logger.Error("engine: model unreachable", "err", err)
			return sess.Responses.Put(ctx, spokenStreamError)
		}

		parser := &streamParser{queue: sess.Responses, cancel: sess.Cancel}
		result, err := parser.consume(ctx, chunks)
		go drain(chunks)

		switch {
		case errors.Is(err, errCancelled):
			logger.Debug("engine: turn cancelled by barge-in")
			return nil
		case errors.Is(err, ErrModelStream):
			logger.Error("engine: model stream failed", "err", err)
			return sess.Responses.Put(ctx, spokenStreamError)
		case err != nil:
			return err
		}

		if result.tool == nil || iteration >= e.maxToolIters {
			if result.tool != nil {
				logger.Warn("engine: tool iteration cap reached", "cap", e.maxToolIters)
			}
			sess.Append(types.Turn{Role: types.RoleAssistant, Content: result.text})
			return nil
		}

		if result.text != "" {
			sess.Append(types.Turn{Role: types.RoleAssistant, Content: result.text})
		}

		logger.Info("engine: tool call", "tool", result.tool.Name, "iteration", iteration)
		envelope := e.dispatch(ctx, *result.tool, sess)
		sess.Append(types.Turn{Role: types.RoleTool, Content: envelope})

		if result.tool.Name == CloseVoiceTool {
			return nil
		}
		if sess.Cancel.IsSet() {
			return nil
		}
	}
}

// dispatch runs one tool and returns the JSON-encoded envelope for history.
func (e *Engine) dispatch(ctx context.Context, call types.ToolCall, sess *session.Session) string {
	start := time.Now()
	envelope := e.tools.Dispatch(ctx, call, sess)
	if e.metrics != nil {
		e.metrics.ToolDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("tool", call.Name)))
		e.metrics.ToolCalls.Add(ctx, 1,
			metric.WithAttributes(attribute.String("tool", call.Name)))
	}
	return envelope.Encode()
}

// drain empties an abandoned chunk channel so the provider goroutine can
// exit. The parser returns eagerly at the first tool call; whatever the
// model says after it is discarded here.
func drain(ch <-chan llm.Chunk) {
	for range ch {
	}
}
