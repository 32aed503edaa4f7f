// Package prompt assembles the rendered prompt for every model turn.
//
// The preamble is rebuilt from its sources on each assembly, in a fixed
// order: base instructions, voice sub-instructions (voice sessions only),
// knowledge text, the home-automation entity digest, and the behavior
// override block. Instruction files are re-read every turn so operators can
// tweak them live; the three independent I/O sources are fetched
// concurrently. The composed preamble, tool set and history then go through
// a model-specific [Template].
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/voxhollow/sibyl/pkg/types"
)

// KnowledgeSource supplies the live knowledge text. A failing source
// returns its own visible marker instead of an error.
type KnowledgeSource interface {
	PromptText() string
}

// BehaviorSource supplies the behavior override rules.
type BehaviorSource interface {
	Rules() ([]string, error)
}

// DigestSource supplies the home-automation entity digest. Implementations
// cache internally; an empty string contributes nothing.
type DigestSource interface {
	Digest(ctx context.Context) string
}

// Request carries the per-turn inputs for one assembly.
type Request struct {
	// Turns is the session history including the pending user turn.
	Turns []types.Turn

	// Voice selects the voice sub-instructions.
	Voice bool

	// Tools is the tool set on offer for this turn.
	Tools []types.ToolDefinition
}

// Assembler builds prompts from live sources.
type Assembler struct {
	tmpl      Template
	knowledge KnowledgeSource
	behaviors BehaviorSource
	digest    DigestSource
	basePath  string
	voicePath string
	logger    *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Assembler)

// WithDigest wires a home-automation digest source into the preamble.
// Without it the digest section is omitted.
func WithDigest(d DigestSource) Option {
	return func(a *Assembler) { a.digest = d }
}

// WithInstructionFiles sets the paths of the base and voice instruction
// files. Empty paths (and absent files) fall back to the embedded defaults.
func WithInstructionFiles(base, voice string) Option {
	return func(a *Assembler) {
		a.basePath = base
		a.voicePath = voice
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New creates an Assembler rendering through tmpl.
func New(tmpl Template, knowledge KnowledgeSource, behaviors BehaviorSource, opts ...Option) *Assembler {
	a := &Assembler{
		tmpl:      tmpl,
		knowledge: knowledge,
		behaviors: behaviors,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble builds the prompt for one model turn. Assembly is deterministic
// given the request and the current source contents.
//
// The knowledge text, behavior rules and entity digest are independent I/O
// and fetched in parallel; a failing section degrades to a visible marker
// rather than failing the turn. Only context cancellation aborts assembly.
func (a *Assembler) Assemble(ctx context.Context, req Request) (string, error) {
	var (
		knowledgeText string
		behaviorBlock string
		digestText    string
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		knowledgeText = a.knowledge.PromptText()
		return nil
	})

	eg.Go(func() error {
		rules, err := a.behaviors.Rules()
		if err != nil {
			a.logger.Warn("prompt: behaviour rules unavailable", "err", err)
			behaviorBlock = fmt.Sprintf("[BEHAVIOUR_OVERRIDES]\n[behaviour overrides unavailable: %v]", err)
			return nil
		}
		behaviorBlock = renderBehaviorBlock(rules)
		return nil
	})

	if a.digest != nil {
		eg.Go(func() error {
			digestText = a.digest.Digest(egCtx)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sections := []string{a.instructions(a.basePath, DefaultBaseInstructions)}
	if req.Voice {
		sections = append(sections, a.instructions(a.voicePath, DefaultVoiceInstructions))
	}
	sections = append(sections, knowledgeText, digestText, behaviorBlock)

	var nonEmpty []string
	for _, s := range sections {
		if s = strings.TrimSpace(s); s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}

	return a.tmpl.Render(Prompt{
		Preamble: strings.Join(nonEmpty, "\n\n"),
		Tools:    req.Tools,
		Turns:    req.Turns,
	}), nil
}

// instructions reads an instruction file, falling back to the embedded
// default when the path is unset or the file is absent. Read failures warn
// and fall back rather than dropping the persona mid-conversation.
func (a *Assembler) instructions(path, fallback string) string {
	if path == "" {
		return fallback
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("prompt: instruction file unreadable, using default", "path", path, "err", err)
		}
		return fallback
	}
	return string(data)
}

// renderBehaviorBlock lays the rules out under the override header, one
// rule per line. No rules, no block.
func renderBehaviorBlock(rules []string) string {
	if len(rules) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("[BEHAVIOUR_OVERRIDES]")
	for _, r := range rules {
		sb.WriteString("\n- ")
		sb.WriteString(r)
	}
	return sb.String()
}
